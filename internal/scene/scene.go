package scene

import (
	"errors"
)

// ErrDuplicateID：同一场景内节点 id 必须唯一
var ErrDuplicateID = errors.New("duplicate scene node id")

// 固定节点 id
const (
	IDProgress  = "progress"
	IDMap       = "map"
	IDWorld     = "world"
	IDRegions   = "regions"
	IDPanel     = "panel"
	IDTitle     = "title"
	IDSubtitle  = "subtitle"
	IDBreakdown = "breakdown"
)

// 文档注释：场景
// 背景：地图区（map → world → regions 三层，分别承载居中平移、缩放与区域形状）与右侧面板（标题、副标题、统计列表）。
// 约束：非并发安全；仅由会话事件循环访问。Reset 整体清空，不做增量比对。
type Scene struct {
	Width  int
	Height int

	root      *Node
	Progress  *Node
	Map       *Node
	World     *Node
	Regions   *Node
	Panel     *Node
	Title     *Node
	Subtitle  *Node
	Breakdown *Node

	index map[string]*Node
}

func New(width, height int) *Scene {
	s := &Scene{Width: width, Height: height}
	s.Reset()
	return s
}

// 文档注释：整体清空并重建骨架节点
// 背景：新数据集加载时旧区域形状、面板与激活回调全部丢弃；进度条节点保留其显示状态。
func (s *Scene) Reset() {
	var progress *Node
	if s.Progress != nil {
		progress = s.Progress
	} else {
		progress = Rect(IDProgress, 0, 0, 0, 4, "progress")
		progress.Style = "opacity:0"
	}
	s.index = make(map[string]*Node)
	s.root = Group("", "root")
	s.Progress = progress
	s.Map = Group(IDMap)
	s.World = Group(IDWorld)
	s.Regions = Group(IDRegions)
	s.Panel = Group(IDPanel)
	s.Title = Text(IDTitle, 0, 32, "", "title")
	s.Subtitle = Text(IDSubtitle, 0, 56, "", "subtitle")
	s.Breakdown = Group(IDBreakdown)

	s.mustAdd(s.root, s.Map)
	s.mustAdd(s.Map, s.World)
	s.mustAdd(s.World, s.Regions)
	s.mustAdd(s.root, s.Panel)
	s.mustAdd(s.Panel, s.Title)
	s.mustAdd(s.Panel, s.Subtitle)
	s.mustAdd(s.Panel, s.Breakdown)
	s.mustAdd(s.root, s.Progress)
}

func (s *Scene) mustAdd(parent, n *Node) {
	if err := s.Add(parent, n); err != nil {
		panic(err)
	}
}

// Add：挂载子树并登记其中所有带 id 的节点
func (s *Scene) Add(parent, n *Node) error { return s.AddAll(parent, n) }

// AddAll：按顺序挂载多个子树；任一 id 冲突时整体不挂载
func (s *Scene) AddAll(parent *Node, nodes ...*Node) error {
	seen := make(map[string]bool)
	var dup bool
	for _, n := range nodes {
		walk(n, func(x *Node) {
			if x.ID == "" {
				return
			}
			if _, ok := s.index[x.ID]; ok || seen[x.ID] {
				dup = true
			}
			seen[x.ID] = true
		})
	}
	if dup {
		return ErrDuplicateID
	}
	for _, n := range nodes {
		walk(n, func(x *Node) {
			if x.ID != "" {
				s.index[x.ID] = x
			}
		})
	}
	parent.Children = append(parent.Children, nodes...)
	return nil
}

// Clear：移除 parent 的全部子节点并注销 id
func (s *Scene) Clear(parent *Node) {
	for _, c := range parent.Children {
		walk(c, func(x *Node) {
			if x.ID != "" {
				delete(s.index, x.ID)
			}
		})
	}
	parent.Children = nil
}

// Lookup 按 id 查找节点
func (s *Scene) Lookup(id string) (*Node, bool) {
	n, ok := s.index[id]
	return n, ok
}

// Activate：模拟指针激活；节点不存在或未绑定回调时返回 false
func (s *Scene) Activate(id string) bool {
	n, ok := s.index[id]
	if !ok || n.onActivate == nil {
		return false
	}
	n.onActivate()
	return true
}

// Resize 更新视口尺寸；重新布局由会话负责
func (s *Scene) Resize(width, height int) {
	s.Width = width
	s.Height = height
}

// RegionCount 已插入的区域形状数量
func (s *Scene) RegionCount() int {
	n := 0
	for _, c := range s.Regions.Children {
		if c.Tag == TagPath && c.HasClass("region") {
			n++
		}
	}
	return n
}

func walk(n *Node, fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		walk(c, fn)
	}
}
