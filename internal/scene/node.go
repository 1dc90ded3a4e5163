// 包 scene：可变场景图（地图图层 + 统计面板），由会话事件循环独占修改，渲染时序列化为 SVG
package scene

// 节点标签：仅支持渲染所需的最小集合
const (
	TagGroup = "g"
	TagPath  = "path"
	TagRect  = "rect"
	TagText  = "text"
)

// 文档注释：场景节点
// 背景：替代浏览器 DOM 节点；类名集合承载高亮状态，激活回调承载指针事件。
// 约束：坐标在 path 中以字符串表达（数据空间浮点），rect/text 使用像素空间。
type Node struct {
	ID        string
	Tag       string
	Classes   []string
	D         string
	X, Y      float64
	W, H      float64
	Text      string
	Transform string
	// Style 原样交给 svgo：含 "=" 视为属性，否则视为 style 声明
	Style    string
	Children []*Node

	onActivate func()
}

// AddClass：已存在时不重复添加，返回是否发生变化
func (n *Node) AddClass(c string) bool {
	if n.HasClass(c) {
		return false
	}
	n.Classes = append(n.Classes, c)
	return true
}

// RemoveClass：返回是否发生变化
func (n *Node) RemoveClass(c string) bool {
	for i, x := range n.Classes {
		if x == c {
			n.Classes = append(n.Classes[:i], n.Classes[i+1:]...)
			return true
		}
	}
	return false
}

func (n *Node) HasClass(c string) bool {
	for _, x := range n.Classes {
		if x == c {
			return true
		}
	}
	return false
}

// OnActivate 绑定指针激活（点击/触摸）回调
func (n *Node) OnActivate(fn func()) { n.onActivate = fn }

// Activatable 是否绑定了激活回调
func (n *Node) Activatable() bool { return n.onActivate != nil }

func Group(id string, classes ...string) *Node {
	return &Node{ID: id, Tag: TagGroup, Classes: classes}
}

func Path(id, d string, classes ...string) *Node {
	return &Node{ID: id, Tag: TagPath, D: d, Classes: classes}
}

func Rect(id string, x, y, w, h float64, classes ...string) *Node {
	return &Node{ID: id, Tag: TagRect, X: x, Y: y, W: w, H: h, Classes: classes}
}

func Text(id string, x, y float64, s string, classes ...string) *Node {
	return &Node{ID: id, Tag: TagText, X: x, Y: y, Text: s, Classes: classes}
}
