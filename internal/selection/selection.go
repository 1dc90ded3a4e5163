// 包 selection：活动记录与活动统计列的单选状态机
package selection

import (
	"errors"
)

// None 表示无选中项
const None = -1

// ErrNotSelectable：记录没有区域编号或几何尚未解析
var ErrNotSelectable = errors.New("record is not selectable")

// 文档注释：状态机依赖的视图
// 背景：状态机只持有下标；高亮类名、标题与统计面板的实际改动由视图（会话中的场景）完成。
type View interface {
	Selectable(record int) bool
	HighlightRecord(record int, on bool)
	HighlightHeading(heading int, on bool)
	// ShowRecord 设置标题/副标题并重绘统计面板；heading 为需要重新标记的活动列
	ShowRecord(record, heading int) error
	ShowPlaceholder()
}

// 文档注释：选择状态机
// 背景：两个正交的单选槽位（记录、统计列）；切换时总是先取消旧高亮再应用新高亮，不存在重叠。
// 约束：非并发安全，仅由会话事件循环调用。
type Machine struct {
	view    View
	record  int
	heading int
}

func New(v View) *Machine {
	return &Machine{view: v, record: None, heading: None}
}

// Record 当前活动记录下标
func (m *Machine) Record() int { return m.record }

// Heading 当前活动统计列下标
func (m *Machine) Heading() int { return m.heading }

// 文档注释：选中记录
// 背景：重复选中当前记录为空操作（不闪烁、不重复加类名）。
// 返回：面板渲染失败（如未知列类型）时整体回到无选中状态并返回错误，由调用方告警。
func (m *Machine) Select(record int) error {
	if record == m.record {
		return nil
	}
	if !m.view.Selectable(record) {
		return ErrNotSelectable
	}
	if m.record != None {
		m.view.HighlightRecord(m.record, false)
	}
	m.record = record
	m.view.HighlightRecord(record, true)
	if err := m.view.ShowRecord(record, m.heading); err != nil {
		m.Clear()
		return err
	}
	return nil
}

// SelectHeading：统计标签的单选；不影响活动记录
func (m *Machine) SelectHeading(heading int) {
	if heading == m.heading {
		return
	}
	if m.heading != None {
		m.view.HighlightHeading(m.heading, false)
	}
	m.heading = heading
	m.view.HighlightHeading(heading, true)
}

// Clear：Esc 键，两个槽位都回到初始空状态并显示占位提示
func (m *Machine) Clear() {
	if m.heading != None {
		m.view.HighlightHeading(m.heading, false)
	}
	if m.record != None {
		m.view.HighlightRecord(m.record, false)
	}
	m.record, m.heading = None, None
	m.view.ShowPlaceholder()
}

// Reset：新数据集替换场景时调用；旧节点已被整体清除，无需逐个取消高亮
func (m *Machine) Reset() {
	m.record, m.heading = None, None
	m.view.ShowPlaceholder()
}
