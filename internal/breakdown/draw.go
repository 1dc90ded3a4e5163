package breakdown

import (
	"math"
	"strconv"

	"mapvis/internal/scene"
)

// 面板条目布局（像素）
const (
	FirstRowY   = 90.0
	RowHeight   = 44.0
	TrackHeight = 8.0
)

// StatID 统计标签节点 id
func StatID(heading int) string { return "stat-" + strconv.Itoa(heading) }

// 文档注释：绘制条目到面板
// 背景：每次绘制前整体清空 breakdown 组；统计标签绑定激活回调，点击后由选择状态机切换激活列。
// 参数：width 为面板可用宽度（轨道宽度）；onHeading 可为空。
func Draw(sc *scene.Scene, entries []Entry, width float64, onHeading func(heading int)) error {
	sc.Clear(sc.Breakdown)
	for i, e := range entries {
		y := FirstRowY + float64(i)*RowHeight
		idx := strconv.Itoa(e.Heading)
		g := scene.Group("entry-"+idx, "entry")

		label := scene.Text(StatID(e.Heading), 0, y, e.Label, "stat")
		if e.Active {
			label.AddClass("active")
		}
		if onHeading != nil {
			h := e.Heading
			label.OnActivate(func() { onHeading(h) })
		}
		g.Children = append(g.Children, label)

		value := scene.Text("value-"+idx, width, y, e.Text, "value")
		value.Style = `text-anchor="end"`
		g.Children = append(g.Children, value)

		if e.HasBar {
			g.Children = append(g.Children,
				scene.Rect("track-"+idx, 0, y+8, width, TrackHeight, "track"),
				scene.Rect("bar-"+idx, 0, y+8, BarWidth(e.BarPercent, width), TrackHeight, "bar"),
			)
		}
		if err := sc.Add(sc.Breakdown, g); err != nil {
			return err
		}
	}
	return nil
}

// BarWidth：百分比换算像素宽度；超过 100% 时按比例溢出轨道，负值按 0 处理
func BarWidth(percent, track float64) float64 {
	if percent <= 0 || math.IsNaN(percent) {
		return 0
	}
	return track * percent / 100
}
