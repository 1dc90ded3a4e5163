package session

import (
	"fmt"
	"math"

	"mapvis/internal/breakdown"
	"mapvis/internal/metrics"
	"mapvis/internal/resolver"
	"mapvis/internal/upload"
)

// 面板布局（像素）
const (
	MinPanelWidth = 240
	PanelPadding  = 16
	Placeholder   = "Tap the map..."
)

// view：selection.View 的场景实现；只在事件循环内被调用
type view struct{ s *Session }

func (v view) Selectable(i int) bool {
	ds := v.s.ds
	return ds != nil && i >= 0 && i < len(ds.Records) && ds.Records[i].Region != nil
}

func (v view) HighlightRecord(i int, on bool) {
	n, ok := v.s.sc.Lookup(resolver.RegionID(i))
	if !ok {
		return
	}
	if on {
		n.AddClass("active")
	} else {
		n.RemoveClass("active")
	}
}

func (v view) HighlightHeading(h int, on bool) {
	n, ok := v.s.sc.Lookup(breakdown.StatID(h))
	if !ok {
		return
	}
	if on {
		n.AddClass("active")
	} else {
		n.RemoveClass("active")
	}
}

// ShowRecord：先生成面板条目，失败时不改动标题与面板
func (v view) ShowRecord(i, heading int) error {
	s := v.s
	rec := &s.ds.Records[i]
	entries, err := breakdown.Build(rec.Row, s.ds.Headings, heading)
	if err != nil {
		metrics.RenderErrorsTotal.Inc()
		return err
	}
	s.sc.Title.Text = rec.Query
	s.sc.Subtitle.Text = ""
	if rec.Region != nil {
		s.sc.Subtitle.Text = rec.Region.Name
	}
	return breakdown.Draw(s.sc, entries, s.panelInner(), s.selectHeading)
}

func (v view) ShowPlaceholder() {
	s := v.s
	s.sc.Title.Text = Placeholder
	s.sc.Subtitle.Text = ""
	s.sc.Clear(s.sc.Breakdown)
}

// PanelWidth：视口三分之一，不少于 MinPanelWidth，不超过一半
func PanelWidth(w int) int {
	p := w / 3
	if p < MinPanelWidth {
		p = MinPanelWidth
	}
	if p > w/2 {
		p = w / 2
	}
	return p
}

func (s *Session) panelInner() float64 {
	return math.Max(float64(PanelWidth(s.sc.Width)-2*PanelPadding), 0)
}

// 文档注释：重新布局
// 背景：初次渲染、视口变化与选中变化时调用；地图变换只依赖包围盒与地图区尺寸，面板条目按新宽度重绘。
func (s *Session) layout() {
	w, h := s.sc.Width, s.sc.Height
	mapW := w - PanelWidth(w)
	tr, err := s.proj.Resize(float64(mapW), float64(h))
	if err != nil {
		s.alert(err)
		return
	}
	if tr.Scale != 0 {
		s.sc.Map.Transform = tr.Outer()
		s.sc.World.Transform = tr.Inner()
	}
	s.sc.Panel.Transform = fmt.Sprintf("translate(%d 0)", mapW+PanelPadding)
	s.drawProgress()

	if r := s.sel.Record(); r >= 0 && s.ds != nil {
		rec := &s.ds.Records[r]
		entries, err := breakdown.Build(rec.Row, s.ds.Headings, s.sel.Heading())
		if err == nil {
			err = breakdown.Draw(s.sc, entries, s.panelInner(), s.selectHeading)
		}
		if err != nil {
			s.alert(err)
		}
	}
}

// drawProgress：进度条横跨整个视口顶部；淡出时只改透明度，宽度保留
func (s *Session) drawProgress() {
	pct, st := s.tracker.Indicator()
	p := s.sc.Progress
	p.W = float64(s.sc.Width) * pct / 100
	switch st {
	case upload.Active:
		p.Style = "opacity:1"
	default:
		p.Style = "opacity:0"
	}
}
