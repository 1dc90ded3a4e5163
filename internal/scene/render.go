package scene

import (
	"io"
	"math"
	"strings"

	svg "github.com/ajstarks/svgo"
)

// 内联样式：区域描边在缩放组内保持 1px
const css = `
.region { fill: #c8d3dc; stroke: #ffffff; vector-effect: non-scaling-stroke; cursor: pointer; }
.region.active { fill: #e8553e; }
.bbox { fill: none; stroke: #9aa7b1; stroke-dasharray: 2 2; vector-effect: non-scaling-stroke; }
.title { font: bold 20px sans-serif; }
.subtitle { font: 13px sans-serif; fill: #667; }
.stat { font: 13px sans-serif; cursor: pointer; }
.stat.active { font-weight: bold; fill: #e8553e; }
.value { font: 13px sans-serif; fill: #333; }
.track { fill: #eceff1; }
.bar { fill: #4a7fb0; }
.progress { fill: #4a7fb0; }
`

// errWriter：记录首个写错误，svgo 自身不返回错误
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

// 文档注释：将场景序列化为 SVG 文档
// 背景：场景图是唯一事实来源，渲染为纯函数；CLI 写文件，服务端写 HTTP 响应。
// 返回：底层 Writer 的首个错误。
func (s *Scene) Render(w io.Writer) error {
	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	canvas.Start(s.Width, s.Height)
	canvas.Style("text/css", css)
	for _, c := range s.root.Children {
		renderNode(canvas, c)
	}
	canvas.End()
	return ew.err
}

func renderNode(canvas *svg.SVG, n *Node) {
	attrs := attributes(n)
	switch n.Tag {
	case TagGroup:
		canvas.Group(attrs...)
		for _, c := range n.Children {
			renderNode(canvas, c)
		}
		canvas.Gend()
	case TagPath:
		canvas.Path(n.D, attrs...)
	case TagRect:
		canvas.Rect(px(n.X), px(n.Y), px(n.W), px(n.H), attrs...)
	case TagText:
		canvas.Text(px(n.X), px(n.Y), n.Text, attrs...)
	}
}

func attributes(n *Node) []string {
	var out []string
	if n.ID != "" {
		out = append(out, `id="`+escapeAttr(n.ID)+`"`)
	}
	if len(n.Classes) > 0 {
		out = append(out, `class="`+escapeAttr(strings.Join(n.Classes, " "))+`"`)
	}
	if n.Transform != "" {
		out = append(out, `transform="`+n.Transform+`"`)
	}
	if n.Style != "" {
		out = append(out, n.Style)
	}
	return out
}

// px：像素坐标取整；负值与 NaN 归零
func px(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) {
		return math.MaxInt32
	}
	return int(math.Round(v))
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;")

func escapeAttr(s string) string { return attrEscaper.Replace(s) }
