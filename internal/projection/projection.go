// 包 projection：数据空间包围盒到视口像素空间的等比映射
package projection

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"mapvis/internal/doc"
)

// ErrNegativeExtent：包围盒顺序被破坏（宽或高为负），属于数据错误而非可恢复状态
var ErrNegativeExtent = errors.New("bounding box has negative extent")

// 文档注释：投影变换
// 背景：scale 取宽高两个方向的较小比例，保证地图完整放入视口且不变形；包围盒中心对齐视口中心。
// 约束：CenterX/CenterY 位于数据空间（y 向上）；SVG 中 y 轴向下，路径以 -lat 书写，输出变换时翻转。
type Transform struct {
	Scale     float64
	CenterX   float64
	CenterY   float64
	ViewportW float64
	ViewportH float64
}

// 文档注释：计算适配变换
// 参数：b 数据集包围盒；vw/vh 视口像素尺寸。
// 返回：变换；宽或高为负时返回 ErrNegativeExtent，不产生负值或 NaN 缩放。
// 约束：宽高均为 0（单点）时缩放取 1；仅一个方向为 0 时由另一方向决定。
func Fit(b doc.BBox, vw, vh float64) (Transform, error) {
	w, h := b.Width(), b.Height()
	if w < 0 || h < 0 || math.IsNaN(w) || math.IsNaN(h) {
		return Transform{}, fmt.Errorf("%w: width=%g height=%g", ErrNegativeExtent, w, h)
	}
	scale := math.Min(ratio(vw, w), ratio(vh, h))
	if math.IsInf(scale, 1) {
		scale = 1
	}
	cx, cy := b.Center()
	return Transform{Scale: scale, CenterX: cx, CenterY: cy, ViewportW: vw, ViewportH: vh}, nil
}

func ratio(v, extent float64) float64 {
	if extent == 0 {
		return math.Inf(1)
	}
	return v / extent
}

// Apply：数据空间点 → 像素坐标（SVG y 向下）
func (t Transform) Apply(x, y float64) (float64, float64) {
	px := t.ViewportW/2 + (x-t.CenterX)*t.Scale
	py := t.ViewportH/2 - (y-t.CenterY)*t.Scale
	return px, py
}

// Outer：外层组变换，把原点移到视口中心
func (t Transform) Outer() string {
	return "translate(" + num(t.ViewportW/2) + " " + num(t.ViewportH/2) + ")"
}

// Inner：内层组变换，缩放后把包围盒中心（SVG 坐标为 (cx, -cy)）移到原点
func (t Transform) Inner() string {
	return "scale(" + num(t.Scale) + ") translate(" + num(-t.CenterX) + " " + num(t.CenterY) + ")"
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
