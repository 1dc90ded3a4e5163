package projection

import "mapvis/internal/doc"

// 文档注释：投影器
// 背景：持有当前包围盒与视口，任一变化时重新计算；会话在初次渲染、视口变化与选中变化时调用 Update。
type Projector struct {
	bbox    doc.BBox
	hasBBox bool
	vw, vh  float64
	current Transform
}

func NewProjector(vw, vh float64) *Projector {
	return &Projector{vw: vw, vh: vh}
}

// SetBBox 绑定新数据集的包围盒并重算
func (p *Projector) SetBBox(b doc.BBox) (Transform, error) {
	p.bbox = b
	p.hasBBox = true
	return p.Update()
}

// Resize 更新视口并重算
func (p *Projector) Resize(vw, vh float64) (Transform, error) {
	p.vw, p.vh = vw, vh
	return p.Update()
}

// Update：按当前输入重算；尚未绑定包围盒时返回零值
func (p *Projector) Update() (Transform, error) {
	if !p.hasBBox {
		return Transform{}, nil
	}
	t, err := Fit(p.bbox, p.vw, p.vh)
	if err != nil {
		return Transform{}, err
	}
	p.current = t
	return t, nil
}

func (p *Projector) Current() Transform { return p.current }

func (p *Projector) Viewport() (float64, float64) { return p.vw, p.vh }
