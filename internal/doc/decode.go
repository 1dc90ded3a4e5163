package doc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDataShape：文档结构错误（JSON 非法、包围盒顺序颠倒、行宽与列数不一致等），对本次渲染是致命的
var ErrDataShape = errors.New("malformed dataset")

// 文档注释：解析并校验数据集
// 背景：在触碰场景之前完成全部校验，失败时调用方保持旧场景不变并向用户报错，避免渲染出残缺地图。
// 返回：校验通过的数据集；任何失败均包裹 ErrDataShape。
func Decode(b []byte) (*Dataset, error) {
	var ds Dataset
	if err := json.Unmarshal(b, &ds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataShape, err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate：检查包围盒顺序、列类型与行宽
func (d *Dataset) Validate() error {
	if d.BBox.Width() < 0 || d.BBox.Height() < 0 {
		return fmt.Errorf("%w: bbox %v has negative extent", ErrDataShape, d.BBox)
	}
	for i, h := range d.Headings {
		if !h.Kind.Known() {
			return fmt.Errorf("%w: heading %d: %w", ErrDataShape, i, ErrUnknownKind)
		}
	}
	for i, r := range d.Records {
		if len(r.Row) != len(d.Headings) {
			return fmt.Errorf("%w: record %d has %d values for %d headings", ErrDataShape, i, len(r.Row), len(d.Headings))
		}
	}
	return nil
}
