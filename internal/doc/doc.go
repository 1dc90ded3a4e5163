// 包 doc：数据集文档模型，服务端写出与客户端解析共用同一套结构，保证 /doc/{id}.json 与上传响应一致
package doc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// 文档注释：数据集（一次上传或一次打开对应一份）
// 背景：加载后不可变；新加载整体替换旧数据集，不做合并。
type Dataset struct {
	ID       string    `json:"dataset_id"`
	Name     string    `json:"name"`
	Headings []Heading `json:"headings"`
	Records  []Record  `json:"records"`
	BBox     BBox      `json:"bbox"`
}

// 列元数据：max 仅对 int/float 有意义，缺失时渲染为零宽度条
type Heading struct {
	Label   string   `json:"label"`
	Kind    Kind     `json:"kind"`
	Max     *float64 `json:"max,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Options []string `json:"options,omitempty"`
}

// 文档注释：数据行
// 背景：Row 与 Headings 一一对应；RegionID 为空表示没有几何，永不解析也不可选中。
// 约束：Region 为解析后的回指，仅由客户端会话写入，不参与序列化。
type Record struct {
	Row      []Value `json:"row"`
	RegionID *int64  `json:"region_id"`
	Query    string  `json:"query"`

	Region *Region `json:"-"`
}

// Resolvable：存在外部区域编号
func (r *Record) Resolvable() bool { return r.RegionID != nil }

// 区域几何：simple_path 为已简化的 SVG 路径（y 轴为 -lat）
type Region struct {
	OSMID       int64  `json:"osm_id,omitempty"`
	PlaceRank   int    `json:"place_rank,omitempty"`
	Name        string `json:"name"`
	SimplePath  string `json:"simple_path"`
	BoundingBox BBox   `json:"boundingbox"`
}

// Value：原始单元格文本；解码时兼容数字、布尔与 null
type Value string

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*v = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Value(s)
	default:
		*v = Value(b)
	}
	return nil
}

// 文档注释：包围盒（bottom, top, left, right）
// 背景：与地理编码服务的 boundingbox 顺序一致（south, north, west, east）；服务端返回的数值可能是字符串。
// 约束：可渲染的数据集必须满足 top>=bottom 且 right>=left。
type BBox [4]float64

func (b BBox) Bottom() float64 { return b[0] }
func (b BBox) Top() float64    { return b[1] }
func (b BBox) Left() float64   { return b[2] }
func (b BBox) Right() float64  { return b[3] }
func (b BBox) Width() float64  { return b[3] - b[2] }
func (b BBox) Height() float64 { return b[1] - b[0] }

// Center 数据空间中心点 (x, y)
func (b BBox) Center() (float64, float64) {
	return (b[2] + b[3]) / 2, (b[0] + b[1]) / 2
}

// Union：合并两个包围盒；零值视为空
func (b BBox) Union(o BBox) BBox {
	if b == (BBox{}) {
		return o
	}
	if o == (BBox{}) {
		return b
	}
	out := b
	if o[0] < out[0] {
		out[0] = o[0]
	}
	if o[1] > out[1] {
		out[1] = o[1]
	}
	if o[2] < out[2] {
		out[2] = o[2]
	}
	if o[3] > out[3] {
		out[3] = o[3]
	}
	return out
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 4 {
		return fmt.Errorf("bbox: want 4 values, got %d", len(raw))
	}
	for i, r := range raw {
		s := strings.Trim(string(bytes.TrimSpace(r)), `"`)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("bbox[%d]: %w", i, err)
		}
		b[i] = f
	}
	return nil
}
