// 包 breakdown：按列类型生成选中行的统计面板条目，并绘制到场景面板
package breakdown

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"mapvis/internal/doc"
)

// ErrUnknownKind 与 doc.ErrUnknownKind 相同，便于调用方按任一包判断
var ErrUnknownKind = doc.ErrUnknownKind

// 文档注释：面板条目
// 背景：一个条目对应一列；BarPercent 为相对轨道宽度的百分比，不做上限截断（超过 100 时条形溢出轨道）。
type Entry struct {
	Heading    int
	Label      string
	Kind       doc.Kind
	Text       string
	HasBar     bool
	BarPercent float64
	Active     bool
}

// 文档注释：生成条目
// 参数：row 为选中行原始值，headings 为数据集列元数据（按列顺序），active 为当前激活列下标（-1 表示无）。
// 返回：跳过 region-marker 与 empty 列后的条目；遇到未知类型立即返回 ErrUnknownKind，不静默跳过。
func Build(row []doc.Value, headings []doc.Heading, active int) ([]Entry, error) {
	out := make([]Entry, 0, len(headings))
	for i, h := range headings {
		var v string
		if i < len(row) {
			v = string(row[i])
		}
		e := Entry{Heading: i, Label: h.Label, Kind: h.Kind, Active: i == active}
		switch h.Kind {
		case doc.KindRegionMarker, doc.KindEmpty:
			continue
		case doc.KindText, doc.KindEnum:
			e.Text = v
		case doc.KindInt, doc.KindFloat:
			e.Text = v
			e.HasBar = true
			e.BarPercent = numericPercent(v, h.Max)
		case doc.KindPercent:
			e.Text, e.BarPercent = percentValue(v)
			e.HasBar = true
		default:
			return nil, fmt.Errorf("%w: heading %d %q is %s", ErrUnknownKind, i, h.Label, h.Kind)
		}
		out = append(out, e)
	}
	return out, nil
}

// numericPercent：去掉千分位后除以 max；max 缺失、为 0 或 NaN 以及值无法解析时为 0
func numericPercent(v string, max *float64) float64 {
	if max == nil || math.IsNaN(*max) || math.IsInf(*max, 0) || *max == 0 {
		return 0
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v), ",", ""), 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return f / *max * 100
}

var leadingNumber = regexp.MustCompile(`^\s*[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`)

// percentValue：标签去掉千分位后截断小数部分（非四舍五入）；条宽取未去千分位的原始值的数值前缀
func percentValue(v string) (string, float64) {
	bar, ok := leadingFloat(v)
	if !ok {
		return v, 0
	}
	f, ok := leadingFloat(strings.ReplaceAll(v, ",", ""))
	if !ok {
		f = bar
	}
	t := math.Trunc(f)
	if t == 0 {
		// -0.5 截断为 -0
		t = 0
	}
	return strconv.FormatFloat(t, 'f', -1, 64) + "%", bar
}

func leadingFloat(v string) (float64, bool) {
	m := leadingNumber.FindString(v)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	return f, err == nil
}
