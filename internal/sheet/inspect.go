package sheet

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"mapvis/internal/doc"
)

// EnumRatio：不同取值数 / 行数 低于该比例的文本列提升为枚举
const EnumRatio = 0.5

// 文档注释：单元格类型猜测
// 背景：去掉千分位逗号与百分号后为（可带符号的）十进制数即视为数值；含 % 的数值为百分比，含小数点为浮点。
func GuessKind(v string) doc.Kind {
	v = strings.TrimSpace(v)
	if v == "" {
		return doc.KindEmpty
	}
	num := strings.NewReplacer("%", "", ",", "").Replace(v)
	if !isNumber(num) {
		return doc.KindText
	}
	switch {
	case strings.Contains(v, "%"):
		return doc.KindPercent
	case strings.Contains(v, "."):
		return doc.KindFloat
	}
	return doc.KindInt
}

func isNumber(s string) bool {
	s = strings.TrimPrefix(s, "-")
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// kindOrder：多数票平局时的确定性顺序
var kindOrder = [...]doc.Kind{doc.KindInt, doc.KindFloat, doc.KindPercent, doc.KindText, doc.KindEmpty}

// 文档注释：列检查
// 背景：按单元格猜测的多数票确定列类型；文本列在不同取值占比低于 EnumRatio 时提升为枚举并给出排序后的选项；int/float 列给出 min/max。
// 约束：values 为空时返回 empty 类型；无法解析的单元格不参与 min/max。
func Inspect(label string, values []string) doc.Heading {
	h := doc.Heading{Label: label, Kind: doc.KindEmpty}
	if len(values) == 0 {
		return h
	}
	votes := map[doc.Kind]int{}
	for _, v := range values {
		votes[GuessKind(v)]++
	}
	best := -1
	for _, k := range kindOrder {
		if votes[k] > best {
			best, h.Kind = votes[k], k
		}
	}

	if h.Kind == doc.KindText {
		seen := map[string]struct{}{}
		for _, v := range values {
			seen[v] = struct{}{}
		}
		if float64(len(seen))/float64(len(values)) < EnumRatio {
			h.Kind = doc.KindEnum
			for v := range seen {
				h.Options = append(h.Options, v)
			}
			sort.Strings(h.Options)
		}
	}

	if h.Kind.Numeric() {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range values {
			f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v), ",", ""), 64)
			if err != nil || math.IsNaN(f) {
				continue
			}
			lo, hi = math.Min(lo, f), math.Max(hi, f)
		}
		if !math.IsInf(lo, 1) {
			h.Min, h.Max = &lo, &hi
		}
	}
	return h
}

// 文档注释：生成全部列元数据
// 约束：第一列固定作为区域标记列（地理编码查询词），不参与统计面板。
func (s *Sheet) Inspect() []doc.Heading {
	out := make([]doc.Heading, len(s.Headings))
	for i, label := range s.Headings {
		if i == 0 {
			out[i] = doc.Heading{Label: label, Kind: doc.KindRegionMarker}
			continue
		}
		out[i] = Inspect(label, s.Column(i))
	}
	return out
}

// Queries：每行的查询词（第一列，去除首尾空白）
func (s *Sheet) Queries() []string {
	out := s.Column(0)
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}
