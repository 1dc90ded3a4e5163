package geocoder

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// MaxRings：保留的最长环数量
	MaxRings = 3
	// MaxPoints：每个环保留的中间点数量上限
	MaxPoints = 150
)

// ErrBadPath：SVG 路径不是 "M x y L x y ... Z" 形式的环序列
var ErrBadPath = errors.New("bad svg path")

// 文档注释：简化边界 SVG 路径
// 背景：服务返回的多边形过于细致，不适合存储与渲染；只保留文本最长的 MaxRings 个环，每环保留起点与至多 MaxPoints 个等距抽样点。
// 约束：结果只由输入决定（等长环按原顺序，抽样为固定步长），同一输入总得到同一输出。
func SimplifyPath(svg string) (string, error) {
	parts := strings.Split(strings.TrimSpace(svg), "M ")
	if len(parts) < 2 || strings.TrimSpace(parts[0]) != "" {
		return "", ErrBadPath
	}
	rings := parts[1:]
	sort.SliceStable(rings, func(i, j int) bool { return len(rings[i]) > len(rings[j]) })
	if len(rings) > MaxRings {
		rings = rings[:MaxRings]
	}
	out := make([]string, 0, len(rings))
	for _, r := range rings {
		s, err := simplifyRing(strings.Fields(r))
		if err != nil {
			return "", err
		}
		out = append(out, s)
	}
	return strings.Join(out, " "), nil
}

// words 不含前导 "M"
func simplifyRing(words []string) (string, error) {
	n := len(words)
	if n < 4 || words[2] != "L" || words[n-1] != "Z" || (n-4)%2 != 0 {
		return "", fmt.Errorf("%w: %d words", ErrBadPath, n)
	}
	pts := (n - 4) / 2
	keep := pts
	if keep > MaxPoints {
		keep = MaxPoints
	}
	b := strings.Builder{}
	b.WriteString("M " + words[0] + " " + words[1] + " L")
	for i := 0; i < keep; i++ {
		j := 3 + 2*(i*pts/keep)
		b.WriteString(" " + words[j] + " " + words[j+1])
	}
	b.WriteString(" Z")
	return b.String(), nil
}
