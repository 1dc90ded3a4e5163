package doc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownKind：列类型不在已知集合内
var ErrUnknownKind = errors.New("unknown heading kind")

// 文档注释：列值类型（封闭枚举）
// 背景：上传端按列推断类型，前端按类型选择可视化编码；以整数常量代替字符串分支，新增类型时由测试覆盖遍历暴露遗漏。
// 约束：JSON 中以名称表示；KindCount 之后的值均视为未知类型。
type Kind uint8

const (
	KindText Kind = iota
	KindInt
	KindFloat
	KindPercent
	KindEnum
	KindEmpty
	KindRegionMarker

	KindCount
)

var kindNames = [KindCount]string{
	KindText:         "text",
	KindInt:          "int",
	KindFloat:        "float",
	KindPercent:      "percent",
	KindEnum:         "enum",
	KindEmpty:        "empty",
	KindRegionMarker: "region-marker",
}

func (k Kind) String() string {
	if k < KindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Known 判断是否属于封闭集合
func (k Kind) Known() bool { return k < KindCount }

// Numeric：int/float 需要 max 归一化
func (k Kind) Numeric() bool { return k == KindInt || k == KindFloat }

// ParseKind：按名称解析；未知名称返回 ErrUnknownKind
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return KindCount, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	if !k.Known() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
	return json.Marshal(kindNames[k])
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = v
	return nil
}
