// Package param 描述可优化参数的取值空间，以及策略/移动止损参数在联合空间中的命名。
package param

import (
	"math"
	"sort"
	"strings"
)

const (
	StrategyPrefix = "strategy__"
	TrailingPrefix = "trailing_stop__"
)

// Dimension 一个可搜索的参数，Integer 表示整数维度
type Dimension struct {
	Name    string  `json:"name"`
	Low     float64 `json:"low"`
	High    float64 `json:"high"`
	Integer bool    `json:"integer"`
}

// Clamp 把取值限制在边界内，整数维度四舍五入
func (d Dimension) Clamp(v float64) float64 {
	if d.Integer {
		v = math.Round(v)
	}
	return math.Min(math.Max(v, d.Low), d.High)
}

// Scale 映射到 [0,1]
func (d Dimension) Scale(v float64) float64 {
	if d.High == d.Low {
		return 0
	}
	return (v - d.Low) / (d.High - d.Low)
}

// Unscale 从 [0,1] 还原并 Clamp
func (d Dimension) Unscale(u float64) float64 {
	return d.Clamp(d.Low + u*(d.High-d.Low))
}

// Values 参数名到数值
type Values map[string]float64

func (v Values) Float(name string, def float64) float64 {
	if x, ok := v[name]; ok {
		return x
	}
	return def
}

func (v Values) Int(name string, def int) int {
	if x, ok := v[name]; ok {
		return int(math.Round(x))
	}
	return def
}

func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// Keys 排序后的参数名，日志和比较时保持稳定顺序
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Join 合并策略与移动止损的空间，名称加前缀
func Join(strategy, trailing []Dimension) []Dimension {
	out := make([]Dimension, 0, len(strategy)+len(trailing))
	for _, d := range strategy {
		d.Name = StrategyPrefix + d.Name
		out = append(out, d)
	}
	for _, d := range trailing {
		d.Name = TrailingPrefix + d.Name
		out = append(out, d)
	}
	return out
}

// Split 把联合空间的点拆回两组参数，未知前缀忽略
func Split(point Values) (strategy, trailing Values) {
	strategy, trailing = Values{}, Values{}
	for k, x := range point {
		switch {
		case strings.HasPrefix(k, StrategyPrefix):
			strategy[strings.TrimPrefix(k, StrategyPrefix)] = x
		case strings.HasPrefix(k, TrailingPrefix):
			trailing[strings.TrimPrefix(k, TrailingPrefix)] = x
		}
	}
	return
}

// Point 把向量按维度顺序转换为参数点
func Point(dims []Dimension, x []float64) Values {
	out := make(Values, len(dims))
	for i, d := range dims {
		out[d.Name] = d.Clamp(x[i])
	}
	return out
}
