package strategy

import (
	"tradectl/internal/model"
	"tradectl/internal/param"
)

// Strategy 信号引擎。每次调用只读取传入的K线窗口，不持有K线数据。
type Strategy interface {
	// Name 持久化时使用的策略名
	Name() string
	// Generate 根据K线窗口给出信号；历史不足时返回 NEUTRAL，不返回错误
	Generate(window []model.Candle) model.SignalResult
	// Params 当前生效的全部参数，重新加载后可复现同样的信号
	Params() param.Values
	// Space 可优化参数的搜索空间
	Space() []param.Dimension
	// WarmUp 实盘需要保留的K线数量
	WarmUp() int
}
