// Package metrics Prometheus 指标，由 internal/server 在 /metrics 暴露
//
//   - tradectl_orders_total{kind,side}       下单次数（open|close）
//   - tradectl_signals_total{signal}         每个决策周期的信号
//   - tradectl_stop_breaches_total{side}     移动止损触发次数
//   - tradectl_order_rejections_total        交易所拒单
//   - tradectl_errors_total{kind}            决策周期错误，按错误类型
//   - tradectl_oscillator / tradectl_stop_price / tradectl_position_size 最新快照
//   - tradectl_optimizer_best_objective      优化器当前最优目标值
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradectl_orders_total",
			Help: "Orders placed",
		},
		[]string{"kind", "side"},
	)

	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradectl_signals_total",
			Help: "Signals produced per decision cycle",
		},
		[]string{"signal"},
	)

	StopBreaches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradectl_stop_breaches_total",
			Help: "Trailing stop breaches",
		},
		[]string{"side"},
	)

	OrderRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradectl_order_rejections_total",
			Help: "Orders rejected by the venue",
		},
	)

	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradectl_errors_total",
			Help: "Decision cycle errors by kind",
		},
		[]string{"kind"},
	)

	Oscillator = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradectl_oscillator",
			Help: "Latest RSI value",
		},
	)

	StopPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradectl_stop_price",
			Help: "Current trailing stop price, 0 when inactive",
		},
	)

	PositionSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradectl_position_size",
			Help: "Open position size in coins",
		},
		[]string{"side"},
	)

	OptimizerBest = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradectl_optimizer_best_objective",
			Help: "Best objective value found so far",
		},
	)

	OptimizerEvaluations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradectl_optimizer_evaluations_total",
			Help: "Backtest evaluations run by the optimizer",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Orders,
		Signals,
		StopBreaches,
		OrderRejections,
		Errors,
		Oscillator,
		StopPrice,
		PositionSize,
		OptimizerBest,
		OptimizerEvaluations,
	)
}
