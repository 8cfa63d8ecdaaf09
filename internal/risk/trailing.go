package risk

import (
	"fmt"
	"math"

	"tradectl/internal/indicator"
	"tradectl/internal/model"
	"tradectl/internal/param"
)

const (
	ATRMultiplier = "atr_multiplier"
	ATRPeriod     = "atr_period"
)

type TrailingConfig struct {
	Multiplier float64
	Period     int
}

func DefaultTrailingConfig() TrailingConfig {
	return TrailingConfig{Multiplier: 2.0, Period: 14}
}

// TrailingStop 基于 ATR 的移动止损，一个实例只服务一个持仓。
// 状态只在 Activate 与 Deactivate 之间存在。
type TrailingStop struct {
	cfg   TrailingConfig
	state *model.TrailingStopState
	// armed 为 false 表示激活时没有足够历史，止损暂时等于开仓价
	armed bool
}

func NewTrailingStop(params param.Values) (*TrailingStop, error) {
	d := DefaultTrailingConfig()
	cfg := TrailingConfig{
		Multiplier: params.Float(ATRMultiplier, d.Multiplier),
		Period:     params.Int(ATRPeriod, d.Period),
	}
	if cfg.Multiplier <= 0 {
		return nil, fmt.Errorf("%s must be > 0, got %v", ATRMultiplier, cfg.Multiplier)
	}
	if cfg.Period < 1 {
		return nil, fmt.Errorf("%s must be >= 1, got %d", ATRPeriod, cfg.Period)
	}
	return &TrailingStop{cfg: cfg}, nil
}

func (t *TrailingStop) Config() TrailingConfig { return t.cfg }

func (t *TrailingStop) Params() param.Values {
	return param.Values{
		ATRMultiplier: t.cfg.Multiplier,
		ATRPeriod:     float64(t.cfg.Period),
	}
}

func (t *TrailingStop) Space() []param.Dimension {
	return []param.Dimension{
		{Name: ATRMultiplier, Low: 1.0, High: 4.0},
		{Name: ATRPeriod, Low: 10, High: 20, Integer: true},
	}
}

// distance 止损距离，ATR 不可用时返回 false
func (t *TrailingStop) distance(window []model.Candle) (float64, bool) {
	atr, ok := indicator.LastATR(window, t.cfg.Period)
	if !ok || atr <= 0 {
		return 0, false
	}
	return atr * t.cfg.Multiplier, true
}

// Activate 开仓后启动移动止损
func (t *TrailingStop) Activate(entry float64, side model.Side, window []model.Candle) {
	stop := entry
	dist, ok := t.distance(window)
	if ok {
		stop = offset(entry, side, dist)
	}
	t.armed = ok
	t.state = &model.TrailingStopState{
		Active:           true,
		FavorableExtreme: entry,
		CurrentStop:      stop,
		EntryPrice:       entry,
		Side:             side,
	}
}

// Update 用最新价格推进止损。触发时返回止损价和 true，调用方需要平仓
func (t *TrailingStop) Update(price float64, window []model.Candle) (float64, bool) {
	if t.state == nil {
		return 0, false
	}
	dist, ok := t.distance(window)
	if !ok {
		return 0, false
	}

	s := t.state
	if s.Side == model.Long {
		s.FavorableExtreme = math.Max(s.FavorableExtreme, price)
	} else {
		s.FavorableExtreme = math.Min(s.FavorableExtreme, price)
	}

	candidate := offset(s.FavorableExtreme, s.Side, dist)
	switch {
	case !t.armed:
		// 激活时没有 ATR，第一次更新允许直接设置止损
		s.CurrentStop = candidate
		t.armed = true
	case s.Side == model.Long && candidate > s.CurrentStop:
		s.CurrentStop = candidate
	case s.Side == model.Short && candidate < s.CurrentStop:
		s.CurrentStop = candidate
	}

	if (s.Side == model.Long && price <= s.CurrentStop) || (s.Side == model.Short && price >= s.CurrentStop) {
		return s.CurrentStop, true
	}
	return 0, false
}

func (t *TrailingStop) Deactivate() {
	t.state = nil
	t.armed = false
}

func (t *TrailingStop) Active() bool {
	return t.state != nil
}

// State 返回状态副本，未激活时为 nil
func (t *TrailingStop) State() *model.TrailingStopState {
	if t.state == nil {
		return nil
	}
	s := *t.state
	return &s
}

// StopDistance 交易所移动止损单使用的回调距离（价格单位），ATR 不可用时为 0
func (t *TrailingStop) StopDistance(window []model.Candle) float64 {
	dist, _ := t.distance(window)
	return dist
}

func offset(price float64, side model.Side, dist float64) float64 {
	if side == model.Long {
		return price - dist
	}
	return price + dist
}
