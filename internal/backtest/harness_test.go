package backtest

import (
	"testing"
	"time"

	"tradectl/internal/model"
	"tradectl/internal/param"
	"tradectl/internal/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// scripted 按K线序号输出预设信号
type scripted struct {
	signals map[int]model.Signal
}

func (s *scripted) Name() string             { return "scripted" }
func (s *scripted) Params() param.Values     { return param.Values{} }
func (s *scripted) Space() []param.Dimension { return nil }
func (s *scripted) WarmUp() int              { return 15 }
func (s *scripted) Generate(window []model.Candle) model.SignalResult {
	last := window[len(window)-1]
	idx := int(last.OpenTime.Sub(start) / time.Hour)
	sig, ok := s.signals[idx]
	if !ok {
		sig = model.SignalNeutral
	}
	return model.SignalResult{Signal: sig, ReferencePrice: last.Close}
}

// candles 真实波幅为 2 的K线序列
func candles(closes []float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		open := start.Add(time.Duration(i) * time.Hour)
		out[i] = model.Candle{OpenTime: open, CloseTime: open.Add(time.Hour), Open: c, High: c + 1, Low: c - 1, Close: c, Confirmed: true}
	}
	return out
}

func series(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func TestRunSignalExits(t *testing.T) {
	closes := series(40, func(i int) float64 {
		switch {
		case i < 25:
			return 100
		case i < 35:
			return 110
		default:
			return 99
		}
	})
	strat := &scripted{signals: map[int]model.Signal{
		20: model.SignalLong,
		25: model.SignalCloseLong,
		30: model.SignalShort,
		35: model.SignalLong, // 反向信号平空，同一根K线不开新仓
		36: model.SignalLong,
	}}
	stop, err := risk.NewTrailingStop(param.Values{risk.ATRMultiplier: 100})
	require.NoError(t, err)

	res := Run(candles(closes), strat, stop, Options{WarmUp: 15, Window: 30})
	assert.Equal(t, 3, res.Trades)
	assert.Equal(t, 2, res.Wins)
	require.Len(t, res.Closes, 2)
	assert.InDelta(t, 0.1, res.Closes[0].Return, 1e-12)
	assert.InDelta(t, 0.1, res.Closes[1].Return, 1e-12)
	assert.InDelta(t, 1.21, res.Equity, 1e-12)
	assert.InDelta(t, 0.21, res.TotalReturn, 1e-12)
	assert.Equal(t, 0.0, res.MaxDrawdown)
	require.NotNil(t, res.OpenTrade)
	assert.Equal(t, model.Long, res.OpenTrade.Side)
	assert.False(t, stop.Active())
}

func TestRunStopBreachExitsAtStop(t *testing.T) {
	closes := series(30, func(i int) float64 {
		if i == 21 {
			return 95
		}
		return 100
	})
	strat := &scripted{signals: map[int]model.Signal{20: model.SignalLong, 21: model.SignalLong}}
	stop, err := risk.NewTrailingStop(nil)
	require.NoError(t, err)

	res := Run(candles(closes), strat, stop, Options{WarmUp: 15, Window: 30})
	require.Len(t, res.Closes, 1)
	c := res.Closes[0]
	assert.Equal(t, "stop", c.Reason)
	assert.Equal(t, 96.0, c.ExitPrice)
	assert.InDelta(t, -0.04, c.Return, 1e-12)
	assert.InDelta(t, 0.96, res.Equity, 1e-12)
	assert.InDelta(t, 0.04, res.MaxDrawdown, 1e-12)
	assert.Equal(t, 0, res.Wins)
}

func TestObjective(t *testing.T) {
	assert.Equal(t, PenaltyObjective, Objective(Result{Equity: 2, Trades: 4}, DefaultMinTrades))
	assert.InDelta(t, -0.25, Objective(Result{Equity: 1.25, Trades: 5}, DefaultMinTrades), 1e-12)
	assert.InDelta(t, 0.1, Objective(Result{Equity: 0.9, Trades: 9}, DefaultMinTrades), 1e-12)
}

func TestRunFlatSeriesIsPenalised(t *testing.T) {
	res, err := RunParams(candles(series(300, func(int) float64 { return 100 })), "ifr", param.Values{}, Options{})
	require.NoError(t, err)
	assert.Less(t, res.Trades, DefaultMinTrades)
	assert.Equal(t, 1.0, res.Equity)
	assert.Equal(t, PenaltyObjective, Objective(res, DefaultMinTrades))
}

func TestRunParamsRejectsUnknownStrategy(t *testing.T) {
	_, err := RunParams(nil, "macd", param.Values{}, Options{})
	assert.Error(t, err)
}
