package optimize

import (
	"context"
	"math"
	"testing"
	"time"

	"tradectl/internal/backtest"
	"tradectl/internal/errs"
	"tradectl/internal/model"
	"tradectl/internal/param"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wave 正弦震荡的小时K线，RSI 会反复穿越阈值
func wave(n int) []model.Candle {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	prev := 100.0
	for i := range out {
		c := 100 + 10*math.Sin(float64(i)/6)
		open := start.Add(time.Duration(i) * time.Hour)
		out[i] = model.Candle{
			OpenTime: open, CloseTime: open.Add(time.Hour),
			Open: prev, High: math.Max(prev, c) + 0.5, Low: math.Min(prev, c) - 0.5, Close: c,
			Confirmed: true,
		}
		prev = c
	}
	return out
}

func smallConfig() Config {
	return Config{Calls: 8, Initial: 4, Candidates: 200, Workers: 2}
}

func TestOptimizerSpace(t *testing.T) {
	o, err := New(smallConfig())
	require.NoError(t, err)

	names := map[string]bool{}
	for _, d := range o.Space() {
		names[d.Name] = true
	}
	assert.True(t, names[param.StrategyPrefix+"rsi_period"])
	assert.True(t, names[param.TrailingPrefix+"atr_multiplier"])
	assert.False(t, names[param.StrategyPrefix+"volatility_min_multiplier"])

	gated, err := New(Config{StrategyParams: param.Values{"volatility_min_multiplier": 0.5, "volatility_max_multiplier": 2}})
	require.NoError(t, err)
	assert.Len(t, gated.Space(), len(o.Space())+2)
}

func TestOptimizerRun(t *testing.T) {
	candles := wave(400)
	o, err := New(smallConfig())
	require.NoError(t, err)

	res, err := o.Run(context.Background(), candles)
	require.NoError(t, err)
	require.Len(t, res.History, 8)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "IFRStrategy", res.Strategy)

	lowest := math.Inf(1)
	for _, e := range res.History {
		lowest = math.Min(lowest, e.Objective)
	}
	assert.Equal(t, lowest, res.Objective)
	assert.Equal(t, res.Objective, backtest.Objective(res.Metrics, backtest.DefaultMinTrades))

	for _, d := range o.Space() {
		v, ok := res.Best[d.Name]
		require.True(t, ok, d.Name)
		assert.GreaterOrEqual(t, v, d.Low, d.Name)
		assert.LessOrEqual(t, v, d.High, d.Name)
		if d.Integer {
			assert.Equal(t, math.Round(v), v, d.Name)
		}
	}
	assert.Contains(t, res.StrategyParams(), "rsi_period")
	assert.Contains(t, res.TrailingParams(), "atr_period")
}

func TestOptimizerDeterministic(t *testing.T) {
	candles := wave(300)
	a, err := New(smallConfig())
	require.NoError(t, err)
	b, err := New(smallConfig())
	require.NoError(t, err)

	ra, err := a.Run(context.Background(), candles)
	require.NoError(t, err)
	rb, err := b.Run(context.Background(), candles)
	require.NoError(t, err)
	assert.Equal(t, ra.Best, rb.Best)
	assert.Equal(t, ra.History, rb.History)
}

func TestOptimizerCancelled(t *testing.T) {
	o, err := New(smallConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = o.Run(ctx, wave(200))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimizerUnknownStrategy(t *testing.T) {
	_, err := New(Config{Strategy: "macd"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConfiguration))
}
