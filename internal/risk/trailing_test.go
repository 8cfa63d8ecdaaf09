package risk

import (
	"testing"
	"time"

	"tradectl/internal/model"
	"tradectl/internal/param"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flat 生成 n 根 TR 恒为 rng 的K线，ATR 即为 rng
func flat(n int, rng float64) []model.Candle {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{OpenTime: t0.Add(time.Duration(i) * time.Minute), High: 100 + rng/2, Low: 100 - rng/2, Close: 100}
	}
	return out
}

func newStop(t *testing.T, mult float64, period int) *TrailingStop {
	ts, err := NewTrailingStop(param.Values{ATRMultiplier: mult, ATRPeriod: float64(period)})
	require.NoError(t, err)
	return ts
}

func TestTrailingStopLongExample(t *testing.T) {
	ts := newStop(t, 2, 14)
	w := flat(30, 2)

	ts.Activate(100, model.Long, w)
	require.True(t, ts.Active())
	assert.InDelta(t, 96, ts.State().CurrentStop, 1e-9)

	_, hit := ts.Update(110, w)
	assert.False(t, hit)
	assert.InDelta(t, 106, ts.State().CurrentStop, 1e-9)
	assert.Equal(t, 110.0, ts.State().FavorableExtreme)

	// 回落但仍在止损之上，止损不下移
	_, hit = ts.Update(107, w)
	assert.False(t, hit)
	assert.InDelta(t, 106, ts.State().CurrentStop, 1e-9)

	stop, hit := ts.Update(106, w)
	assert.True(t, hit)
	assert.InDelta(t, 106, stop, 1e-9)
}

func TestTrailingStopShort(t *testing.T) {
	ts := newStop(t, 2, 14)
	w := flat(30, 2)

	ts.Activate(100, model.Short, w)
	assert.InDelta(t, 104, ts.State().CurrentStop, 1e-9)

	_, hit := ts.Update(90, w)
	assert.False(t, hit)
	assert.InDelta(t, 94, ts.State().CurrentStop, 1e-9)

	_, hit = ts.Update(93, w)
	assert.False(t, hit)

	stop, hit := ts.Update(94.5, w)
	assert.True(t, hit)
	assert.InDelta(t, 94, stop, 1e-9)
}

func TestTrailingStopRatchet(t *testing.T) {
	long := newStop(t, 3, 10)
	short := newStop(t, 3, 10)
	long.Activate(100, model.Long, flat(20, 1))
	short.Activate(100, model.Short, flat(20, 1))

	prevLong, prevShort := long.State().CurrentStop, short.State().CurrentStop
	// 波动率忽大忽小，止损只能单向移动
	for i, rng := range []float64{1, 5, 0.5, 8, 0.2, 3, 12, 0.1} {
		w := flat(20, rng)
		long.Update(100+float64(i), w)
		short.Update(100-float64(i), w)

		require.GreaterOrEqual(t, long.State().CurrentStop, prevLong)
		require.LessOrEqual(t, short.State().CurrentStop, prevShort)
		prevLong, prevShort = long.State().CurrentStop, short.State().CurrentStop
	}
}

func TestTrailingStopWithoutHistory(t *testing.T) {
	ts := newStop(t, 2, 14)

	ts.Activate(100, model.Long, flat(10, 2))
	assert.Equal(t, 100.0, ts.State().CurrentStop)
	assert.Equal(t, 0.0, ts.StopDistance(flat(10, 2)))

	// ATR 仍不可用，不做任何事
	_, hit := ts.Update(99, flat(10, 2))
	assert.False(t, hit)
	assert.Equal(t, 100.0, ts.State().CurrentStop)

	// 第一次拿到 ATR，允许从开仓价放宽到 96
	_, hit = ts.Update(100, flat(20, 2))
	assert.False(t, hit)
	assert.InDelta(t, 96, ts.State().CurrentStop, 1e-9)

	// 之后不再放宽
	ts.Update(100, flat(20, 4))
	assert.InDelta(t, 96, ts.State().CurrentStop, 1e-9)
}

func TestTrailingStopLifecycle(t *testing.T) {
	ts := newStop(t, 2, 14)
	_, hit := ts.Update(100, flat(30, 2))
	assert.False(t, hit)
	assert.Nil(t, ts.State())

	ts.Activate(100, model.Long, flat(30, 2))
	assert.InDelta(t, 4, ts.StopDistance(flat(30, 2)), 1e-9)
	ts.Deactivate()
	assert.False(t, ts.Active())
	assert.Nil(t, ts.State())
}

func TestTrailingStopParams(t *testing.T) {
	ts := newStop(t, 2.5, 12)
	again, err := NewTrailingStop(ts.Params())
	require.NoError(t, err)
	assert.Equal(t, ts.Config(), again.Config())
	assert.Len(t, ts.Space(), 2)

	_, err = NewTrailingStop(param.Values{ATRMultiplier: 0})
	assert.Error(t, err)
}
