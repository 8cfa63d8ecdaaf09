package strategy

import (
	"testing"
	"time"

	"tradectl/internal/errs"
	"tradectl/internal/model"
	"tradectl/internal/param"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(closes ...float64) []model.Candle {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{OpenTime: t0.Add(time.Duration(i) * 5 * time.Minute), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return out
}

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestIFRInsufficientHistory(t *testing.T) {
	s, err := NewIFR(nil)
	require.NoError(t, err)

	res := s.Generate(nil)
	assert.Equal(t, model.SignalNeutral, res.Signal)
	assert.Equal(t, 0.0, res.ReferencePrice)

	res = s.Generate(series(ramp(15, 100, -1)...))
	assert.Equal(t, model.SignalNeutral, res.Signal)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, 86.0, res.ReferencePrice)
}

func TestIFRDecliningClosesGoLong(t *testing.T) {
	s, err := NewIFR(nil)
	require.NoError(t, err)

	res := s.Generate(series(ramp(30, 200, -1)...))
	assert.Equal(t, model.SignalLong, res.Signal)
	assert.Greater(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
	assert.Equal(t, 171.0, res.ReferencePrice)
	assert.Less(t, res.Oscillator, 30.0)
}

func TestIFRRisingClosesGoShort(t *testing.T) {
	s, err := NewIFR(param.Values{OverboughtLevel: 75})
	require.NoError(t, err)

	res := s.Generate(series(ramp(30, 100, 1)...))
	assert.Equal(t, model.SignalShort, res.Signal)
	assert.InDelta(t, 1.0, res.Confidence, 1e-6)
}

func TestIFRNeutralBand(t *testing.T) {
	s, err := NewIFR(nil)
	require.NoError(t, err)

	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
		if i%2 == 1 {
			closes[i] = 101
		}
	}
	res := s.Generate(series(closes...))
	assert.Equal(t, model.SignalNeutral, res.Signal)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Greater(t, res.Oscillator, 30.0)
	assert.Less(t, res.Oscillator, 70.0)
}

func TestIFRVolatilityGate(t *testing.T) {
	s, err := NewIFR(param.Values{VolPeriod: 5, VolLookback: 10, VolMinMult: 0.8, VolMaxMult: 1.2})
	require.NoError(t, err)

	window := series(ramp(40, 200, -1)...)
	// 最后一根K线振幅放大，ATR 超出均值上限
	last := &window[len(window)-1]
	last.High += 30
	last.Low -= 30

	res := s.Generate(window)
	assert.Equal(t, model.SignalNeutral, res.Signal)
	assert.True(t, res.Gated)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Greater(t, res.Volatility, 0.0)
	assert.Less(t, res.Oscillator, 30.0)

	// 振幅平稳时不过滤
	res = s.Generate(series(ramp(40, 200, -1)...))
	assert.False(t, res.Gated)
	assert.Equal(t, model.SignalLong, res.Signal)
}

func TestIFRGateDisabledBySentinel(t *testing.T) {
	s, err := NewIFR(param.Values{VolMinMult: 0.8})
	require.NoError(t, err)
	assert.False(t, s.Config().GateEnabled())
	assert.Len(t, s.Space(), 4)
}

func TestIFRParamsRoundTrip(t *testing.T) {
	s, err := NewIFR(param.Values{RSIPeriod: 9, OversoldLevel: 25.5, VolMinMult: 0.5, VolMaxMult: 2})
	require.NoError(t, err)

	again, err := NewIFR(s.Params())
	require.NoError(t, err)
	assert.Equal(t, s.Config(), again.Config())

	window := series(ramp(60, 300, -0.7)...)
	assert.Equal(t, s.Generate(window), again.Generate(window))
}

func TestIFRWarmUp(t *testing.T) {
	s, _ := NewIFR(param.Values{RSIPeriod: 40})
	assert.Equal(t, 120, s.WarmUp())
	s, _ = NewIFR(nil)
	assert.Equal(t, 100, s.WarmUp())
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{"ifr", "IFRStrategy", "IFR", "rsi"} {
		s, err := New(name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, IFRName, s.Name())
	}

	_, err := New("macd", nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConfiguration))

	_, err = New("ifr", param.Values{OversoldLevel: 80, OverboughtLevel: 60})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConfiguration))
	assert.True(t, Known("ifr"))
	assert.False(t, Known("larry_williams"))
}
