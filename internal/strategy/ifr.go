package strategy

import (
	"fmt"
	"math"

	"tradectl/internal/indicator"
	"tradectl/internal/model"
	"tradectl/internal/param"
)

const IFRName = "IFRStrategy"

// IFR 参数名
const (
	RSIPeriod       = "rsi_period"
	OversoldLevel   = "oversold_level"
	OverboughtLevel = "overbought_level"
	VolPeriod       = "volatility_period"
	VolLookback     = "volatility_lookback"
	VolMinMult      = "volatility_min_multiplier"
	VolMaxMult      = "volatility_max_multiplier"
)

// confidenceSpan RSI 超出阈值多少点时置信度达到 1
const confidenceSpan = 20.0

type IFRConfig struct {
	RSIPeriod       int
	OversoldLevel   float64
	OverboughtLevel float64
	VolPeriod       int
	VolLookback     int
	// 小于等于 0 表示关闭该侧波动率过滤
	VolMinMultiplier float64
	VolMaxMultiplier float64
}

func DefaultIFRConfig() IFRConfig {
	return IFRConfig{
		RSIPeriod:       14,
		OversoldLevel:   30,
		OverboughtLevel: 70,
		VolPeriod:       14,
		VolLookback:     20,
	}
}

// GateEnabled 上下限都配置时才启用波动率过滤
func (c IFRConfig) GateEnabled() bool {
	return c.VolMinMultiplier > 0 && c.VolMaxMultiplier > 0
}

func (c IFRConfig) validate() error {
	if c.RSIPeriod < 1 {
		return fmt.Errorf("%s must be >= 1, got %d", RSIPeriod, c.RSIPeriod)
	}
	if c.OversoldLevel >= c.OverboughtLevel {
		return fmt.Errorf("%s (%.2f) must be below %s (%.2f)", OversoldLevel, c.OversoldLevel, OverboughtLevel, c.OverboughtLevel)
	}
	if c.VolPeriod < 1 {
		return fmt.Errorf("%s must be >= 1, got %d", VolPeriod, c.VolPeriod)
	}
	if c.GateEnabled() && c.VolMinMultiplier > c.VolMaxMultiplier {
		return fmt.Errorf("%s must not exceed %s", VolMinMult, VolMaxMult)
	}
	if c.GateEnabled() && c.VolLookback < 1 {
		return fmt.Errorf("%s must be >= 1 when the volatility gate is on", VolLookback)
	}
	return nil
}

// IFR 基于 RSI（葡语 IFR）的均值回归信号，可叠加 ATR 波动率过滤
type IFR struct {
	cfg IFRConfig
}

func NewIFR(params param.Values) (*IFR, error) {
	d := DefaultIFRConfig()
	cfg := IFRConfig{
		RSIPeriod:        params.Int(RSIPeriod, d.RSIPeriod),
		OversoldLevel:    params.Float(OversoldLevel, d.OversoldLevel),
		OverboughtLevel:  params.Float(OverboughtLevel, d.OverboughtLevel),
		VolPeriod:        params.Int(VolPeriod, d.VolPeriod),
		VolLookback:      params.Int(VolLookback, d.VolLookback),
		VolMinMultiplier: params.Float(VolMinMult, d.VolMinMultiplier),
		VolMaxMultiplier: params.Float(VolMaxMult, d.VolMaxMultiplier),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &IFR{cfg: cfg}, nil
}

func (s *IFR) Name() string { return IFRName }

func (s *IFR) Config() IFRConfig { return s.cfg }

func (s *IFR) WarmUp() int {
	n := s.cfg.RSIPeriod * 3
	if s.cfg.GateEnabled() {
		// 过滤需要 lookback 个 ATR 样本
		n = max(n, s.cfg.VolPeriod+s.cfg.VolLookback+1)
	}
	return max(n, 100)
}

func (s *IFR) Params() param.Values {
	return param.Values{
		RSIPeriod:       float64(s.cfg.RSIPeriod),
		OversoldLevel:   s.cfg.OversoldLevel,
		OverboughtLevel: s.cfg.OverboughtLevel,
		VolPeriod:       float64(s.cfg.VolPeriod),
		VolLookback:     float64(s.cfg.VolLookback),
		VolMinMult:      s.cfg.VolMinMultiplier,
		VolMaxMult:      s.cfg.VolMaxMultiplier,
	}
}

func (s *IFR) Space() []param.Dimension {
	dims := []param.Dimension{
		{Name: RSIPeriod, Low: 5, High: 30, Integer: true},
		{Name: OversoldLevel, Low: 20, High: 40},
		{Name: OverboughtLevel, Low: 60, High: 80},
		{Name: VolPeriod, Low: 10, High: 30, Integer: true},
	}
	if s.cfg.GateEnabled() {
		dims = append(dims,
			param.Dimension{Name: VolMinMult, Low: 0.3, High: 1.0},
			param.Dimension{Name: VolMaxMult, Low: 1.0, High: 3.0},
		)
	}
	return dims
}

func (s *IFR) Generate(window []model.Candle) model.SignalResult {
	if len(window) < s.cfg.RSIPeriod+2 {
		if len(window) == 0 {
			return model.Neutral(0)
		}
		return model.Neutral(window[len(window)-1].Close)
	}

	closes := model.Closes(window)
	price := closes[len(closes)-1]
	rsi := indicator.RSI(closes, s.cfg.RSIPeriod)
	current := rsi[len(rsi)-1]

	res := model.Neutral(price)
	res.Oscillator = current

	atr := indicator.ATR(window, s.cfg.VolPeriod)
	if len(atr) > 0 {
		res.Volatility = atr[len(atr)-1]
	}
	if s.cfg.GateEnabled() && len(atr) >= s.cfg.VolLookback {
		mean := indicator.Mean(atr[len(atr)-s.cfg.VolLookback:])
		if res.Volatility < mean*s.cfg.VolMinMultiplier || res.Volatility > mean*s.cfg.VolMaxMultiplier {
			res.Gated = true
			return res
		}
	}

	switch {
	case current <= s.cfg.OversoldLevel:
		res.Signal = model.SignalLong
		res.Confidence = math.Min(1, (s.cfg.OversoldLevel-current)/confidenceSpan)
	case current >= s.cfg.OverboughtLevel:
		res.Signal = model.SignalShort
		res.Confidence = math.Min(1, (current-s.cfg.OverboughtLevel)/confidenceSpan)
	}
	return res
}
