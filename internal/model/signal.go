package model

type Signal string

const (
	SignalLong       Signal = "LONG"
	SignalShort      Signal = "SHORT"
	SignalNeutral    Signal = "NEUTRAL"
	SignalCloseLong  Signal = "CLOSE_LONG"
	SignalCloseShort Signal = "CLOSE_SHORT"
)

// Entry 是否为开仓信号，返回对应方向
func (s Signal) Entry() (Side, bool) {
	switch s {
	case SignalLong:
		return Long, true
	case SignalShort:
		return Short, true
	}
	return "", false
}

// Closes 是否为平掉 side 方向仓位的信号
func (s Signal) Closes(side Side) bool {
	return (s == SignalCloseLong && side == Long) || (s == SignalCloseShort && side == Short)
}

// SignalResult 策略输出
type SignalResult struct {
	Signal         Signal  `json:"signal"`
	Confidence     float64 `json:"confidence"` // 0～1
	ReferencePrice float64 `json:"reference_price"`
	Oscillator     float64 `json:"oscillator"`
	Volatility     float64 `json:"volatility"`
	Gated          bool    `json:"gated"` // 被波动率过滤
}

func Neutral(price float64) SignalResult {
	return SignalResult{Signal: SignalNeutral, ReferencePrice: price}
}
