package model

// Side 持仓方向
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// Position 交易所的真实仓位。没有仓位时用 nil 表示，不使用空结构体
type Position struct {
	Symbol        string       `json:"symbol"`
	Side          Side         `json:"side"`
	Size          float64      `json:"size"` // 以币为单位
	EntryPrice    float64      `json:"entry_price"`
	MarkPrice     float64      `json:"mark_price"`
	Leverage      int          `json:"leverage"`
	UnrealizedPnl float64      `json:"unrealized_pnl"`
	Margin        float64      `json:"margin"`
	MgnMode       OrderMgnMode `json:"mgn_mode"`
}

func (p *Position) Open() bool {
	return p != nil && p.Size > 0
}

// Balance 账户余额（USDT）
type Balance struct {
	AvailableCapital float64 `json:"available_capital"`
	WalletBalance    float64 `json:"wallet_balance"`
	UsedMargin       float64 `json:"used_margin"`
}

// TrailingStopState 移动止损状态，仅在持仓期间存在
type TrailingStopState struct {
	Active           bool    `json:"active"`
	FavorableExtreme float64 `json:"favorable_extreme"` // 多单记录最高价，空单记录最低价
	CurrentStop      float64 `json:"current_stop"`
	EntryPrice       float64 `json:"entry_price"`
	Side             Side    `json:"side"`
}
