package risk

import (
	"tradectl/internal/model"
	"tradectl/pkg/logger"

	"github.com/shopspring/decimal"
)

type SizerConfig struct {
	PositionSizePercent float64 // 每笔使用可用资金的百分比 (0-100)
	MinOrderSize        float64 // 交易所最小下单量
	QtyStep             float64 // 下单数量步长
	MinAvailable        float64 // 可用余额低于该值时改用钱包余额
	WalletFallback      float64 // 使用钱包余额时的比例
}

func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		PositionSizePercent: 10,
		MinOrderSize:        0.001,
		QtyStep:             0.001,
		MinAvailable:        1.0,
		WalletFallback:      0.95,
	}
}

// Sizer 根据资金比例和杠杆计算下单数量
type Sizer struct {
	cfg SizerConfig
}

func NewSizer(cfg SizerConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size 返回以币为单位的下单数量，0 表示不应下单
func (s *Sizer) Size(balance model.Balance, price float64, leverage int) float64 {
	if price <= 0 {
		logger.Warnf("invalid entry price %v, skip sizing", price)
		return 0
	}
	if leverage < 1 {
		leverage = 1
	}

	available := balance.AvailableCapital
	if available < s.cfg.MinAvailable {
		// 部分账户模式下 available 会短暂为 0，退回钱包余额
		logger.Warnf("available balance %.4f too low, fall back to %.0f%% of wallet %.4f",
			available, s.cfg.WalletFallback*100, balance.WalletBalance)
		available = balance.WalletBalance * s.cfg.WalletFallback
	}

	capital := decimal.NewFromFloat(available).Mul(decimal.NewFromFloat(s.cfg.PositionSizePercent)).Div(decimal.NewFromInt(100))
	qty := capital.Mul(decimal.NewFromInt(int64(leverage))).Div(decimal.NewFromFloat(price))

	// 先按步长取整（四舍五入，远离零），再和最小下单量比较
	step := decimal.NewFromFloat(s.cfg.QtyStep)
	if step.IsPositive() {
		qty = qty.Div(step).Round(0).Mul(step)
	}
	if qty.LessThan(decimal.NewFromFloat(s.cfg.MinOrderSize)) || !qty.IsPositive() {
		logger.Warnf("computed quantity %s below minimum %v (capital %s, price %v)",
			qty.StringFixed(6), s.cfg.MinOrderSize, capital.StringFixed(2), price)
		return 0
	}

	rounded, _ := qty.Float64()
	logger.Infof("position size: capital=%s leverage=%d price=%v qty=%v", capital.StringFixed(2), leverage, price, rounded)
	return rounded
}
