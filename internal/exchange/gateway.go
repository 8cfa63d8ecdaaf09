package exchange

import (
	"context"
	"time"

	"tradectl/internal/model"
)

// Gateway 决策循环依赖的交易所能力，使用侧定义接口，实现侧（okx、paper）负责适配
type Gateway interface {
	// GetPosition 没有仓位时返回 nil, nil
	GetPosition(ctx context.Context, symbol string) (*model.Position, error)
	GetBalance(ctx context.Context) (model.Balance, error)
	PlaceOrder(ctx context.Context, order *model.Order) (*model.OrderResponse, error)
	// SetProtectiveStop 在交易所挂一个与本地移动止损等价的回调止损单，distance 为价格单位
	SetProtectiveStop(ctx context.Context, symbol string, side model.Side, qty, distance float64) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// KlineSource 历史K线，返回 before 之前最多 limit 根，按时间升序
type KlineSource interface {
	Klines(ctx context.Context, symbol, timeframe string, before time.Time, limit int) ([]model.Candle, error)
}

// CandleStream 实时K线推送，ctx 取消后关闭连接并关闭通道
type CandleStream interface {
	Subscribe(ctx context.Context, symbol, timeframe string) (<-chan model.Candle, error)
}
