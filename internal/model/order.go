package model

import (
	"time"
)

type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

type OrderType string

const (
	// 市价
	Market OrderType = "market"
	// 限价
	Limit OrderType = "limit"
)

// 保证金模式（cross / isolated）
type OrderMgnMode string

const (
	// 全仓模式
	OrderMgnModeCross OrderMgnMode = "cross"
	// 逐仓模式
	OrderMgnModeIsolated OrderMgnMode = "isolated"
)

type OrderResponse struct {
	OrderId       string
	ClientOrderID string
	Status        int
	Message       string
}

type Order struct {
	Symbol        string // BTC-USDT-SWAP
	Side          OrderSide
	PosSide       Side // 开平仓对应的持仓方向
	Price         float64
	Quantity      float64 // 以币为单位
	OrderType     OrderType
	ReduceOnly    bool // 只减仓，平仓单必须设置
	MgnMode       OrderMgnMode
	Leverage      int
	ClientOrderID string
	Strategy      string
	Comment       string
	Timestamp     time.Time
}

// OpenSide 开仓方向对应的下单方向
func OpenSide(side Side) OrderSide {
	if side == Short {
		return Sell
	}
	return Buy
}

// CloseSide 平仓时需要反向下单
func CloseSide(side Side) OrderSide {
	if side == Short {
		return Buy
	}
	return Sell
}

// OrderRecord 下单记录，落库用
type OrderRecord struct {
	ID            uint      `gorm:"column:id;primary_key;" json:"id"`
	OrderId       string    `gorm:"column:order_id;" json:"order_id"`
	ClientOrderID string    `gorm:"column:client_order_id" json:"client_order_id"`
	Symbol        string    `gorm:"column:symbol" json:"symbol"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`

	Side       OrderSide    `gorm:"column:side" json:"side"`
	PosSide    Side         `gorm:"column:pos_side" json:"pos_side"`
	Price      float64      `gorm:"column:price" json:"price"`
	Quantity   float64      `gorm:"column:quantity" json:"quantity"`
	OrderType  OrderType    `gorm:"column:order_type" json:"order_type"`
	ReduceOnly bool         `gorm:"column:reduce_only" json:"reduce_only"`
	MgnMode    OrderMgnMode `gorm:"column:mgn_mode" json:"mgn_mode"`
	Leverage   int          `gorm:"column:leverage" json:"leverage"`
	Strategy   string       `gorm:"column:strategy" json:"strategy"`
	Comment    string       `gorm:"column:comment" json:"comment"`
	Timestamp  time.Time    `gorm:"column:timestamp" json:"timestamp"` // 信号触发时间
}

func (OrderRecord) TableName() string {
	return "order_record"
}

func NewOrderRecord(order *Order, resp *OrderResponse) *OrderRecord {
	r := &OrderRecord{
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Side:          order.Side,
		PosSide:       order.PosSide,
		Price:         order.Price,
		Quantity:      order.Quantity,
		OrderType:     order.OrderType,
		ReduceOnly:    order.ReduceOnly,
		MgnMode:       order.MgnMode,
		Leverage:      order.Leverage,
		Strategy:      order.Strategy,
		Comment:       order.Comment,
		Timestamp:     order.Timestamp,
	}
	if resp != nil {
		r.OrderId = resp.OrderId
	}
	return r
}
