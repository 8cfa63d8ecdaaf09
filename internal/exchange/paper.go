package exchange

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"tradectl/internal/errs"
	"tradectl/internal/model"

	"github.com/google/uuid"
)

// PaperFill 模拟成交记录
type PaperFill struct {
	OrderID    string
	Side       model.OrderSide
	PosSide    model.Side
	Quantity   float64
	Price      float64
	ReduceOnly bool
	Time       time.Time
}

// Paper 内存模拟交易所：市价单按最新价格立即成交，用于模拟盘和测试
type Paper struct {
	mu       sync.Mutex
	balance  float64
	leverage int
	price    float64
	position *model.Position
	stops    map[string]*paperStop
	fills    []PaperFill
}

// paperStop 交易所端移动止损单：从最优价回撤 distance 时市价平仓
type paperStop struct {
	distance float64
	extreme  float64
}

func NewPaper(balance float64) *Paper {
	return &Paper{
		balance:  balance,
		leverage: 1,
		stops:    make(map[string]*paperStop),
	}
}

// SetPrice 更新最新成交价，模拟盘由行情驱动；已挂的移动止损单在这里触发
func (p *Paper) SetPrice(price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = price
	if p.position != nil {
		p.position.MarkPrice = price
		p.position.UnrealizedPnl = p.pnl(price)
		p.triggerStop(price)
	}
}

func (p *Paper) triggerStop(price float64) {
	pos := p.position
	st, ok := p.stops[pos.Symbol]
	if !ok {
		return
	}
	if pos.Side == model.Long {
		st.extreme = math.Max(st.extreme, price)
		if price > st.extreme-st.distance {
			return
		}
	} else {
		st.extreme = math.Min(st.extreme, price)
		if price < st.extreme+st.distance {
			return
		}
	}

	p.balance += p.pnl(price)
	p.fills = append(p.fills, PaperFill{
		OrderID:    uuid.NewString(),
		Side:       model.CloseSide(pos.Side),
		PosSide:    pos.Side,
		Quantity:   pos.Size,
		Price:      price,
		ReduceOnly: true,
		Time:       time.Now(),
	})
	p.position = nil
	delete(p.stops, pos.Symbol)
}

func (p *Paper) pnl(price float64) float64 {
	pos := p.position
	if pos == nil {
		return 0
	}
	if pos.Side == model.Long {
		return (price - pos.EntryPrice) * pos.Size
	}
	return (pos.EntryPrice - price) * pos.Size
}

func (p *Paper) GetPosition(ctx context.Context, symbol string) (*model.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.position == nil || p.position.Symbol != symbol {
		return nil, nil
	}
	pos := *p.position
	return &pos, nil
}

func (p *Paper) GetBalance(ctx context.Context) (model.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	used := 0.0
	if p.position != nil {
		used = p.position.Margin
	}
	return model.Balance{
		AvailableCapital: p.balance - used,
		WalletBalance:    p.balance,
		UsedMargin:       used,
	}, nil
}

func (p *Paper) PlaceOrder(ctx context.Context, order *model.Order) (*model.OrderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price := order.Price
	if order.OrderType == model.Market || price <= 0 {
		price = p.price
	}
	if price <= 0 {
		return nil, errs.OrderRejection("paper place order", fmt.Errorf("no market price for %s", order.Symbol))
	}
	if order.Quantity <= 0 {
		return nil, errs.OrderRejection("paper place order", fmt.Errorf("invalid quantity %v", order.Quantity))
	}

	if order.ReduceOnly {
		if p.position == nil || p.position.Side != order.PosSide {
			return nil, errs.OrderRejection("paper place order", fmt.Errorf("no %s position to reduce", order.PosSide))
		}
		qty := min(order.Quantity, p.position.Size)
		p.balance += p.pnl(price) * qty / p.position.Size
		p.position.Size -= qty
		if p.position.Size <= 1e-12 {
			p.position = nil
			delete(p.stops, order.Symbol)
		}
	} else {
		side := order.PosSide
		if side == "" {
			side = model.Long
			if order.Side == model.Sell {
				side = model.Short
			}
		}
		if p.position != nil && p.position.Side != side {
			return nil, errs.OrderRejection("paper place order", fmt.Errorf("opposite %s position open", p.position.Side))
		}
		margin := price * order.Quantity / float64(p.leverage)
		if p.position == nil {
			p.position = &model.Position{Symbol: order.Symbol, Side: side, Leverage: p.leverage, MgnMode: order.MgnMode}
		}
		pos := p.position
		pos.EntryPrice = (pos.EntryPrice*pos.Size + price*order.Quantity) / (pos.Size + order.Quantity)
		pos.Size += order.Quantity
		pos.Margin += margin
		pos.MarkPrice = price
	}

	orderID := uuid.NewString()
	p.fills = append(p.fills, PaperFill{
		OrderID:    orderID,
		Side:       order.Side,
		PosSide:    order.PosSide,
		Quantity:   order.Quantity,
		Price:      price,
		ReduceOnly: order.ReduceOnly,
		Time:       time.Now(),
	})
	return &model.OrderResponse{
		OrderId:       orderID,
		ClientOrderID: order.ClientOrderID,
		Status:        1,
		Message:       "Simulated order filled",
	}, nil
}

func (p *Paper) SetProtectiveStop(ctx context.Context, symbol string, side model.Side, qty, distance float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.position == nil {
		return fmt.Errorf("no open position for %s", symbol)
	}
	if distance <= 0 {
		return fmt.Errorf("invalid callback distance %v", distance)
	}
	p.stops[symbol] = &paperStop{distance: distance, extreme: p.price}
	return nil
}

func (p *Paper) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if leverage < 1 {
		return fmt.Errorf("invalid leverage %d", leverage)
	}
	p.leverage = leverage
	return nil
}

func (p *Paper) Fills() []PaperFill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PaperFill, len(p.fills))
	copy(out, p.fills)
	return out
}

// StopDistance 最近一次设置的回调距离
func (p *Paper) StopDistance(symbol string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.stops[symbol]
	if !ok {
		return 0, false
	}
	return st.distance, true
}
