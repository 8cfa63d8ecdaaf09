package execution

import (
	"context"
	"time"

	"tradectl/internal/errs"
	"tradectl/internal/exchange"
	"tradectl/internal/journal"
	"tradectl/internal/metrics"
	"tradectl/internal/model"
	"tradectl/internal/position"
	"tradectl/internal/risk"
	"tradectl/pkg/logger"
)

type Action string

const (
	ActionNone       Action = "none"
	ActionOpen       Action = "open"
	ActionClose      Action = "close"
	ActionStopBreach Action = "stop_breach"
	ActionSkipped    Action = "skipped" // 下单数量为 0
)

// Report 一个决策周期的结果
type Report struct {
	Action    Action
	Side      model.Side
	Quantity  float64
	Price     float64
	StopPrice float64
	OrderID   string
	Position  *model.Position
	Reason    string
}

type Config struct {
	Symbol   string
	Leverage int
	MgnMode  model.OrderMgnMode
	Strategy string
}

// Sequencer 按固定顺序执行：对账 -> 移动止损 -> 平仓信号 -> 开仓信号。
// 只在单个决策协程中使用，内部不加锁。
type Sequencer struct {
	cfg   Config
	gw    exchange.Gateway
	stop  *risk.TrailingStop
	sizer *risk.Sizer
	recon *position.Reconciler
	sink  journal.Sink
	now   func() time.Time
}

func NewSequencer(cfg Config, gw exchange.Gateway, stop *risk.TrailingStop, sizer *risk.Sizer, recon *position.Reconciler, sink journal.Sink) *Sequencer {
	if sink == nil {
		sink = journal.Nop{}
	}
	if cfg.Leverage < 1 {
		cfg.Leverage = 1
	}
	return &Sequencer{
		cfg:   cfg,
		gw:    gw,
		stop:  stop,
		sizer: sizer,
		recon: recon,
		sink:  sink,
		now:   time.Now,
	}
}

func (s *Sequencer) Stop() *risk.TrailingStop { return s.stop }

func (s *Sequencer) Reconciler() *position.Reconciler { return s.recon }

// Cycle 处理一个信号。远程调用失败时不修改本地状态并返回错误
func (s *Sequencer) Cycle(ctx context.Context, sig model.SignalResult, window []model.Candle) (rep Report, err error) {
	var pos *model.Position
	defer func() {
		if err != nil {
			metrics.Errors.WithLabelValues(errs.KindOf(err).String()).Inc()
		}
		s.observe(pos)
	}()

	price := sig.ReferencePrice
	if price <= 0 && len(window) > 0 {
		price = window[len(window)-1].Close
	}

	pos, err = s.gw.GetPosition(ctx, s.cfg.Symbol)
	if err != nil {
		if side, ok := closeTarget(sig.Signal); ok && errs.Is(err, errs.KindTransient) {
			logger.Warnf("[%s] 查询仓位超时，%s 信号按已平仓处理: %v", s.cfg.Symbol, sig.Signal, err)
			pos = nil
			return s.assumeClosed(ctx, side, price, "position fetch timed out"), nil
		}
		logger.Errorf("[%s] 查询仓位失败，放弃本周期: %v", s.cfg.Symbol, err)
		return Report{Action: ActionNone, Reason: "position fetch failed"}, err
	}

	out := s.recon.Reconcile(pos)
	if out.StaleStop && s.stop.Active() {
		logger.Infof("[%s] 仓位已在交易所关闭，停用移动止损", s.cfg.Symbol)
		s.stop.Deactivate()
	}
	if _, tracked := s.recon.Tracked(); !pos.Open() && !tracked && s.stop.Active() {
		s.stop.Deactivate()
	}
	if pos.Open() && s.stop.Active() && s.stop.State().Side != pos.Side {
		s.stop.Deactivate()
	}

	if pos.Open() {
		if !s.stop.Active() {
			// 启动时已有仓位或方向被交易所修正
			s.stop.Activate(pos.EntryPrice, pos.Side, window)
			st := s.stop.State()
			logger.Infof("[%s] 接管 %s 仓位 entry=%v stop=%v", s.cfg.Symbol, pos.Side, pos.EntryPrice, st.CurrentStop)
			s.record(ctx, journal.Event{
				Type:      journal.EventAdopted,
				Side:      pos.Side,
				Price:     pos.EntryPrice,
				Quantity:  pos.Size,
				StopPrice: st.CurrentStop,
			})
		}

		if stopPrice, breached := s.stop.Update(price, window); breached {
			logger.Warnf("[%s] 移动止损触发 side=%s price=%v stop=%v", s.cfg.Symbol, pos.Side, price, stopPrice)
			metrics.StopBreaches.WithLabelValues(string(pos.Side)).Inc()
			rep, err := s.closePosition(ctx, pos.Side, price, journal.EventStopBreach, "trailing stop breached")
			rep.StopPrice = stopPrice
			if rep.Action == ActionClose {
				rep.Action = ActionStopBreach
			}
			return rep, err
		}

		if sig.Signal.Closes(pos.Side) {
			return s.closePosition(ctx, pos.Side, price, journal.EventClose, string(sig.Signal))
		}
	}

	side, ok := sig.Signal.Entry()
	if !ok {
		return Report{Action: ActionNone, Position: pos}, nil
	}
	if pos.Open() && pos.Side == side {
		return Report{Action: ActionNone, Side: side, Position: pos, Reason: "already positioned"}, nil
	}
	if !pos.Open() && s.recon.Suppress() {
		tracked, _ := s.recon.Tracked()
		logger.Infof("[%s] %s 开仓单尚未在交易所可见，忽略 %s 信号", s.cfg.Symbol, tracked, sig.Signal)
		return Report{Action: ActionNone, Side: side, Position: pos, Reason: "pending " + string(tracked) + " position"}, nil
	}
	if pos.Open() {
		// 不反手，反向仓位由止损或平仓信号退出
		logger.Infof("[%s] 已持有 %s 仓位，忽略 %s 信号", s.cfg.Symbol, pos.Side, sig.Signal)
		return Report{Action: ActionNone, Side: side, Position: pos, Reason: "opposite position open"}, nil
	}
	return s.open(ctx, side, price, window)
}

func (s *Sequencer) open(ctx context.Context, side model.Side, price float64, window []model.Candle) (Report, error) {
	balance, err := s.gw.GetBalance(ctx)
	if err != nil {
		logger.Errorf("[%s] 查询余额失败: %v", s.cfg.Symbol, err)
		return Report{Action: ActionNone, Side: side, Reason: "balance fetch failed"}, err
	}
	qty := s.sizer.Size(balance, price, s.cfg.Leverage)
	if qty <= 0 {
		logger.Warnf("[%s] 下单数量为 0，跳过 %s 开仓", s.cfg.Symbol, side)
		return Report{Action: ActionSkipped, Side: side, Price: price, Reason: "quantity below minimum"}, nil
	}

	order := &model.Order{
		Symbol:    s.cfg.Symbol,
		Side:      model.OpenSide(side),
		PosSide:   side,
		Price:     price,
		Quantity:  qty,
		OrderType: model.Market,
		MgnMode:   s.cfg.MgnMode,
		Leverage:  s.cfg.Leverage,
		Strategy:  s.cfg.Strategy,
		Timestamp: s.now(),
	}
	resp, err := s.gw.PlaceOrder(ctx, order)
	if err != nil {
		if errs.Is(err, errs.KindOrderRejection) {
			metrics.OrderRejections.Inc()
			s.record(ctx, journal.Event{Type: journal.EventRejected, Side: side, Price: price, Quantity: qty, Reason: err.Error()})
		}
		logger.Errorf("[%s] 开仓失败 side=%s qty=%v: %v", s.cfg.Symbol, side, qty, err)
		return Report{Action: ActionNone, Side: side, Quantity: qty, Price: price, Reason: "order failed"}, err
	}
	metrics.Orders.WithLabelValues(string(ActionOpen), string(side)).Inc()

	s.stop.Activate(price, side, window)
	st := s.stop.State()
	s.record(ctx, journal.Event{
		Type:          journal.EventOpen,
		Side:          side,
		Price:         price,
		Quantity:      qty,
		StopPrice:     st.CurrentStop,
		OrderID:       resp.OrderId,
		ClientOrderID: resp.ClientOrderID,
		Order:         order,
	})

	s.pushProtectiveStop(ctx, side, qty, window)
	s.recon.Track(side)

	logger.Infof("[%s] 开仓成功 side=%s qty=%v price=%v stop=%v order=%s", s.cfg.Symbol, side, qty, price, st.CurrentStop, resp.OrderId)
	return Report{
		Action:    ActionOpen,
		Side:      side,
		Quantity:  qty,
		Price:     price,
		StopPrice: st.CurrentStop,
		OrderID:   resp.OrderId,
	}, nil
}

// PushProtectiveStop 同步交易所端止损，失败只记录日志
func (s *Sequencer) PushProtectiveStop(ctx context.Context, side model.Side, qty float64, window []model.Candle) {
	s.pushProtectiveStop(ctx, side, qty, window)
}

func (s *Sequencer) pushProtectiveStop(ctx context.Context, side model.Side, qty float64, window []model.Candle) {
	dist := s.stop.StopDistance(window)
	if dist <= 0 {
		logger.Warnf("[%s] ATR 不可用，暂不设置交易所止损", s.cfg.Symbol)
		return
	}
	if err := s.gw.SetProtectiveStop(ctx, s.cfg.Symbol, side, qty, dist); err != nil {
		logger.Warnf("[%s] 设置交易所止损失败，本地移动止损继续生效: %v", s.cfg.Symbol, err)
		s.record(ctx, journal.Event{Type: journal.EventStopFailed, Side: side, Quantity: qty, Distance: dist, Reason: err.Error()})
		return
	}
	s.record(ctx, journal.Event{Type: journal.EventProtectiveStop, Side: side, Quantity: qty, Distance: dist})
}

// closePosition 平仓前重新查询仓位数量，查询超时视为已平仓
func (s *Sequencer) closePosition(ctx context.Context, side model.Side, price float64, event journal.EventType, reason string) (Report, error) {
	pos, err := s.gw.GetPosition(ctx, s.cfg.Symbol)
	if err != nil {
		if errs.Is(err, errs.KindTransient) {
			logger.Warnf("[%s] 平仓前查询仓位超时，按已平仓处理: %v", s.cfg.Symbol, err)
			return s.assumeClosed(ctx, side, price, "position fetch timed out"), nil
		}
		return Report{Action: ActionNone, Side: side, Reason: "position fetch failed"}, err
	}
	if !pos.Open() || pos.Side != side {
		return s.assumeClosed(ctx, side, price, "position already closed"), nil
	}

	order := &model.Order{
		Symbol:     s.cfg.Symbol,
		Side:       model.CloseSide(side),
		PosSide:    side,
		Price:      price,
		Quantity:   pos.Size,
		OrderType:  model.Market,
		ReduceOnly: true,
		MgnMode:    s.cfg.MgnMode,
		Leverage:   s.cfg.Leverage,
		Strategy:   s.cfg.Strategy,
		Comment:    reason,
		Timestamp:  s.now(),
	}
	resp, err := s.gw.PlaceOrder(ctx, order)
	if err != nil {
		if errs.Is(err, errs.KindOrderRejection) {
			metrics.OrderRejections.Inc()
			s.record(ctx, journal.Event{Type: journal.EventRejected, Side: side, Price: price, Quantity: pos.Size, Reason: err.Error()})
		}
		logger.Errorf("[%s] 平仓失败 side=%s: %v", s.cfg.Symbol, side, err)
		return Report{Action: ActionNone, Side: side, Reason: "close order failed"}, err
	}
	metrics.Orders.WithLabelValues(string(ActionClose), string(side)).Inc()

	s.stop.Deactivate()
	s.recon.Clear()
	s.record(ctx, journal.Event{
		Type:          event,
		Side:          side,
		Price:         price,
		Quantity:      pos.Size,
		OrderID:       resp.OrderId,
		ClientOrderID: resp.ClientOrderID,
		Reason:        reason,
		Order:         order,
	})
	logger.Infof("[%s] 平仓成功 side=%s qty=%v price=%v reason=%s", s.cfg.Symbol, side, pos.Size, price, reason)
	return Report{Action: ActionClose, Side: side, Quantity: pos.Size, Price: price, OrderID: resp.OrderId, Reason: reason}, nil
}

func closeTarget(sig model.Signal) (model.Side, bool) {
	switch sig {
	case model.SignalCloseLong:
		return model.Long, true
	case model.SignalCloseShort:
		return model.Short, true
	}
	return "", false
}

// assumeClosed 清理本地止损与方向记录，本地没有任何记录时不产生流水
func (s *Sequencer) assumeClosed(ctx context.Context, side model.Side, price float64, reason string) Report {
	_, tracked := s.recon.Tracked()
	active := s.stop.Active()
	s.stop.Deactivate()
	s.recon.Clear()
	if !tracked && !active {
		return Report{Action: ActionNone, Side: side, Price: price, Reason: reason}
	}
	s.record(ctx, journal.Event{Type: journal.EventClose, Side: side, Price: price, Reason: reason})
	return Report{Action: ActionClose, Side: side, Price: price, Reason: reason}
}

func (s *Sequencer) record(ctx context.Context, e journal.Event) {
	e.Symbol = s.cfg.Symbol
	e.Strategy = s.cfg.Strategy
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	if err := s.sink.Record(ctx, e); err != nil {
		logger.Warnf("[%s] 记录交易流水失败 type=%s: %v", s.cfg.Symbol, e.Type, err)
	}
}

func (s *Sequencer) observe(pos *model.Position) {
	if st := s.stop.State(); st != nil {
		metrics.StopPrice.Set(st.CurrentStop)
	} else {
		metrics.StopPrice.Set(0)
	}
	for _, side := range []model.Side{model.Long, model.Short} {
		size := 0.0
		if pos.Open() && pos.Side == side {
			size = pos.Size
		}
		metrics.PositionSize.WithLabelValues(string(side)).Set(size)
	}
}
