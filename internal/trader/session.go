// Package trader 单个交易对的实时决策循环：接收K线、生成信号、交给执行器。
package trader

import (
	"context"
	"sync"
	"time"

	"tradectl/internal/errs"
	"tradectl/internal/exchange"
	"tradectl/internal/execution"
	"tradectl/internal/history"
	"tradectl/internal/kline"
	"tradectl/internal/metrics"
	"tradectl/internal/model"
	"tradectl/internal/strategy"
	"tradectl/pkg/logger"
)

type Config struct {
	Symbol       string
	Timeframe    string
	Leverage     int
	BackfillDays int
}

// Status 最近一次决策的快照，供运维接口读取
type Status struct {
	Symbol     string                   `json:"symbol"`
	Timeframe  string                   `json:"timeframe"`
	Strategy   string                   `json:"strategy"`
	Candles    int                      `json:"candles"`
	LastCandle time.Time                `json:"last_candle"`
	LastSignal *model.SignalResult      `json:"last_signal,omitempty"`
	LastAction execution.Action         `json:"last_action,omitempty"`
	Tracked    model.Side               `json:"tracked_side,omitempty"`
	Stop       *model.TrailingStopState `json:"trailing_stop,omitempty"`
	// LastOrder 启动时查到的最近一条下单记录
	LastOrder *model.OrderRecord `json:"last_order,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// OrderHistory 已落库的下单记录
type OrderHistory interface {
	OrderGetLast(ctx context.Context, strategy, symbol string) (model.OrderRecord, error)
}

// Session 持有K线缓冲区和日志节奏，所有决策在 Run 所在的协程中串行执行
type Session struct {
	cfg      Config
	tf       time.Duration
	strat    strategy.Strategy
	seq      *execution.Sequencer
	gw       exchange.Gateway
	stream   exchange.CandleStream
	backfill *history.Backfiller
	orders   OrderHistory
	buf      *kline.Buffer

	// onCandle 每根K线（含未收盘）都会调用，模拟盘用来更新成交价
	onCandle   func(model.Candle)
	lastBucket int64

	mu     sync.RWMutex
	status Status
}

func NewSession(cfg Config, strat strategy.Strategy, seq *execution.Sequencer, gw exchange.Gateway, stream exchange.CandleStream, backfill *history.Backfiller) (*Session, error) {
	tf, err := kline.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	if cfg.BackfillDays <= 0 {
		cfg.BackfillDays = 3
	}
	return &Session{
		cfg:        cfg,
		tf:         tf,
		strat:      strat,
		seq:        seq,
		gw:         gw,
		stream:     stream,
		backfill:   backfill,
		buf:        kline.NewBuffer(strat.WarmUp()),
		lastBucket: -1,
		status:     Status{Symbol: cfg.Symbol, Timeframe: cfg.Timeframe, Strategy: strat.Name()},
	}, nil
}

func (s *Session) OnCandle(fn func(model.Candle)) *Session {
	s.onCandle = fn
	return s
}

// WithHistory 启动时用最近一条下单记录和交易所仓位互相印证
func (s *Session) WithHistory(h OrderHistory) *Session {
	s.orders = h
	return s
}

// Start 设置杠杆、回补历史K线、接管已有仓位。只有认证和配置错误会返回
func (s *Session) Start(ctx context.Context) error {
	if err := s.gw.SetLeverage(ctx, s.cfg.Symbol, s.cfg.Leverage); err != nil {
		if errs.Fatal(err) {
			return err
		}
		logger.Warnf("[%s] 设置杠杆 %dx 失败，沿用交易所当前设置: %v", s.cfg.Symbol, s.cfg.Leverage, err)
	}

	if s.backfill != nil {
		candles, err := s.backfill.Fetch(ctx, s.cfg.Symbol, s.cfg.Timeframe, s.cfg.BackfillDays)
		if err != nil {
			if errs.Fatal(err) {
				return err
			}
			logger.Warnf("[%s] 回补历史K线失败，从实时行情开始积累: %v", s.cfg.Symbol, err)
		}
		n := s.buf.Seed(candles)
		logger.Infof("[%s] 回补 %d 天K线 %d 根，缓冲区保留 %d/%d", s.cfg.Symbol, s.cfg.BackfillDays, n, s.buf.Len(), s.buf.Cap())
	}

	pos, err := s.gw.GetPosition(ctx, s.cfg.Symbol)
	if err != nil {
		if errs.Fatal(err) {
			return err
		}
		logger.Warnf("[%s] 启动时查询仓位失败，由首个决策周期对账: %v", s.cfg.Symbol, err)
		return nil
	}
	s.checkHistory(ctx, pos)
	if pos.Open() {
		window := s.buf.Window(0)
		stop := s.seq.Stop()
		stop.Activate(pos.EntryPrice, pos.Side, window)
		s.seq.Reconciler().Track(pos.Side)
		logger.Infof("[%s] 检测到已有 %s 仓位 size=%v entry=%v，启动移动止损 stop=%v",
			s.cfg.Symbol, pos.Side, pos.Size, pos.EntryPrice, stop.State().CurrentStop)
		s.seq.PushProtectiveStop(ctx, pos.Side, pos.Size, window)
	}
	s.refresh(nil, nil)
	return nil
}

// Run 启动后订阅行情，逐根处理直到 ctx 取消或行情关闭
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	ch, err := s.stream.Subscribe(ctx, s.cfg.Symbol, s.cfg.Timeframe)
	if err != nil {
		return err
	}
	logger.Infof("[%s] 订阅 %s K线，开始交易", s.cfg.Symbol, s.cfg.Timeframe)

	for {
		select {
		case <-ctx.Done():
			logger.Infof("[%s] 收到退出信号，停止交易", s.cfg.Symbol)
			return nil
		case c, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := s.HandleCandle(ctx, c); err != nil && errs.Fatal(err) {
				return err
			}
		}
	}
}

// HandleCandle 写入缓冲区。已收盘的K线生成信号并执行完整决策；
// 未收盘的K线只在移动止损生效时做一次对账和止损检查，不会开仓。返回 nil 表示未决策
func (s *Session) HandleCandle(ctx context.Context, c model.Candle) (*execution.Report, error) {
	if !s.buf.AddOrUpdate(c) {
		logger.Debugf("[%s] 丢弃过期K线 %s", s.cfg.Symbol, c.OpenTime.Format(time.RFC3339))
		return nil, nil
	}
	if s.onCandle != nil {
		s.onCandle(c)
	}
	window := s.buf.Window(0)

	if !c.Confirmed {
		if !s.seq.Stop().Active() {
			return nil, nil
		}
		sig := model.SignalResult{Signal: model.SignalNeutral, ReferencePrice: c.Close}
		return s.cycle(ctx, sig, window, false)
	}

	sig := s.strat.Generate(window)
	metrics.Signals.WithLabelValues(string(sig.Signal)).Inc()
	metrics.Oscillator.Set(sig.Oscillator)

	// 每个周期只打印一次指标
	if bucket := kline.Bucket(c.OpenTime, s.tf); bucket != s.lastBucket {
		s.lastBucket = bucket
		logger.Infof("[%s] %s close=%.4f rsi=%.2f atr=%.4f signal=%s confidence=%.2f gated=%v",
			s.cfg.Symbol, c.OpenTime.Format("2006-01-02 15:04"), c.Close, sig.Oscillator, sig.Volatility,
			sig.Signal, sig.Confidence, sig.Gated)
	}
	return s.cycle(ctx, sig, window, true)
}

func (s *Session) cycle(ctx context.Context, sig model.SignalResult, window []model.Candle, confirmed bool) (*execution.Report, error) {
	rep, err := s.seq.Cycle(ctx, sig, window)
	if confirmed {
		s.refresh(&sig, &rep)
	} else {
		s.refresh(nil, &rep)
	}
	if err != nil {
		return &rep, err
	}
	if rep.Action != execution.ActionNone {
		logger.Infof("[%s] %s side=%s qty=%v price=%v stop=%v %s",
			s.cfg.Symbol, rep.Action, rep.Side, rep.Quantity, rep.Price, rep.StopPrice, rep.Reason)
	}
	return &rep, nil
}

// checkHistory 只记录日志和状态，仓位仍以交易所为准
func (s *Session) checkHistory(ctx context.Context, pos *model.Position) {
	if s.orders == nil {
		return
	}
	last, err := s.orders.OrderGetLast(ctx, s.strat.Name(), s.cfg.Symbol)
	if err != nil {
		logger.Warnf("[%s] 查询下单记录失败: %v", s.cfg.Symbol, err)
		return
	}
	if last.ID == 0 {
		return
	}
	s.mu.Lock()
	s.status.LastOrder = &last
	s.mu.Unlock()

	switch {
	case !last.ReduceOnly && !pos.Open():
		logger.Warnf("[%s] 最近一笔为 %s 开仓 qty=%v price=%v (%s)，交易所已无仓位，可能已被交易所止损平仓",
			s.cfg.Symbol, last.PosSide, last.Quantity, last.Price, last.Timestamp.Format(time.RFC3339))
	case !last.ReduceOnly && pos.Side != last.PosSide:
		logger.Warnf("[%s] 最近一笔为 %s 开仓，交易所持有 %s 仓位", s.cfg.Symbol, last.PosSide, pos.Side)
	case last.ReduceOnly && pos.Open():
		logger.Warnf("[%s] 最近一笔为平仓，交易所仍有 %s 仓位 size=%v", s.cfg.Symbol, pos.Side, pos.Size)
	default:
		logger.Infof("[%s] 最近一笔下单 %s %s qty=%v，与交易所仓位一致", s.cfg.Symbol, last.Side, last.PosSide, last.Quantity)
	}
}

func (s *Session) refresh(sig *model.SignalResult, rep *execution.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &s.status
	st.Candles = s.buf.Len()
	if last, ok := s.buf.Last(); ok {
		st.LastCandle = last.OpenTime
	}
	if sig != nil {
		cp := *sig
		st.LastSignal = &cp
	}
	if rep != nil {
		st.LastAction = rep.Action
	}
	st.Tracked, _ = s.seq.Reconciler().Tracked()
	st.Stop = s.seq.Stop().State()
	st.UpdatedAt = time.Now()
}

// Status 可在其他协程中调用
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
