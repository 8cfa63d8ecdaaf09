package backtest

import (
	"math"
	"time"

	"tradectl/internal/kline"
	"tradectl/internal/model"
	"tradectl/internal/param"
	"tradectl/internal/risk"
	"tradectl/internal/strategy"
)

const (
	DefaultMinTrades = 5
	// PenaltyObjective 交易次数太少的参数直接判为最差
	PenaltyObjective = 1e6
)

type Options struct {
	// WarmUp 前 WarmUp 根K线只填充缓冲区不做决策，默认使用策略的 WarmUp()
	WarmUp int
	// Window 决策时使用的K线窗口长度，默认与 WarmUp 相同
	Window int
}

type Trade struct {
	Side       model.Side `json:"side"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Return     float64    `json:"return"`
	Reason     string     `json:"reason"`
}

type Result struct {
	Equity      float64 `json:"equity"`
	TotalReturn float64 `json:"total_return"`
	Trades      int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Closes      []Trade `json:"closes"`
	// OpenTrade 回放结束时仍持有的仓位，按最后收盘价估值，不计入 Equity
	OpenTrade *Trade `json:"open_trade,omitempty"`
}

func (r Result) WinRate() float64 {
	if len(r.Closes) == 0 {
		return 0
	}
	return float64(r.Wins) / float64(len(r.Closes))
}

// Objective 最小化目标：-(equity-1)，交易次数不足 minTrades 时返回 PenaltyObjective
func Objective(r Result, minTrades int) float64 {
	if r.Trades < minTrades {
		return PenaltyObjective
	}
	return -(r.Equity - 1)
}

func signedReturn(side model.Side, entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	if side == model.Long {
		return (exit - entry) / entry
	}
	return (entry - exit) / entry
}

// Run 用独立的策略与移动止损实例回放K线，不访问交易所
func Run(candles []model.Candle, strat strategy.Strategy, stop *risk.TrailingStop, opts Options) Result {
	if opts.WarmUp <= 0 {
		opts.WarmUp = strat.WarmUp()
	}
	if opts.Window <= 0 {
		opts.Window = opts.WarmUp
	}
	buf := kline.NewBuffer(max(opts.Window, 1))
	stop.Deactivate()

	res := Result{Equity: 1}
	peak := 1.0
	var open *Trade

	closeAt := func(c model.Candle, price float64, reason string) {
		open.ExitTime = c.OpenTime
		open.ExitPrice = price
		open.Return = signedReturn(open.Side, open.EntryPrice, price)
		open.Reason = reason
		res.Equity *= 1 + open.Return
		if open.Return > 0 {
			res.Wins++
		}
		res.Closes = append(res.Closes, *open)
		peak = math.Max(peak, res.Equity)
		res.MaxDrawdown = math.Max(res.MaxDrawdown, (peak-res.Equity)/peak)
		open = nil
		stop.Deactivate()
	}

	for i, c := range candles {
		buf.AddOrUpdate(c)
		if i < opts.WarmUp {
			continue
		}
		window := buf.Window(opts.Window)
		sig := strat.Generate(window)

		if open != nil {
			if stopPrice, breached := stop.Update(c.Close, window); breached {
				closeAt(c, stopPrice, "stop")
				continue
			}
			if side, ok := sig.Signal.Entry(); (ok && side != open.Side) || sig.Signal.Closes(open.Side) {
				closeAt(c, c.Close, string(sig.Signal))
			}
			continue
		}

		if side, ok := sig.Signal.Entry(); ok {
			open = &Trade{Side: side, EntryTime: c.OpenTime, EntryPrice: c.Close}
			res.Trades++
			stop.Activate(c.Close, side, window)
		}
	}

	if open != nil && len(candles) > 0 {
		last := candles[len(candles)-1]
		open.ExitTime = last.OpenTime
		open.ExitPrice = last.Close
		open.Return = signedReturn(open.Side, open.EntryPrice, last.Close)
		open.Reason = "mark"
		res.OpenTrade = open
	}
	stop.Deactivate()
	res.TotalReturn = res.Equity - 1
	return res
}

// RunParams 按联合空间的参数点构建实例后回放
func RunParams(candles []model.Candle, strategyName string, point param.Values, opts Options) (Result, error) {
	sp, tp := param.Split(point)
	strat, err := strategy.New(strategyName, sp)
	if err != nil {
		return Result{}, err
	}
	stop, err := risk.NewTrailingStop(tp)
	if err != nil {
		return Result{}, err
	}
	return Run(candles, strat, stop, opts), nil
}
