package app

import (
	"context"

	"tradectl/internal/dao"
	"tradectl/internal/exchange"
	"tradectl/internal/exchange/okx"
	"tradectl/internal/execution"
	"tradectl/internal/handler/status"
	"tradectl/internal/history"
	"tradectl/internal/middleware"
	"tradectl/internal/model"
	"tradectl/internal/position"
	"tradectl/internal/risk"
	"tradectl/internal/router"
	"tradectl/internal/server"
	"tradectl/internal/trader"
	"tradectl/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Trade 实盘（paper=true 时为模拟盘）决策循环，同时启动运维 HTTP 服务
func (a *App) Trade(ctx context.Context, paper bool) error {
	ps, err := a.ParamStore().Load(ctx)
	if err != nil {
		return err
	}
	strat, stop, err := ps.Build()
	if err != nil {
		return err
	}
	tc := a.cfg.Trading
	if ps.Symbol != "" && (ps.Symbol != tc.Symbol || ps.Timeframe != tc.Timeframe) {
		logger.Warnf("参数集针对 %s %s 优化，当前配置为 %s %s", ps.Symbol, ps.Timeframe, tc.Symbol, tc.Timeframe)
	}
	logger.Infof("已加载参数: %s", ps)

	public, err := a.PublicClient()
	if err != nil {
		return err
	}
	var (
		gw     exchange.Gateway
		sim    *exchange.Paper
		onTick func(model.Candle)
	)
	if paper {
		sim = exchange.NewPaper(tc.PaperBalance)
		gw = sim
		onTick = func(c model.Candle) { sim.SetPrice(c.Close) }
		logger.Infof("模拟盘模式，初始资金 %.2f", tc.PaperBalance)
	} else {
		client, err := a.PrivateClient()
		if err != nil {
			return err
		}
		gw = client
	}
	a.Open(ctx)

	sizerCfg := risk.DefaultSizerConfig()
	sizerCfg.PositionSizePercent = tc.PositionSizePercent
	sizerCfg.MinOrderSize = tc.MinOrderSize
	sizerCfg.QtyStep = tc.QtyStep
	a.applyInstrument(ctx, public, &sizerCfg)

	seq := execution.NewSequencer(
		execution.Config{
			Symbol:   tc.Symbol,
			Leverage: tc.Leverage,
			MgnMode:  model.OrderMgnMode(tc.MgnMode),
			Strategy: strat.Name(),
		},
		gw, stop, risk.NewSizer(sizerCfg),
		position.NewReconciler(tc.Symbol).WithGrace(tc.PositionGrace),
		a.Journal(),
	)
	session, err := trader.NewSession(
		trader.Config{Symbol: tc.Symbol, Timeframe: tc.Timeframe, Leverage: tc.Leverage, BackfillDays: tc.BackfillDays},
		strat, seq, gw, okx.NewStream(a.cfg.Endpoint().Websocket), history.NewBackfiller(public),
	)
	if err != nil {
		return err
	}
	if onTick != nil {
		session.OnCandle(onTick)
	}
	if a.db != nil {
		session.WithHistory(dao.NewOrderDao(a.db))
	}

	srv := server.NewServer(a.cfg.Listen, a.cfg.Mode,
		middleware.NewMiddleware(),
		router.NewApiRouter(status.NewHandler(session, a.ParamStore())),
	)

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	g.Go(func() error {
		// 行情结束或出现致命错误时一并关闭 HTTP 服务
		defer cancel()
		return session.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	return g.Wait()
}

// applyInstrument 用交易所合约规格覆盖最小下单量与步长，查询失败时沿用配置
func (a *App) applyInstrument(ctx context.Context, client *okx.Client, cfg *risk.SizerConfig) {
	inst, err := client.Instrument(ctx, a.cfg.Trading.Symbol)
	if err != nil {
		logger.Warnf("查询合约规格失败，使用配置的最小下单量 %v 步长 %v: %v", cfg.MinOrderSize, cfg.QtyStep, err)
		return
	}
	if inst.MinOrderSize > 0 {
		cfg.MinOrderSize = inst.MinOrderSize
	}
	if inst.QtyStep > 0 {
		cfg.QtyStep = inst.QtyStep
	}
	if inst.MaxLeverage > 0 && a.cfg.Trading.Leverage > inst.MaxLeverage {
		logger.Warnf("配置杠杆 %dx 超过合约上限 %dx", a.cfg.Trading.Leverage, inst.MaxLeverage)
	}
	logger.Infof("合约 %s 面值=%v 最小下单=%v 步长=%v", inst.InstId, inst.ContractVal, cfg.MinOrderSize, cfg.QtyStep)
}
