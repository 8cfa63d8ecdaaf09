package app

import (
	"context"
	"time"

	"tradectl/internal/backtest"
	"tradectl/internal/dao"
	"tradectl/internal/history"
	"tradectl/internal/model"
	"tradectl/internal/optimize"
	"tradectl/internal/param"
	"tradectl/internal/store"
	"tradectl/internal/strategy"
	"tradectl/pkg/logger"

	"github.com/goccy/go-json"
)

// strategyName 命令行优先，其次是已保存参数中的策略，最后默认 ifr
func (a *App) strategyName(ctx context.Context, flagName string) string {
	if flagName != "" {
		return flagName
	}
	if ps, err := a.ParamStore().Load(ctx); err == nil && ps.StrategyName != "" {
		return ps.StrategyName
	}
	return "ifr"
}

// Optimize 拉取历史K线，搜索最优参数并保存
func (a *App) Optimize(ctx context.Context, flagStrategy string) (*store.ParameterSet, error) {
	name := a.strategyName(ctx, flagStrategy)
	if !strategy.Known(name) {
		// 在访问交易所之前报出配置错误
		_, err := strategy.New(name, nil)
		return nil, err
	}
	ocfg := a.optimizeConfig(name)
	opt, err := optimize.New(ocfg)
	if err != nil {
		return nil, err
	}
	a.Open(ctx)

	client, err := a.PublicClient()
	if err != nil {
		return nil, err
	}
	tc, oc := a.cfg.Trading, a.cfg.Optimize
	candles, err := history.NewBackfiller(client).Fetch(ctx, tc.Symbol, tc.Timeframe, oc.Days)
	if err != nil {
		return nil, err
	}
	logger.Infof("[optimize] %s %s 历史K线 %d 根（%d 天）", tc.Symbol, tc.Timeframe, len(candles), oc.Days)

	res, err := opt.Run(ctx, candles)
	if err != nil {
		return nil, err
	}

	ps := store.New(res.Strategy, res.StrategyParams(), res.TrailingParams(), tc.Symbol, tc.Timeframe, res.Metrics)
	if err := a.ParamStore().Save(ctx, ps); err != nil {
		return nil, err
	}
	logger.Infof("[optimize] 参数已保存到 %s: %s", oc.ParamsFile, ps)

	if oc.MirrorToRedis && a.redis != nil {
		if err := store.NewRedisStore(a.redis, tc.Symbol, tc.Timeframe).Save(ctx, ps); err != nil {
			logger.Warnf("[optimize] 参数镜像到 redis 失败: %v", err)
		}
	}
	if a.db != nil {
		a.recordRun(ctx, res)
	}
	return ps, nil
}

// optimizeConfig 模板参数来自 optimize.strategy-params
func (a *App) optimizeConfig(name string) optimize.Config {
	oc := a.cfg.Optimize
	return optimize.Config{
		Strategy:       name,
		StrategyParams: param.Values(oc.StrategyParams),
		Calls:          oc.Iterations,
		Initial:        oc.InitialPoints,
		Seed:           oc.Seed,
		Xi:             oc.Xi,
		MinTrades:      oc.MinTrades,
		Workers:        oc.Workers,
		Backtest:       backtest.Options{Window: oc.Window},
	}
}

func (a *App) recordRun(ctx context.Context, res *optimize.Result) {
	params, err := json.Marshal(res.Best)
	if err != nil {
		logger.Warnf("[optimize] 序列化参数失败: %v", err)
		return
	}
	run := &model.OptimizationRun{
		RunID:       res.RunID,
		Strategy:    res.Strategy,
		Symbol:      a.cfg.Trading.Symbol,
		Timeframe:   a.cfg.Trading.Timeframe,
		Evaluations: len(res.History),
		Objective:   res.Objective,
		TotalReturn: res.Metrics.TotalReturn,
		TotalTrades: res.Metrics.Trades,
		Params:      params,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
	}
	if err := dao.NewOptimizationDao(a.db).Save(ctx, run); err != nil {
		logger.Warnf("[optimize] 优化记录落库失败: %v", err)
	}
}

// Validate 用最近 validation-days 的数据对已保存参数做样本外回测
func (a *App) Validate(ctx context.Context) (backtest.Result, error) {
	ps, err := a.ParamStore().Load(ctx)
	if err != nil {
		return backtest.Result{}, err
	}
	logger.Infof("[validate] 已加载参数: %s", ps)

	client, err := a.PublicClient()
	if err != nil {
		return backtest.Result{}, err
	}
	tc := a.cfg.Trading
	days := a.cfg.Optimize.ValidationDays
	candles, err := history.NewBackfiller(client).Fetch(ctx, tc.Symbol, tc.Timeframe, days)
	if err != nil {
		return backtest.Result{}, err
	}

	started := time.Now()
	res, err := backtest.RunParams(candles, ps.StrategyName, ps.Point(), backtest.Options{Window: a.cfg.Optimize.Window})
	if err != nil {
		return backtest.Result{}, err
	}
	logger.Infof("[validate] %s %s 最近 %d 天: return=%.4f trades=%d win_rate=%.2f max_drawdown=%.4f (优化时 return=%.4f trades=%d) 耗时 %s",
		tc.Symbol, tc.Timeframe, days, res.TotalReturn, res.Trades, res.WinRate(), res.MaxDrawdown,
		ps.Metrics.TotalReturn, ps.Metrics.TotalTrades, time.Since(started))
	if res.OpenTrade != nil {
		logger.Infof("[validate] 期末持仓 %s entry=%v mark=%v return=%.4f",
			res.OpenTrade.Side, res.OpenTrade.EntryPrice, res.OpenTrade.ExitPrice, res.OpenTrade.Return)
	}
	return res, nil
}
