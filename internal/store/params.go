// Package store 读写优化后的参数集（ParameterSet）。
package store

import (
	"context"
	"fmt"

	"tradectl/internal/backtest"
	"tradectl/internal/errs"
	"tradectl/internal/param"
	"tradectl/internal/risk"
	"tradectl/internal/strategy"

	"github.com/goccy/go-json"
)

type Metrics struct {
	TotalReturn float64 `json:"total_return"`
	TotalTrades int     `json:"total_trades"`
}

// ParameterSet 一次优化的结果，实盘和验证模式据此重建策略与移动止损
type ParameterSet struct {
	StrategyName       string       `json:"strategy_name"`
	StrategyParams     param.Values `json:"strategy_params"`
	TrailingStopParams param.Values `json:"trailing_stop_params"`
	Symbol             string       `json:"symbol"`
	Timeframe          string       `json:"timeframe"`
	Metrics            Metrics      `json:"metrics"`
}

// Store 参数集的持久化位置
type Store interface {
	Load(ctx context.Context) (*ParameterSet, error)
	Save(ctx context.Context, ps *ParameterSet) error
}

func New(strategyName string, strategyParams, trailingParams param.Values, symbol, timeframe string, res backtest.Result) *ParameterSet {
	return &ParameterSet{
		StrategyName:       strategyName,
		StrategyParams:     strategyParams,
		TrailingStopParams: trailingParams,
		Symbol:             symbol,
		Timeframe:          timeframe,
		Metrics:            Metrics{TotalReturn: res.TotalReturn, TotalTrades: res.Trades},
	}
}

// document 兼容旧版本的 strategy / trailing_stop 字段
type document struct {
	ParameterSet
	LegacyStrategy     param.Values `json:"strategy"`
	LegacyTrailingStop param.Values `json:"trailing_stop"`
}

func Encode(ps *ParameterSet) ([]byte, error) {
	return json.MarshalIndent(ps, "", "  ")
}

// Decode 解析并校验参数集，任何问题都按配置错误返回
func Decode(data []byte) (*ParameterSet, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.Configuration("decode parameters", err)
	}
	ps := doc.ParameterSet
	if ps.StrategyParams == nil {
		ps.StrategyParams = doc.LegacyStrategy
	}
	if ps.TrailingStopParams == nil {
		ps.TrailingStopParams = doc.LegacyTrailingStop
	}
	if ps.StrategyName == "" {
		ps.StrategyName = strategy.IFRName
	}
	if ps.StrategyParams == nil {
		ps.StrategyParams = param.Values{}
	}
	if ps.TrailingStopParams == nil {
		ps.TrailingStopParams = param.Values{}
	}
	if err := ps.Validate(); err != nil {
		return nil, err
	}
	return &ps, nil
}

func (ps *ParameterSet) Validate() error {
	_, _, err := ps.Build()
	return err
}

// Build 用参数集构建新的策略与移动止损实例
func (ps *ParameterSet) Build() (strategy.Strategy, *risk.TrailingStop, error) {
	strat, err := strategy.New(ps.StrategyName, ps.StrategyParams)
	if err != nil {
		return nil, nil, err
	}
	stop, err := risk.NewTrailingStop(ps.TrailingStopParams)
	if err != nil {
		return nil, nil, errs.Configuration("trailing stop parameters", err)
	}
	return strat, stop, nil
}

// Point 联合空间中的参数点，供回测复用
func (ps *ParameterSet) Point() param.Values {
	p := param.Values{}
	for k, v := range ps.StrategyParams {
		p[param.StrategyPrefix+k] = v
	}
	for k, v := range ps.TrailingStopParams {
		p[param.TrailingPrefix+k] = v
	}
	return p
}

func (ps *ParameterSet) String() string {
	return fmt.Sprintf("%s %s/%s strategy=%v trailing=%v return=%.4f trades=%d",
		ps.StrategyName, ps.Symbol, ps.Timeframe, ps.StrategyParams, ps.TrailingStopParams,
		ps.Metrics.TotalReturn, ps.Metrics.TotalTrades)
}
