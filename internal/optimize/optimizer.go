// Package optimize 在策略与移动止损的联合参数空间上做基于高斯过程的序贯搜索，
// 每个参数点用一次完整回测打分。
package optimize

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"tradectl/internal/backtest"
	"tradectl/internal/metrics"
	"tradectl/internal/model"
	"tradectl/internal/param"
	"tradectl/internal/risk"
	"tradectl/internal/strategy"
	"tradectl/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCalls      = 50
	DefaultInitial    = 10
	DefaultSeed       = 42
	DefaultXi         = 0.01
	DefaultCandidates = 2000
)

type Config struct {
	Strategy string
	// StrategyParams 搜索空间模板使用的策略参数，例如开启波动率过滤
	StrategyParams param.Values
	Calls          int
	Initial        int
	Seed           int64
	Xi             float64
	Candidates     int
	MinTrades      int
	Workers        int
	Backtest       backtest.Options
}

func (c *Config) defaults() {
	if c.Strategy == "" {
		c.Strategy = strategy.IFRName
	}
	if c.Calls <= 0 {
		c.Calls = DefaultCalls
	}
	if c.Initial <= 0 {
		c.Initial = DefaultInitial
	}
	c.Initial = min(c.Initial, c.Calls)
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	if c.Xi <= 0 {
		c.Xi = DefaultXi
	}
	if c.Candidates <= 0 {
		c.Candidates = DefaultCandidates
	}
	if c.MinTrades <= 0 {
		c.MinTrades = backtest.DefaultMinTrades
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
}

// Evaluation 一次回测打分
type Evaluation struct {
	Point       param.Values `json:"point"`
	Objective   float64      `json:"objective"`
	TotalReturn float64      `json:"total_return"`
	Trades      int          `json:"total_trades"`
}

type Result struct {
	RunID      string
	Strategy   string
	Best       param.Values
	Objective  float64
	Metrics    backtest.Result
	History    []Evaluation
	StartedAt  time.Time
	FinishedAt time.Time
}

// StrategyParams 最优点中的策略参数
func (r *Result) StrategyParams() param.Values {
	s, _ := param.Split(r.Best)
	return s
}

// TrailingParams 最优点中的移动止损参数
func (r *Result) TrailingParams() param.Values {
	_, t := param.Split(r.Best)
	return t
}

type Optimizer struct {
	cfg  Config
	dims []param.Dimension
	base param.Values
}

func New(cfg Config) (*Optimizer, error) {
	cfg.defaults()
	strat, err := strategy.New(cfg.Strategy, cfg.StrategyParams)
	if err != nil {
		return nil, err
	}
	stop, err := risk.NewTrailingStop(nil)
	if err != nil {
		return nil, err
	}
	cfg.Strategy = strat.Name()

	// 不在搜索空间内的策略参数保持模板取值
	base := param.Values{}
	for k, v := range strat.Params() {
		base[param.StrategyPrefix+k] = v
	}
	return &Optimizer{cfg: cfg, dims: param.Join(strat.Space(), stop.Space()), base: base}, nil
}

func (o *Optimizer) Space() []param.Dimension { return o.dims }

// Run 先并发评估 Initial 个随机点，再逐个按 EI 选点，直到 Calls 次评估。
// ctx 取消时返回 ctx.Err()。
func (o *Optimizer) Run(ctx context.Context, candles []model.Candle) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &Result{RunID: uuid.NewString(), Strategy: o.cfg.Strategy, StartedAt: time.Now()}
	rng := rand.New(rand.NewSource(o.cfg.Seed))

	logger.Infof("[optimize] run=%s strategy=%s dims=%d calls=%d initial=%d candles=%d",
		res.RunID, res.Strategy, len(o.dims), o.cfg.Calls, o.cfg.Initial, len(candles))

	xs := make([][]float64, o.cfg.Initial)
	for i := range xs {
		xs[i] = o.sample(rng)
	}
	initial, err := o.evaluateAll(ctx, candles, xs)
	if err != nil {
		return nil, err
	}
	res.History = append(res.History, initial...)
	best := math.Inf(1)
	for _, e := range initial {
		best = o.track(best, e)
	}

	for len(res.History) < o.cfg.Calls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x := o.suggest(rng, xs, res.History)
		e, err := o.evaluate(candles, x)
		if err != nil {
			return nil, err
		}
		xs = append(xs, x)
		res.History = append(res.History, e)
		best = o.track(best, e)
		logger.Debugf("[optimize] call %d/%d objective=%.6f trades=%d best=%.6f",
			len(res.History), o.cfg.Calls, e.Objective, e.Trades, best)
	}

	idx := 0
	for i, e := range res.History {
		if e.Objective < res.History[idx].Objective {
			idx = i
		}
	}
	res.Best = res.History[idx].Point.Clone()
	res.Objective = res.History[idx].Objective
	res.Metrics, err = backtest.RunParams(candles, o.cfg.Strategy, res.Best, o.cfg.Backtest)
	if err != nil {
		return nil, err
	}
	res.FinishedAt = time.Now()
	logger.Infof("[optimize] run=%s 完成 objective=%.6f return=%.4f trades=%d params=%v",
		res.RunID, res.Objective, res.Metrics.TotalReturn, res.Metrics.Trades, formatPoint(res.Best))
	return res, nil
}

func (o *Optimizer) track(best float64, e Evaluation) float64 {
	metrics.OptimizerEvaluations.Inc()
	if e.Objective < best {
		best = e.Objective
		metrics.OptimizerBest.Set(best)
	}
	return best
}

// sample 单位超立方体中的随机点，整数维度按取整后的位置回写
func (o *Optimizer) sample(rng *rand.Rand) []float64 {
	x := make([]float64, len(o.dims))
	for i, d := range o.dims {
		x[i] = d.Scale(d.Unscale(rng.Float64()))
	}
	return x
}

func (o *Optimizer) point(x []float64) param.Values {
	p := o.base.Clone()
	for i, d := range o.dims {
		p[d.Name] = d.Unscale(x[i])
	}
	return p
}

func (o *Optimizer) evaluate(candles []model.Candle, x []float64) (Evaluation, error) {
	p := o.point(x)
	r, err := backtest.RunParams(candles, o.cfg.Strategy, p, o.cfg.Backtest)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate %v: %w", formatPoint(p), err)
	}
	return Evaluation{
		Point:       p,
		Objective:   backtest.Objective(r, o.cfg.MinTrades),
		TotalReturn: r.TotalReturn,
		Trades:      r.Trades,
	}, nil
}

// evaluateAll 并发评估，结果按输入顺序返回；各 goroutine 只共享只读的K线
func (o *Optimizer) evaluateAll(ctx context.Context, candles []model.Candle, xs [][]float64) ([]Evaluation, error) {
	out := make([]Evaluation, len(xs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i, x := range xs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e, err := o.evaluate(candles, x)
			if err != nil {
				return err
			}
			out[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// suggest 拟合代理模型，在随机候选点中取 EI 最大者；模型拟合失败时退化为随机采样
func (o *Optimizer) suggest(rng *rand.Rand, xs [][]float64, history []Evaluation) []float64 {
	y := make([]float64, len(history))
	best := math.Inf(1)
	for i, e := range history {
		y[i] = e.Objective
		best = math.Min(best, e.Objective)
	}
	surrogate, err := fitGP(xs, y)
	if err != nil {
		logger.Warnf("[optimize] 代理模型拟合失败，使用随机点: %v", err)
		return o.sample(rng)
	}

	var (
		pick   []float64
		pickEI = -1.0
	)
	for i := 0; i < o.cfg.Candidates; i++ {
		c := o.sample(rng)
		mu, sigma := surrogate.predict(c)
		ei := expectedImprovement(mu, sigma, best, o.cfg.Xi*surrogate.std)
		if ei > pickEI {
			pick, pickEI = c, ei
		}
	}
	return pick
}

func formatPoint(p param.Values) string {
	s := "{"
	for i, k := range p.Keys() {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%.4g", k, p[k])
	}
	return s + "}"
}
