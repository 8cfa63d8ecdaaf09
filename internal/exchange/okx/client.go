package okx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradectl/internal/errs"
	"tradectl/pkg/logger"

	"github.com/bwmarrin/snowflake"
	goexv2 "github.com/nntaoli-project/goex/v2"
	"github.com/nntaoli-project/goex/v2/model"
	"github.com/nntaoli-project/goex/v2/okx/futures"
	"github.com/nntaoli-project/goex/v2/options"
)

type Config struct {
	ApiKey     string
	SecretKey  string
	Passphrase string
	Endpoint   string // REST 地址，为空时使用 goex 默认
	Simulated  bool   // 模拟盘
	MgnMode    string
	Timeout    time.Duration
	// CredentialHint 认证失败时提示用户检查的环境变量
	CredentialHint string
}

// Client OKX 永续合约，实现 exchange.Gateway 与 exchange.KlineSource
type Client struct {
	cfg  Config
	pub  goexv2.IPubRest
	prv  goexv2.IPrvRest
	node *snowflake.Node

	instruments *InstrumentClient

	mu    sync.Mutex
	pairs map[string]model.CurrencyPair
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MgnMode == "" {
		cfg.MgnMode = "cross"
	}
	if cfg.Simulated {
		goexv2.DefaultHttpCli.SetHeaders("x-simulated-trading", "1")
	}
	pub := goexv2.OKx.Swap
	prv := pub.NewPrvApi(
		options.WithApiKey(cfg.ApiKey),
		options.WithApiSecretKey(cfg.SecretKey),
		options.WithPassphrase(cfg.Passphrase),
	)
	if cfg.Endpoint != "" {
		prv.UriOpts.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("init client order id generator: %w", err)
	}
	return &Client{
		cfg:         cfg,
		pub:         pub,
		prv:         prv,
		node:        node,
		instruments: NewInstrumentClient(cfg.Endpoint),
		pairs:       make(map[string]model.CurrencyPair),
	}, nil
}

func (c *Client) futuresPrv() (*futures.PrvApi, error) {
	prv, ok := c.prv.(*futures.PrvApi)
	if !ok {
		return nil, errors.New("private api is not a futures client")
	}
	return prv, nil
}

// toCurrencyPair "BTC-USDT-SWAP" 或 "BTC/USDT" -> goex CurrencyPair，结果缓存
func (c *Client) toCurrencyPair(symbol string) (model.CurrencyPair, error) {
	c.mu.Lock()
	pair, ok := c.pairs[symbol]
	c.mu.Unlock()
	if ok {
		return pair, nil
	}

	parts := strings.Split(symbol, "/")
	if len(parts) == 1 {
		parts = strings.Split(symbol, "-")
	}
	if len(parts) < 2 {
		return model.CurrencyPair{}, errs.Configurationf("resolve symbol", "invalid symbol %q, expected like BTC-USDT-SWAP", symbol)
	}
	pair, err := c.pub.NewCurrencyPair(parts[0], parts[1])
	if err != nil {
		return model.CurrencyPair{}, errs.Configuration("resolve symbol", fmt.Errorf("%s: %w", symbol, err))
	}
	if pair.ContractVal <= 0 {
		// 交易对信息未加载时先拉取一次
		if _, _, err := c.pub.GetExchangeInfo(); err != nil {
			return model.CurrencyPair{}, c.classify("load exchange info", err, nil)
		}
		if pair, err = c.pub.NewCurrencyPair(parts[0], parts[1]); err != nil {
			return model.CurrencyPair{}, errs.Configuration("resolve symbol", fmt.Errorf("%s: %w", symbol, err))
		}
	}

	c.mu.Lock()
	c.pairs[symbol] = pair
	c.mu.Unlock()
	return pair, nil
}

type result[T any] struct {
	val  T
	body []byte
	err  error
}

// call goex 私有方法没有 context，这里用超时控制，并对错误分类
func call[T any](ctx context.Context, c *Client, op string, fn func() (T, []byte, error)) (T, []byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ch := make(chan result[T], 1)
	go func() {
		v, body, err := fn()
		ch <- result[T]{v, body, err}
	}()

	var zero T
	select {
	case <-timeoutCtx.Done():
		return zero, nil, errs.Transient(op, timeoutCtx.Err())
	case r := <-ch:
		if r.err != nil {
			logger.Debugf("[okx] %s failed, body=%s", op, string(r.body))
			return zero, r.body, c.classify(op, r.err, r.body)
		}
		return r.val, r.body, nil
	}
}

// nextClientOrderID OKX clOrdId 只允许字母数字，最长 32 位
func (c *Client) nextClientOrderID() string {
	return "tc" + c.node.Generate().String()
}
