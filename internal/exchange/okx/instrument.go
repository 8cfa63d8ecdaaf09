package okx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradectl/pkg/logger"
	"tradectl/pkg/utils"

	"github.com/goccy/go-json"
)

// okx 的公开接口，不需要 apikey

const maxRetries = 3

// InstrumentClient 查询合约规格（面值、下单步长、最小下单量）
type InstrumentClient struct {
	httpClient *http.Client
	baseURL    string
	backoff    time.Duration
}

func NewInstrumentClient(endpoint string) *InstrumentClient {
	if endpoint == "" {
		endpoint = "https://www.okx.com"
	}
	return &InstrumentClient{
		baseURL:    strings.TrimRight(endpoint, "/") + "/api/v5",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		backoff:    time.Second,
	}
}

// InstrumentRaw 对应 OKX API 返回的单个交易对信息
type InstrumentRaw struct {
	InstId   string `json:"instId"`
	InstType string `json:"instType"`
	State    string `json:"state"`
	CtVal    string `json:"ctVal"`  // 合约面值
	CtValCcy string `json:"ctValCcy"`
	TickSz   string `json:"tickSz"` // 价格步长
	LotSz    string `json:"lotSz"`  // 下单数量步长（张）
	MinSz    string `json:"minSz"`  // 最小下单数量（张）
	MaxLever string `json:"lever"`
}

// Instrument 数量已换算成币
type Instrument struct {
	InstId       string
	ContractVal  float64
	TickSize     float64
	QtyStep      float64
	MinOrderSize float64
	MaxLeverage  int
}

func (r InstrumentRaw) parse() (Instrument, error) {
	ctVal, err := strconv.ParseFloat(r.CtVal, 64)
	if err != nil || ctVal <= 0 {
		return Instrument{}, fmt.Errorf("invalid ctVal %q for %s", r.CtVal, r.InstId)
	}
	lot, _ := strconv.ParseFloat(r.LotSz, 64)
	minSz, _ := strconv.ParseFloat(r.MinSz, 64)
	tick, _ := strconv.ParseFloat(r.TickSz, 64)
	lever, _ := strconv.Atoi(r.MaxLever)
	return Instrument{
		InstId:       r.InstId,
		ContractVal:  ctVal,
		TickSize:     tick,
		QtyStep:      lot * ctVal,
		MinOrderSize: minSz * ctVal,
		MaxLeverage:  lever,
	}, nil
}

// Instrument 带重试的永续合约规格查询
func (c *InstrumentClient) Instrument(ctx context.Context, instId string) (Instrument, error) {
	var raws []InstrumentRaw
	err := utils.Retry(ctx, maxRetries, c.backoff, true, func() error {
		q := url.Values{}
		q.Set("instType", "SWAP")
		q.Set("instId", instId)
		err := c.doPublicGet(ctx, "/public/instruments?"+q.Encode(), &raws)
		if err != nil {
			logger.Warnf("get instrument %s failed: %v", instId, err)
		}
		return err
	})
	if err != nil {
		return Instrument{}, err
	}
	if len(raws) == 0 {
		return Instrument{}, fmt.Errorf("instrument %s not found", instId)
	}
	return raws[0].parse()
}

// doPublicGet 执行通用的 GET 请求，处理 JSON 解析和错误
func (c *InstrumentClient) doPublicGet(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return utils.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return utils.Permanent(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	// {"code":"0", "msg":"", "data":[...]}
	var apiResponse struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if apiResponse.Code != "0" {
		return utils.Permanent(fmt.Errorf("okx api error, code: %s, msg: %s", apiResponse.Code, apiResponse.Msg))
	}
	if err := json.Unmarshal(apiResponse.Data, result); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// Instrument 当前交易对的合约规格，用于配置下单步长与最小下单量
func (c *Client) Instrument(ctx context.Context, symbol string) (Instrument, error) {
	return c.instruments.Instrument(ctx, symbol)
}
