package okx

import (
	"context"
	"fmt"
	"strconv"

	tmodel "tradectl/internal/model"

	"github.com/goccy/go-json"
	"github.com/nntaoli-project/goex/v2/model"
)

const settleCoin = "USDT"

func (c *Client) GetBalance(ctx context.Context) (tmodel.Balance, error) {
	accounts, _, err := call(ctx, c, "get balance", func() (map[string]model.Account, []byte, error) {
		return c.prv.GetAccount(settleCoin)
	})
	if err != nil {
		return tmodel.Balance{}, err
	}
	acc, ok := accounts[settleCoin]
	if !ok {
		return tmodel.Balance{}, fmt.Errorf("account info not found for coin %s", settleCoin)
	}
	return tmodel.Balance{
		AvailableCapital: acc.AvailableBalance,
		WalletBalance:    acc.Balance,
		UsedMargin:       acc.FrozenBalance,
	}, nil
}

// positionDetail goex 没有解析的持仓字段
type positionDetail struct {
	MgnMode string `json:"mgnMode"`
	Lever   string `json:"lever"`
	Upl     string `json:"upl"`
	MarkPx  string `json:"markPx"`
	Margin  string `json:"margin"`
	Imr     string `json:"imr"`
}

type rawPosition struct {
	qty, avgPx float64
	posSide    model.OrderSide
}

// GetPosition 只返回有张数的仓位，双向持仓模式下同一时间只持有一个方向
func (c *Client) GetPosition(ctx context.Context, symbol string) (*tmodel.Position, error) {
	pair, err := c.toCurrencyPair(symbol)
	if err != nil {
		return nil, err
	}
	prv, err := c.futuresPrv()
	if err != nil {
		return nil, err
	}
	var positions []rawPosition
	_, data, err := call(ctx, c, "get position", func() (struct{}, []byte, error) {
		res, data, err := prv.GetPositions(pair)
		for _, p := range res {
			positions = append(positions, rawPosition{p.Qty, p.AvgPx, p.PosSide})
		}
		return struct{}{}, data, err
	})
	if err != nil {
		return nil, err
	}

	var body struct {
		Data []positionDetail `json:"data"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode position: %w", err)
	}

	for i, p := range positions {
		if p.qty == 0 {
			continue
		}
		var side tmodel.Side
		switch p.posSide {
		case model.Futures_OpenBuy, model.Spot_Buy:
			side = tmodel.Long
		case model.Futures_OpenSell, model.Spot_Sell:
			side = tmodel.Short
		default:
			continue
		}
		pos := &tmodel.Position{
			Symbol:     pair.Symbol,
			Side:       side,
			Size:       contractsToCoins(p.qty, pair.ContractVal),
			EntryPrice: p.avgPx,
		}
		if i < len(body.Data) {
			d := body.Data[i]
			pos.MgnMode = tmodel.OrderMgnMode(d.MgnMode)
			pos.Leverage, _ = strconv.Atoi(d.Lever)
			pos.UnrealizedPnl, _ = strconv.ParseFloat(d.Upl, 64)
			pos.MarkPrice, _ = strconv.ParseFloat(d.MarkPx, 64)
			pos.Margin, _ = strconv.ParseFloat(d.Margin, 64)
			if pos.Margin == 0 {
				pos.Margin, _ = strconv.ParseFloat(d.Imr, 64)
			}
		}
		return pos, nil
	}
	return nil, nil
}
