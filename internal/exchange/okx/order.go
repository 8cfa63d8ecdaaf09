package okx

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tradectl/internal/errs"
	tmodel "tradectl/internal/model"
	"tradectl/pkg/logger"

	"github.com/nntaoli-project/goex/v2/model"
	"github.com/nntaoli-project/goex/v2/okx/common"
)

// FloorFloat 向下取整保留 n 位小数
func FloorFloat(val float64, n int) float64 {
	factor := math.Pow10(n)
	return math.Floor(val*factor+1e-9) / factor
}

// coinsToContracts 合约下单的 sz 是张数，ctVal 为每张合约代表多少币
func coinsToContracts(qty, ctVal float64) float64 {
	if ctVal <= 0 {
		return qty
	}
	return FloorFloat(qty/ctVal, 2)
}

func contractsToCoins(sz, ctVal float64) float64 {
	if ctVal <= 0 {
		return sz
	}
	return sz * ctVal
}

// orderSide 开仓 / 平仓在 goex 中是不同的方向
func orderSide(order *tmodel.Order) (model.OrderSide, tmodel.Side, error) {
	posSide := order.PosSide
	if posSide == "" {
		posSide = tmodel.Long
		if order.Side == tmodel.Sell {
			posSide = tmodel.Short
		}
		if order.ReduceOnly {
			posSide = posSide.Opposite()
		}
	}
	switch {
	case !order.ReduceOnly && posSide == tmodel.Long:
		return model.Futures_OpenBuy, posSide, nil
	case !order.ReduceOnly && posSide == tmodel.Short:
		return model.Futures_OpenSell, posSide, nil
	case order.ReduceOnly && posSide == tmodel.Long:
		return model.Futures_CloseBuy, posSide, nil
	case order.ReduceOnly && posSide == tmodel.Short:
		return model.Futures_CloseSell, posSide, nil
	}
	return "", "", fmt.Errorf("invalid order side %q / %q", order.Side, order.PosSide)
}

// PlaceOrder Quantity 的单位是币，这里换算成张数
func (c *Client) PlaceOrder(ctx context.Context, order *tmodel.Order) (*tmodel.OrderResponse, error) {
	op := "place order"
	if order.ReduceOnly {
		op = "close position"
	}
	pair, err := c.toCurrencyPair(order.Symbol)
	if err != nil {
		return nil, err
	}
	side, posSide, err := orderSide(order)
	if err != nil {
		return nil, errs.OrderRejection(op, err)
	}
	sz := coinsToContracts(order.Quantity, pair.ContractVal)
	if sz <= 0 {
		return nil, errs.OrderRejection(op, fmt.Errorf("quantity %v is below one contract (ctVal=%v)", order.Quantity, pair.ContractVal))
	}

	orderType := model.OrderType_Market
	if order.OrderType == tmodel.Limit {
		orderType = model.OrderType_Limit
	}
	mgnMode := string(order.MgnMode)
	if mgnMode == "" {
		mgnMode = c.cfg.MgnMode
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = c.nextClientOrderID()
	}
	if order.Timestamp.IsZero() {
		order.Timestamp = time.Now()
	}

	opts := []model.OptionParameter{
		{Key: "tdMode", Value: mgnMode},
		{Key: "posSide", Value: string(posSide)},
		{Key: "clOrdId", Value: order.ClientOrderID},
	}
	if order.ReduceOnly {
		opts = append(opts, model.OptionParameter{Key: "reduceOnly", Value: "true"})
	}

	logger.Infof("[okx] CreateOrder %s side=%s sz=%v (qty=%v) clOrdId=%s", pair.Symbol, side, sz, order.Quantity, order.ClientOrderID)
	created, _, err := call(ctx, c, op, func() (*model.Order, []byte, error) {
		return c.prv.CreateOrder(pair, sz, order.Price, side, orderType, opts...)
	})
	if err != nil {
		return nil, err
	}
	return &tmodel.OrderResponse{
		OrderId:       created.Id,
		ClientOrderID: order.ClientOrderID,
		Status:        int(created.Status),
	}, nil
}

// SetLeverage 全仓模式不需要 posSide，逐仓时多空分别设置
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage < 1 {
		return errs.Configurationf("set leverage", "invalid leverage %d", leverage)
	}
	pair, err := c.toCurrencyPair(symbol)
	if err != nil {
		return err
	}
	prv, err := c.futuresPrv()
	if err != nil {
		return err
	}
	posSides := []string{""}
	if c.cfg.MgnMode == string(tmodel.OrderMgnModeIsolated) {
		posSides = []string{string(tmodel.Long), string(tmodel.Short)}
	}
	for _, ps := range posSides {
		opts := []model.OptionParameter{{Key: "mgnMode", Value: c.cfg.MgnMode}}
		if ps != "" {
			opts = append(opts, model.OptionParameter{Key: "posSide", Value: ps})
		}
		resp, _, err := call(ctx, c, "set leverage", func() ([]byte, []byte, error) {
			resp, err := prv.SetLeverage(pair.Symbol, strconv.Itoa(leverage), opts...)
			return resp, resp, err
		})
		if err != nil {
			return err
		}
		logger.Debugf("[okx] set leverage response: %s", string(resp))
	}
	return nil
}

// SetProtectiveStop 交易所端的移动止损（move_order_stop），回调幅度按价格距离设置
func (c *Client) SetProtectiveStop(ctx context.Context, symbol string, side tmodel.Side, qty, distance float64) error {
	if distance <= 0 {
		return errs.OrderRejection("protective stop", fmt.Errorf("invalid callback distance %v", distance))
	}
	pair, err := c.toCurrencyPair(symbol)
	if err != nil {
		return err
	}
	prv, err := c.futuresPrv()
	if err != nil {
		return err
	}
	sz := coinsToContracts(qty, pair.ContractVal)
	if sz <= 0 {
		return errs.OrderRejection("protective stop", fmt.Errorf("quantity %v is below one contract", qty))
	}

	params := url.Values{}
	params.Set("instId", pair.Symbol)
	params.Set("tdMode", c.cfg.MgnMode)
	params.Set("side", string(tmodel.CloseSide(side)))
	params.Set("posSide", string(side))
	params.Set("ordType", "move_order_stop")
	params.Set("sz", strconv.FormatFloat(sz, 'f', -1, 64))
	params.Set("callbackSpread", strconv.FormatFloat(distance, 'f', -1, 64))
	params.Set("reduceOnly", "true")
	common.AdaptOrderClientIDOptionParameter(&params)

	reqUrl := fmt.Sprintf("%s%s", prv.UriOpts.Endpoint, "/api/v5/trade/order-algo")
	_, _, err = call(ctx, c, "protective stop", func() (struct{}, []byte, error) {
		_, resp, err := prv.DoAuthRequest(http.MethodPost, reqUrl, &params, nil)
		return struct{}{}, resp, err
	})
	return err
}
