package exchange

import (
	"context"
	"testing"

	"tradectl/internal/errs"
	"tradectl/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sym = "BTC-USDT-SWAP"

func TestPaperRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(1000)
	require.NoError(t, p.SetLeverage(ctx, sym, 2))
	p.SetPrice(100)

	pos, err := p.GetPosition(ctx, sym)
	require.NoError(t, err)
	assert.Nil(t, pos)

	resp, err := p.PlaceOrder(ctx, &model.Order{Symbol: sym, Side: model.Buy, PosSide: model.Long, OrderType: model.Market, Quantity: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.OrderId)

	pos, err = p.GetPosition(ctx, sym)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, model.Long, pos.Side)
	assert.Equal(t, 2.0, pos.Size)
	assert.Equal(t, 100.0, pos.EntryPrice)

	bal, _ := p.GetBalance(ctx)
	assert.Equal(t, 100.0, bal.UsedMargin)
	assert.Equal(t, 900.0, bal.AvailableCapital)

	require.NoError(t, p.SetProtectiveStop(ctx, sym, model.Long, 2, 4))
	d, ok := p.StopDistance(sym)
	assert.True(t, ok)
	assert.Equal(t, 4.0, d)

	p.SetPrice(110)
	_, err = p.PlaceOrder(ctx, &model.Order{Symbol: sym, Side: model.Sell, PosSide: model.Long, OrderType: model.Market, Quantity: 2, ReduceOnly: true})
	require.NoError(t, err)

	pos, _ = p.GetPosition(ctx, sym)
	assert.Nil(t, pos)
	bal, _ = p.GetBalance(ctx)
	assert.Equal(t, 1020.0, bal.WalletBalance)
	assert.Len(t, p.Fills(), 2)
	_, ok = p.StopDistance(sym)
	assert.False(t, ok)
}

func TestPaperRejections(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(1000)

	_, err := p.PlaceOrder(ctx, &model.Order{Symbol: sym, Side: model.Buy, OrderType: model.Market, Quantity: 1})
	assert.True(t, errs.Is(err, errs.KindOrderRejection), "no price yet")

	p.SetPrice(100)
	_, err = p.PlaceOrder(ctx, &model.Order{Symbol: sym, Side: model.Sell, PosSide: model.Short, OrderType: model.Market, Quantity: 1, ReduceOnly: true})
	assert.True(t, errs.Is(err, errs.KindOrderRejection), "nothing to reduce")

	assert.Error(t, p.SetProtectiveStop(ctx, sym, model.Long, 1, 2))
	assert.Error(t, p.SetLeverage(ctx, sym, 0))
}

func TestPaperProtectiveStopTriggers(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		side   model.Side
		prices []float64
		exit   float64
	}{
		// 最优价 103，回撤到 99 触发
		{"long", model.Long, []float64{103, 100, 99}, 99},
		// 最优价 97，反弹到 101 触发
		{"short", model.Short, []float64{97, 100, 101}, 101},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := NewPaper(1000)
			p.SetPrice(100)
			_, err := p.PlaceOrder(ctx, &model.Order{Symbol: sym, Side: model.OpenSide(c.side), PosSide: c.side, OrderType: model.Market, Quantity: 1})
			require.NoError(t, err)
			require.NoError(t, p.SetProtectiveStop(ctx, sym, c.side, 1, 4))

			for i, price := range c.prices {
				p.SetPrice(price)
				pos, _ := p.GetPosition(ctx, sym)
				if i < len(c.prices)-1 {
					require.NotNil(t, pos, "price %v", price)
				} else {
					assert.Nil(t, pos)
				}
			}

			fills := p.Fills()
			require.Len(t, fills, 2)
			assert.True(t, fills[1].ReduceOnly)
			assert.Equal(t, model.CloseSide(c.side), fills[1].Side)
			assert.Equal(t, c.exit, fills[1].Price)
			bal, _ := p.GetBalance(ctx)
			assert.Equal(t, 999.0, bal.WalletBalance)
			_, ok := p.StopDistance(sym)
			assert.False(t, ok)
		})
	}
}
