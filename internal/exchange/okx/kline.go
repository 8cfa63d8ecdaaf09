package okx

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"tradectl/internal/errs"
	"tradectl/internal/kline"
	tmodel "tradectl/internal/model"

	"github.com/nntaoli-project/goex/v2/model"
)

var klinePeriods = map[string]model.KlinePeriod{
	"1m":  model.Kline_1min,
	"5m":  model.Kline_5min,
	"15m": model.Kline_15min,
	"30m": model.Kline_30min,
	"1H":  model.Kline_1h,
	"4H":  model.Kline_4h,
}

// Klines before 之前最多 limit 根K线，按开盘时间升序返回
func (c *Client) Klines(ctx context.Context, symbol, timeframe string, before time.Time, limit int) ([]tmodel.Candle, error) {
	period, ok := klinePeriods[timeframe]
	if !ok {
		return nil, errs.Configurationf("get klines", "unsupported timeframe %q", timeframe)
	}
	tf, err := kline.ParseTimeframe(timeframe)
	if err != nil {
		return nil, errs.Configuration("get klines", err)
	}
	pair, err := c.toCurrencyPair(symbol)
	if err != nil {
		return nil, err
	}

	var opts []model.OptionParameter
	if limit > 0 {
		opts = append(opts, model.OptionParameter{Key: "limit", Value: strconv.Itoa(limit)})
	}
	if !before.IsZero() {
		// okx 的 after 表示请求此时间戳之前的数据
		opts = append(opts, model.OptionParameter{Key: "after", Value: fmt.Sprintf("%d", before.UnixMilli())})
	}

	var candles []tmodel.Candle
	_, _, err = call(ctx, c, "get klines", func() (struct{}, []byte, error) {
		items, data, err := c.pub.GetKline(pair, period, opts...)
		now := time.Now()
		for _, item := range items {
			open := time.UnixMilli(item.Timestamp)
			candles = append(candles, tmodel.Candle{
				OpenTime:  open,
				CloseTime: open.Add(tf),
				Open:      item.Open,
				High:      item.High,
				Low:       item.Low,
				Close:     item.Close,
				Volume:    item.Vol,
				Confirmed: !open.Add(tf).After(now),
			})
		}
		return struct{}{}, data, err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles, nil
}
