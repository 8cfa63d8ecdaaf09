package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tradectl/internal/exchange"
	"tradectl/internal/kline"
	"tradectl/internal/model"
	"tradectl/pkg/logger"

	"golang.org/x/time/rate"
)

const (
	PageSize        = 200
	RequestInterval = 200 * time.Millisecond
)

// Backfiller 分页拉取历史K线，从最新往前翻页，自带限速
type Backfiller struct {
	src     exchange.KlineSource
	limiter *rate.Limiter
	now     func() time.Time
}

func NewBackfiller(src exchange.KlineSource) *Backfiller {
	return &Backfiller{
		src:     src,
		limiter: rate.NewLimiter(rate.Every(RequestInterval), 1),
		now:     time.Now,
	}
}

// WithLimiter 测试时放开限速
func (b *Backfiller) WithLimiter(l *rate.Limiter) *Backfiller {
	b.limiter = l
	return b
}

// Fetch 最近 days 天的已收盘K线，按开盘时间升序、去重
func (b *Backfiller) Fetch(ctx context.Context, symbol, timeframe string, days int) ([]model.Candle, error) {
	if _, err := kline.ParseTimeframe(timeframe); err != nil {
		return nil, err
	}
	end := b.now()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)

	seen := make(map[int64]struct{})
	var out []model.Candle
	before := end
	for page := 0; ; page++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		batch, err := b.src.Klines(ctx, symbol, timeframe, before, PageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch klines page %d before %s: %w", page, before.Format(time.RFC3339), err)
		}
		if len(batch) == 0 {
			break
		}

		oldest := batch[0].OpenTime
		for _, c := range batch {
			if c.OpenTime.Before(oldest) {
				oldest = c.OpenTime
			}
			if c.OpenTime.Before(start) || !c.Confirmed {
				continue
			}
			key := c.OpenTime.UnixMilli()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c)
		}
		if !oldest.Before(before) || !oldest.After(start) {
			break
		}
		before = oldest
	}

	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	logger.Infof("[history] %s %s backfilled %d candles over %d days", symbol, timeframe, len(out), days)
	return out, nil
}
