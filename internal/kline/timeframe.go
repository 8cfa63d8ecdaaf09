package kline

import (
	"fmt"
	"time"
)

// OKX 的 bar 参数
var timeframes = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1H":  time.Hour,
	"4H":  4 * time.Hour,
}

// ParseTimeframe "5m" -> 5 分钟
func ParseTimeframe(tf string) (time.Duration, error) {
	d, ok := timeframes[tf]
	if !ok {
		return 0, fmt.Errorf("unsupported timeframe %q", tf)
	}
	return d, nil
}

// Bucket K线所在的周期序号，用于按周期节奏打印日志
func Bucket(openTime time.Time, tf time.Duration) int64 {
	if tf <= 0 {
		return openTime.UnixMilli()
	}
	return openTime.UnixMilli() / tf.Milliseconds()
}
