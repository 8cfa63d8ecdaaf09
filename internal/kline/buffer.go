package kline

import (
	"tradectl/internal/model"
)

// Buffer 有界的K线窗口，按 OpenTime 严格递增。
// 只由一个决策循环持有，不加锁。
type Buffer struct {
	max     int
	candles []model.Candle
}

func NewBuffer(max int) *Buffer {
	if max < 1 {
		max = 1
	}
	return &Buffer{
		max:     max,
		candles: make([]model.Candle, 0, max),
	}
}

// AddOrUpdate 写入一根K线，返回是否被接受。
// 同一 OpenTime 视为对未收盘K线的修正，直接替换最后一根；更早的K线丢弃。
func (b *Buffer) AddOrUpdate(c model.Candle) bool {
	n := len(b.candles)
	if n > 0 {
		last := b.candles[n-1].OpenTime
		switch {
		case c.OpenTime.Equal(last):
			b.candles[n-1] = c
			return true
		case c.OpenTime.Before(last):
			return false
		}
	}
	b.candles = append(b.candles, c)
	if len(b.candles) > b.max {
		// 复制到新切片，避免底层数组无限增长
		b.candles = append(make([]model.Candle, 0, b.max), b.candles[len(b.candles)-b.max:]...)
	}
	return true
}

// Seed 批量写入历史K线，返回被接受的数量
func (b *Buffer) Seed(candles []model.Candle) int {
	accepted := 0
	for _, c := range candles {
		if b.AddOrUpdate(c) {
			accepted++
		}
	}
	return accepted
}

// Window 返回最后 n 根K线的副本，n <= 0 时返回全部
func (b *Buffer) Window(n int) []model.Candle {
	if n <= 0 || n > len(b.candles) {
		n = len(b.candles)
	}
	out := make([]model.Candle, n)
	copy(out, b.candles[len(b.candles)-n:])
	return out
}

func (b *Buffer) Len() int {
	return len(b.candles)
}

func (b *Buffer) Cap() int {
	return b.max
}

func (b *Buffer) Last() (model.Candle, bool) {
	if len(b.candles) == 0 {
		return model.Candle{}, false
	}
	return b.candles[len(b.candles)-1], true
}
