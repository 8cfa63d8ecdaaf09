package model

import "time"

// Candle 一根K线，OpenTime 在缓冲区内严格递增
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`    // 成交量 以币为单位
	Confirmed bool      `json:"confirmed"` // K线是否已收盘
}

func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// HLC 拆分出 high/low/close 三个序列，给 talib 使用
func HLC(candles []Candle) (high, low, close []float64) {
	high = make([]float64, len(candles))
	low = make([]float64, len(candles))
	close = make([]float64, len(candles))
	for i, c := range candles {
		high[i] = c.High
		low[i] = c.Low
		close[i] = c.Close
	}
	return
}
