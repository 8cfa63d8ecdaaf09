package indicator

import (
	"math"

	"tradectl/internal/model"

	"github.com/markcheno/go-talib"
)

// lossFloor 平均亏损的下限，防止除零
const lossFloor = 1e-9

// RSI 使用 Wilder 平滑（alpha = 1/period 的递推 EMA）计算相对强弱指数。
// 返回值与 closes 等长，第 0 位没有意义，记为 NaN。
// 平滑从第一个差值开始递推，与 talib 先取 SMA 作种子的做法不同。
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	out[0] = math.NaN()
	if period < 1 {
		period = 1
	}
	alpha := 1 / float64(period)

	var avgGain, avgLoss float64
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain, loss := math.Max(d, 0), math.Max(-d, 0)
		if i == 1 {
			avgGain, avgLoss = gain, loss
		} else {
			avgGain = alpha*gain + (1-alpha)*avgGain
			avgLoss = alpha*loss + (1-alpha)*avgLoss
		}
		denom := avgLoss
		if denom == 0 {
			denom = lossFloor
		}
		out[i] = 100 - 100/(1+avgGain/denom)
	}
	return out
}

// ATR 返回有效的 Wilder ATR 序列（去掉 talib 前 period 个占位值）。
// K线不足 period+1 根时返回 nil。
func ATR(candles []model.Candle, period int) []float64 {
	if period < 1 || len(candles) < period+1 {
		return nil
	}
	high, low, close := model.HLC(candles)
	atr := talib.Atr(high, low, close, period)
	return atr[period:]
}

// LastATR 最新的 ATR 值，不足时返回 0 和 false
func LastATR(candles []model.Candle, period int) (float64, bool) {
	atr := ATR(candles, period)
	if len(atr) == 0 {
		return 0, false
	}
	return atr[len(atr)-1], true
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
