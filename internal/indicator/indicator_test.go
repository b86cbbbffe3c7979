package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opto/internal/decision"
	"opto/internal/market"
)

func TestWeightAdjustClamp(t *testing.T) {
	w := newWeighted("test", 0.95, 0.1)

	w.AdjustWeight(true)
	assert.Equal(t, WeightCap, w.Weight(), "上调不得越过 1.0 上限")

	for i := 0; i < 20; i++ {
		w.AdjustWeight(false)
	}
	assert.Equal(t, WeightFloor, w.Weight(), "连续下调停在 0.1 下限")
}

func TestWeightResetIdempotent(t *testing.T) {
	w := newWeighted("test", 0.7, 0.05)
	w.AdjustWeight(true)
	w.AdjustWeight(true)
	require.InDelta(t, 0.8, w.Weight(), 1e-9)

	w.ResetWeight()
	assert.InDelta(t, 0.7, w.Weight(), 1e-9)
	w.ResetWeight()
	assert.InDelta(t, 0.7, w.Weight(), 1e-9, "重复 reset 结果不变")
}

func TestWeightInitialClamped(t *testing.T) {
	w := newWeighted("test", 5.0, 0.05)
	assert.Equal(t, WeightCap, w.Weight())
	assert.Equal(t, WeightCap, w.InitialWeight())
}

func TestClassifyBand(t *testing.T) {
	assert.Equal(t, decision.DirectionBuy, classify(0.31))
	assert.Equal(t, decision.DirectionSell, classify(-0.31))
	assert.Equal(t, decision.DirectionNeutral, classify(0.3))
	assert.Equal(t, decision.DirectionNeutral, classify(-0.3))
	assert.Equal(t, decision.DirectionNeutral, classify(0))
}

// flatCandles 构造 n 根收盘价恒定的 K 线。
func flatCandles(n int, price float64) market.Candles {
	out := make(market.Candles, n)
	for i := range out {
		out[i] = market.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     price, High: price, Low: price, Close: price,
			Volume: 100,
		}
	}
	return out
}

func TestRSIInsufficientData(t *testing.T) {
	rsi := NewRSI(RSIConfig{InitialWeight: 1, LearningRate: 0.05})
	sig := rsi.Calculate(flatCandles(10, 100))
	assert.Equal(t, decision.DirectionNeutral, sig.Direction)
	assert.Zero(t, sig.Confidence, "数据不足返回零置信度")
}

func TestRSIOversoldBuys(t *testing.T) {
	// 持续下跌把 RSI 压进超卖区
	candles := make(market.Candles, 40)
	price := 200.0
	for i := range candles {
		next := price - 2
		candles[i] = market.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     price, High: price, Low: next, Close: next,
			Volume: 100,
		}
		price = next
	}
	rsi := NewRSI(RSIConfig{InitialWeight: 1, LearningRate: 0.05})
	sig := rsi.Calculate(candles)
	assert.Equal(t, decision.DirectionBuy, sig.Direction)
	assert.Greater(t, sig.Confidence, 0.5, "深度超卖应高置信")
}

func TestRSINeutralMidRange(t *testing.T) {
	// 涨跌交替让 RSI 停在中间区
	candles := make(market.Candles, 40)
	price := 100.0
	for i := range candles {
		delta := 1.0
		if i%2 == 0 {
			delta = -1.0
		}
		next := price + delta
		candles[i] = market.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     price, High: maxF(price, next), Low: minF(price, next), Close: next,
			Volume: 100,
		}
		price = next
	}
	rsi := NewRSI(RSIConfig{InitialWeight: 1, LearningRate: 0.05})
	sig := rsi.Calculate(candles)
	assert.Equal(t, decision.DirectionNeutral, sig.Direction)
	assert.InDelta(t, 0.3, sig.Confidence, 1e-9, "中性区固定 0.3 置信度")
}

func TestTrendFollowsDirection(t *testing.T) {
	up := make(market.Candles, 60)
	price := 100.0
	for i := range up {
		next := price * 1.01
		up[i] = market.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     price, High: next, Low: price, Close: next,
			Volume: 100,
		}
		price = next
	}
	trend := NewTrend(TrendConfig{InitialWeight: 1, LearningRate: 0.05})
	sig := trend.Calculate(up)
	assert.Equal(t, decision.DirectionBuy, sig.Direction)

	down := make(market.Candles, 60)
	price = 100.0
	for i := range down {
		next := price * 0.99
		down[i] = market.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     price, High: price, Low: next, Close: next,
			Volume: 100,
		}
		price = next
	}
	sig = trend.Calculate(down)
	assert.Equal(t, decision.DirectionSell, sig.Direction)
}

func TestVolumeNeutralWithoutSurge(t *testing.T) {
	vol := NewVolume(VolumeConfig{InitialWeight: 1, LearningRate: 0.05})
	sig := vol.Calculate(flatCandles(40, 100))
	assert.Equal(t, decision.DirectionNeutral, sig.Direction)
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
