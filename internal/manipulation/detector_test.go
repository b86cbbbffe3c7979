package manipulation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"opto/internal/market"
)

// normalCandles 构造 n 根温和上行的 K 线：0.4% 实体、常规影线、均量 100。
func normalCandles(n int) market.Candles {
	out := make(market.Candles, n)
	for i := range out {
		out[i] = market.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     100, Close: 100.4, High: 100.5, Low: 99.9,
			Volume: 100,
		}
	}
	return out
}

func TestDetectSingleHeuristicIsNoise(t *testing.T) {
	d := NewDetector()

	// 只命中放量不动：量 4 倍均量，实体 0.05%，波幅正常
	candles := normalCandles(30)
	candles[len(candles)-1] = market.Candle{
		Open: 100, Close: 100.05, High: 100.5, Low: 99.9,
		Volume: 400,
	}
	res := d.Detect(candles)
	assert.Contains(t, res.Reasons, ReasonVolumeSpike)
	assert.False(t, res.Flagged, "单条启发式按噪声处理")
}

func TestDetectWickPatternAloneIsNoise(t *testing.T) {
	d := NewDetector()

	// 最近 5 根全是上影线扫损形态，但量与波幅正常
	candles := normalCandles(30)
	for i := len(candles) - 5; i < len(candles); i++ {
		candles[i] = market.Candle{
			Open: 100, Close: 100.05, High: 100.5, Low: 100,
			Volume: 100,
		}
	}
	res := d.Detect(candles)
	assert.Contains(t, res.Reasons, ReasonWickPattern)
	assert.False(t, res.Flagged)
}

func TestDetectTwoHeuristicsFlag(t *testing.T) {
	d := NewDetector()

	// 放量不动 + 波幅异常收窄同时命中
	candles := normalCandles(30)
	candles[len(candles)-1] = market.Candle{
		Open: 100, Close: 100.05, High: 100.1, Low: 100,
		Volume: 400,
	}
	res := d.Detect(candles)
	assert.True(t, res.Flagged)
	assert.Contains(t, res.Reasons, ReasonVolumeSpike)
	assert.Contains(t, res.Reasons, ReasonTightSpread)
}

func TestDetectUnsupportedReversal(t *testing.T) {
	d := NewDetector()

	candles := normalCandles(30)
	// 先 1% 上冲，再缩量 1% 反转
	candles[len(candles)-2] = market.Candle{
		Open: 100, Close: 101, High: 101.1, Low: 99.9,
		Volume: 100,
	}
	candles[len(candles)-1] = market.Candle{
		Open: 101, Close: 99.98, High: 101.1, Low: 99.9,
		Volume: 90,
	}
	res := d.Detect(candles)
	assert.Contains(t, res.Reasons, ReasonFakeReversal)
}

func TestSensitivityClamped(t *testing.T) {
	d := NewDetector()
	assert.InDelta(t, 1.0, d.Sensitivity(), 1e-9)

	for i := 0; i < 30; i++ {
		d.Raise()
	}
	assert.InDelta(t, 2.0, d.Sensitivity(), 1e-9, "上限 2.0")

	for i := 0; i < 30; i++ {
		d.Decay()
	}
	assert.InDelta(t, 1.0, d.Sensitivity(), 1e-9, "衰减回到基线即止")
}

func TestRaisedSensitivityCatchesSmallerSpike(t *testing.T) {
	// 2.2 倍均量 + 收窄波幅：基线敏感度下量能阈值 3 倍，只命中一条
	candles := normalCandles(30)
	candles[len(candles)-1] = market.Candle{
		Open: 100, Close: 100.05, High: 100.1, Low: 100,
		Volume: 220,
	}

	base := NewDetector()
	assert.False(t, base.Detect(candles).Flagged)

	sharp := NewDetector()
	for i := 0; i < 4; i++ {
		sharp.Raise() // 敏感度 1.4，量能阈值降到约 2.14 倍
	}
	res := sharp.Detect(candles)
	assert.True(t, res.Flagged)
	assert.Contains(t, res.Reasons, ReasonVolumeSpike)
	assert.Contains(t, res.Reasons, ReasonTightSpread)
}
