package indicator

import (
	"opto/internal/decision"
	"opto/internal/market"

	talib "github.com/markcheno/go-talib"
)

// TrendConfig 控制 EMA 趋势指标参数。
type TrendConfig struct {
	Name          string
	FastPeriod    int
	SlowPeriod    int
	InitialWeight float64
	LearningRate  float64
}

// Trend 用快慢 EMA 的相对价差衡量趋势方向。
// 价差按 spreadScale 归一化到 [-1,1]，再套统一的 ±0.3 判定带。
type Trend struct {
	weighted
	fast int
	slow int
}

// 0.5% 的 EMA 价差即视为满格趋势
const trendSpreadScale = 200.0

func NewTrend(cfg TrendConfig) *Trend {
	if cfg.Name == "" {
		cfg.Name = "trend"
	}
	if cfg.FastPeriod <= 0 {
		cfg.FastPeriod = 9
	}
	if cfg.SlowPeriod <= cfg.FastPeriod {
		cfg.SlowPeriod = cfg.FastPeriod * 2
	}
	if cfg.InitialWeight <= 0 {
		cfg.InitialWeight = 1.0
	}
	return &Trend{
		weighted: newWeighted(cfg.Name, cfg.InitialWeight, cfg.LearningRate),
		fast:     cfg.FastPeriod,
		slow:     cfg.SlowPeriod,
	}
}

func (t *Trend) Calculate(candles market.Candles) decision.Signal {
	if len(candles) < t.slow+1 {
		return decision.NeutralSignal()
	}
	closes := candles.Closes()
	fastSeries := talib.Ema(closes, t.fast)
	slowSeries := talib.Ema(closes, t.slow)
	if len(fastSeries) == 0 || len(slowSeries) == 0 {
		return decision.NeutralSignal()
	}
	fast := fastSeries[len(fastSeries)-1]
	slow := slowSeries[len(slowSeries)-1]
	if slow == 0 {
		return decision.NeutralSignal()
	}
	v := (fast - slow) / slow * trendSpreadScale
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	dir := classify(v)
	if dir == decision.DirectionNeutral {
		return decision.Signal{Direction: decision.DirectionNeutral, Confidence: neutralConfidence}
	}
	extremity := clamp01((abs(v) - directionBand) / (1 - directionBand))
	return decision.Signal{Direction: dir, Strength: abs(v), Confidence: extremity}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
