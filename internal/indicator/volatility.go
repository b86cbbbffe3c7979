package indicator

import (
	"opto/internal/decision"
	"opto/internal/market"

	talib "github.com/markcheno/go-talib"
)

// VolatilityConfig 控制布林带指标参数。
type VolatilityConfig struct {
	Name          string
	Period        int
	NumDev        float64
	InitialWeight float64
	LearningRate  float64
}

// Volatility 基于布林带 %B 做均值回归：跌破下轨看涨、突破上轨看跌，
// 置信度与穿轨深度成正比（以半个带宽为满格）。
type Volatility struct {
	weighted
	period int
	numDev float64
}

func NewVolatility(cfg VolatilityConfig) *Volatility {
	if cfg.Name == "" {
		cfg.Name = "volatility"
	}
	if cfg.Period <= 0 {
		cfg.Period = 20
	}
	if cfg.NumDev <= 0 {
		cfg.NumDev = 2.0
	}
	if cfg.InitialWeight <= 0 {
		cfg.InitialWeight = 1.0
	}
	return &Volatility{
		weighted: newWeighted(cfg.Name, cfg.InitialWeight, cfg.LearningRate),
		period:   cfg.Period,
		numDev:   cfg.NumDev,
	}
}

func (v *Volatility) Calculate(candles market.Candles) decision.Signal {
	if len(candles) < v.period+1 {
		return decision.NeutralSignal()
	}
	closes := candles.Closes()
	upper, _, lower := talib.BBands(closes, v.period, v.numDev, v.numDev, talib.SMA)
	if len(upper) == 0 || len(lower) == 0 {
		return decision.NeutralSignal()
	}
	up := upper[len(upper)-1]
	low := lower[len(lower)-1]
	width := up - low
	if width <= 0 {
		return decision.NeutralSignal()
	}
	price := closes[len(closes)-1]
	switch {
	case price < low:
		conf := clamp01((low - price) / (width / 2))
		return decision.Signal{Direction: decision.DirectionBuy, Strength: conf, Confidence: conf}
	case price > up:
		conf := clamp01((price - up) / (width / 2))
		return decision.Signal{Direction: decision.DirectionSell, Strength: conf, Confidence: conf}
	default:
		return decision.Signal{Direction: decision.DirectionNeutral, Confidence: neutralConfidence}
	}
}
