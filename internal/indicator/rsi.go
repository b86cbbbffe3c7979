package indicator

import (
	"opto/internal/decision"
	"opto/internal/market"

	talib "github.com/markcheno/go-talib"
)

// RSIConfig 控制 RSI 指标参数。
type RSIConfig struct {
	Name          string
	Period        int
	Oversold      float64
	Overbought    float64
	InitialWeight float64
	LearningRate  float64
}

// RSI 是参考指标：超卖买入、超买卖出，置信度随极端程度线性放大。
type RSI struct {
	weighted
	period     int
	oversold   float64
	overbought float64
}

func NewRSI(cfg RSIConfig) *RSI {
	if cfg.Name == "" {
		cfg.Name = "rsi"
	}
	if cfg.Period <= 0 {
		cfg.Period = 14
	}
	if cfg.Oversold <= 0 {
		cfg.Oversold = 30
	}
	if cfg.Overbought <= 0 {
		cfg.Overbought = 70
	}
	if cfg.InitialWeight <= 0 {
		cfg.InitialWeight = 1.0
	}
	return &RSI{
		weighted:   newWeighted(cfg.Name, cfg.InitialWeight, cfg.LearningRate),
		period:     cfg.Period,
		oversold:   cfg.Oversold,
		overbought: cfg.Overbought,
	}
}

func (r *RSI) Calculate(candles market.Candles) decision.Signal {
	if len(candles) < r.period+1 {
		return decision.NeutralSignal()
	}
	series := talib.Rsi(candles.Closes(), r.period)
	if len(series) == 0 {
		return decision.NeutralSignal()
	}
	val := series[len(series)-1]
	switch {
	case val < r.oversold:
		conf := clamp01((r.oversold - val) / r.oversold)
		return decision.Signal{Direction: decision.DirectionBuy, Strength: conf, Confidence: conf}
	case val > r.overbought:
		conf := clamp01((val - r.overbought) / (100 - r.overbought))
		return decision.Signal{Direction: decision.DirectionSell, Strength: conf, Confidence: conf}
	default:
		return decision.Signal{Direction: decision.DirectionNeutral, Confidence: neutralConfidence}
	}
}
