package indicator

import (
	"opto/internal/decision"
	"opto/internal/market"

	talib "github.com/markcheno/go-talib"
)

// VolumeConfig 控制量能指标参数。
type VolumeConfig struct {
	Name          string
	Period        int
	SurgeRatio    float64
	InitialWeight float64
	LearningRate  float64
}

// Volume 衡量放量方向：成交量明显高于均量时，跟随当根 K 线的实体方向，
// 量比越高越有信心；未放量则视为中性。
type Volume struct {
	weighted
	period     int
	surgeRatio float64
}

func NewVolume(cfg VolumeConfig) *Volume {
	if cfg.Name == "" {
		cfg.Name = "volume"
	}
	if cfg.Period <= 0 {
		cfg.Period = 20
	}
	if cfg.SurgeRatio <= 1 {
		cfg.SurgeRatio = 1.5
	}
	if cfg.InitialWeight <= 0 {
		cfg.InitialWeight = 1.0
	}
	return &Volume{
		weighted:   newWeighted(cfg.Name, cfg.InitialWeight, cfg.LearningRate),
		period:     cfg.Period,
		surgeRatio: cfg.SurgeRatio,
	}
}

func (vi *Volume) Calculate(candles market.Candles) decision.Signal {
	if len(candles) < vi.period+1 {
		return decision.NeutralSignal()
	}
	volumes := candles.Volumes()
	avgSeries := talib.Sma(volumes, vi.period)
	if len(avgSeries) == 0 {
		return decision.NeutralSignal()
	}
	avg := avgSeries[len(avgSeries)-1]
	if avg <= 0 {
		return decision.NeutralSignal()
	}
	last, _ := candles.Latest()
	ratio := last.Volume / avg
	if ratio < vi.surgeRatio || last.Body() == 0 {
		return decision.Signal{Direction: decision.DirectionNeutral, Confidence: neutralConfidence}
	}
	// 量比达到 3 倍均量记为满格
	conf := clamp01((ratio - vi.surgeRatio) / (3.0 - vi.surgeRatio))
	dir := decision.DirectionSell
	if last.Bullish() {
		dir = decision.DirectionBuy
	}
	return decision.Signal{Direction: dir, Strength: conf, Confidence: conf}
}
