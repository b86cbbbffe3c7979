package decision

import (
	"time"

	"opto/internal/market"
)

// Scorer 是聚合器对指标的最小依赖；indicator.Indicator 天然满足。
type Scorer interface {
	Name() string
	Calculate(candles market.Candles) Signal
	Weight() float64
}

// Aggregator 把一组带权指标信号合成为单个方向裁决。
type Aggregator struct {
	waitThreshold float64
}

func NewAggregator(waitThreshold float64) *Aggregator {
	if waitThreshold <= 0 {
		waitThreshold = 0.2
	}
	return &Aggregator{waitThreshold: waitThreshold}
}

// Aggregate 计算加权得分 score = Σ(v_i × w_i) / Σ(w_i)。
// |score| 低于阈值或总权重为零时返回 WAIT，绝不做零除。
func (a *Aggregator) Aggregate(symbol string, scorers []Scorer, candles market.Candles) Decision {
	scores := make(map[string]float64, len(scorers))
	var weightedSum, totalWeight float64
	for _, sc := range scorers {
		if sc == nil {
			continue
		}
		sig := sc.Calculate(candles)
		w := sc.Weight()
		contribution := sig.DirectionalValue() * w
		scores[sc.Name()] = contribution
		weightedSum += contribution
		totalWeight += w
	}

	d := Decision{
		Symbol:          symbol,
		Direction:       DirectionWait,
		IndicatorScores: scores,
		Timestamp:       time.Now(),
	}
	if totalWeight == 0 {
		return d
	}
	score := weightedSum / totalWeight
	if score > a.waitThreshold {
		d.Direction = DirectionBuy
		d.Confidence = score
	} else if score < -a.waitThreshold {
		d.Direction = DirectionSell
		d.Confidence = -score
	}
	return d
}
