package indicator

import (
	"sync"

	"opto/internal/decision"
	"opto/internal/market"
)

const (
	// 权重边界：下限保证指标不会被彻底压制
	WeightFloor = 0.1
	WeightCap   = 1.0

	// 归一化值的方向判定带
	directionBand = 0.3

	// 中性区间的固定低置信度
	neutralConfidence = 0.3
)

// Indicator 是指标的能力接口：纯函数计算 + 自调权重。
// Calculate 对同一窗口必须返回相同结果；历史不足时返回零置信度中性信号。
type Indicator interface {
	Name() string
	Calculate(candles market.Candles) decision.Signal
	AdjustWeight(success bool)
	ResetWeight()
	Weight() float64
	InitialWeight() float64
	SetWeight(w float64)
}

// weighted 提供所有指标共用的权重状态。
type weighted struct {
	name          string
	initialWeight float64
	learningRate  float64

	mu     sync.Mutex
	weight float64
}

func newWeighted(name string, initialWeight, learningRate float64) weighted {
	w := clampWeight(initialWeight)
	return weighted{
		name:          name,
		initialWeight: w,
		learningRate:  learningRate,
		weight:        w,
	}
}

func (w *weighted) Name() string { return w.name }

func (w *weighted) Weight() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.weight
}

func (w *weighted) InitialWeight() float64 { return w.initialWeight }

func (w *weighted) SetWeight(val float64) {
	w.mu.Lock()
	w.weight = clampWeight(val)
	w.mu.Unlock()
}

// AdjustWeight 按学习率调整权重：成功加、失败减，始终夹在 [0.1, 1.0]。
func (w *weighted) AdjustWeight(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if success {
		w.weight += w.learningRate
	} else {
		w.weight -= w.learningRate
	}
	w.weight = clampWeight(w.weight)
}

// ResetWeight 恢复初始权重，与调整历史无关。
func (w *weighted) ResetWeight() {
	w.mu.Lock()
	w.weight = w.initialWeight
	w.mu.Unlock()
}

func clampWeight(v float64) float64 {
	if v < WeightFloor {
		return WeightFloor
	}
	if v > WeightCap {
		return WeightCap
	}
	return v
}

// classify 把归一化值 v ∈ [-1,1] 映射为方向：|v| 超出 ±0.3 判定带才有方向。
func classify(v float64) decision.Direction {
	switch {
	case v > directionBand:
		return decision.DirectionBuy
	case v < -directionBand:
		return decision.DirectionSell
	default:
		return decision.DirectionNeutral
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
