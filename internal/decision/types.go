package decision

import "time"

// Direction 表示信号或决策的方向。
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
	DirectionWait    Direction = "WAIT"
)

// Signal 是单个指标在一次评估中的输出，评估结束即弃。
type Signal struct {
	Direction  Direction `json:"direction"`
	Strength   float64   `json:"strength"`   // [0,1]
	Confidence float64   `json:"confidence"` // [0,1]
}

// NeutralSignal 返回零置信度的中性信号（数据不足时的约定输出）。
func NeutralSignal() Signal {
	return Signal{Direction: DirectionNeutral}
}

// DirectionalValue 把信号映射为带符号分量：BUY→+strength，SELL→-strength，NEUTRAL→0。
func (s Signal) DirectionalValue() float64 {
	switch s.Direction {
	case DirectionBuy:
		return s.Strength
	case DirectionSell:
		return -s.Strength
	default:
		return 0
	}
}

// Decision 是一次评估 tick 的最终裁决，产生后不可变。
type Decision struct {
	Symbol          string             `json:"symbol"`
	Direction       Direction          `json:"direction"`
	Confidence      float64            `json:"confidence"`
	IndicatorScores map[string]float64 `json:"indicator_scores"`
	Timestamp       time.Time          `json:"timestamp"`
}

// signalClass 的置信度分桶边界
const (
	classStrongMin   = 0.75
	classModerateMin = 0.55
)

// SignalClass 给信号打分类标签，作为历史胜率记忆的键（方向 + 置信度桶）。
func SignalClass(dir Direction, confidence float64) string {
	bucket := "weak"
	switch {
	case confidence >= classStrongMin:
		bucket = "strong"
	case confidence >= classModerateMin:
		bucket = "moderate"
	}
	return string(dir) + ":" + bucket
}
