package manipulation

import (
	"sync"

	"opto/internal/market"
)

// ReasonCode 标识单条启发式命中。
type ReasonCode string

const (
	ReasonVolumeSpike  ReasonCode = "volume_spike_no_move"
	ReasonWickPattern  ReasonCode = "repeated_wicks"
	ReasonTightSpread  ReasonCode = "tight_spread"
	ReasonFakeReversal ReasonCode = "unsupported_reversal"
)

// Result 是一次检测的输出。只有两条以上启发式同时命中才置 Flagged，
// 单条命中按噪声处理。
type Result struct {
	Flagged bool
	Reasons []ReasonCode
}

const (
	sensitivityMin  = 0.5
	sensitivityMax  = 2.0
	sensitivityStep = 0.1
	sensitivityBase = 1.0
)

// Detector 识别疑似人为操纵的价格行为（蜜罐式 K 线）。
// sensitivity 由决策引擎在连败后調高、恢复后向基线衰减，始终夹在 [0.5, 2.0]。
// 注意：各启发式阈值随 sensitivity 反向缩放（除而不是乘）——调高敏感度
// 意味着更小的异动就会命中，连败时收紧而不是放松检测。
type Detector struct {
	mu          sync.Mutex
	sensitivity float64
}

func NewDetector() *Detector {
	return &Detector{sensitivity: sensitivityBase}
}

func (d *Detector) Sensitivity() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sensitivity
}

// Raise 连败后调高敏感度。
func (d *Detector) Raise() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sensitivity = clampSensitivity(d.sensitivity + sensitivityStep)
}

// Decay 胜利后向基线回落。
func (d *Detector) Decay() {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.sensitivity > sensitivityBase:
		d.sensitivity = clampSensitivity(d.sensitivity - sensitivityStep)
	case d.sensitivity < sensitivityBase:
		d.sensitivity = clampSensitivity(d.sensitivity + sensitivityStep)
	}
}

func clampSensitivity(v float64) float64 {
	if v < sensitivityMin {
		return sensitivityMin
	}
	if v > sensitivityMax {
		return sensitivityMax
	}
	return v
}

// Detect 对最近的 K 线窗口跑全部启发式。
func (d *Detector) Detect(candles market.Candles) Result {
	sens := d.Sensitivity()
	var reasons []ReasonCode
	if volumeSpikeWithoutMove(candles, sens) {
		reasons = append(reasons, ReasonVolumeSpike)
	}
	if repeatedWickPattern(candles, sens) {
		reasons = append(reasons, ReasonWickPattern)
	}
	if abnormallyTightSpread(candles) {
		reasons = append(reasons, ReasonTightSpread)
	}
	if unsupportedReversal(candles) {
		reasons = append(reasons, ReasonFakeReversal)
	}
	return Result{Flagged: len(reasons) >= 2, Reasons: reasons}
}

// volumeSpikeWithoutMove：末根成交量超过 20 根均量的 3/sensitivity 倍，
// 但价格几乎没动（|close-open|/open < 0.1%）。敏感度越高阈值越低。
func volumeSpikeWithoutMove(candles market.Candles, sens float64) bool {
	const lookback = 20
	if len(candles) < lookback+1 {
		return false
	}
	last, _ := candles.Latest()
	window := candles[:len(candles)-1].Last(lookback)
	var sum float64
	for _, c := range window {
		sum += c.Volume
	}
	mean := sum / float64(len(window))
	if mean <= 0 || last.Open == 0 {
		return false
	}
	move := last.Body() / last.Open
	return last.Volume > 3*mean/sens && move < 0.001
}

// repeatedWickPattern：最近 5 根中 ≥3 根呈单侧长影线（扫损形态），
// 影线占比阈值 0.6/sensitivity。
func repeatedWickPattern(candles market.Candles, sens float64) bool {
	const window = 5
	const needed = 3
	if len(candles) < window {
		return false
	}
	recent := candles.Last(window)
	threshold := 0.6 / sens
	upper, lower := 0, 0
	for _, c := range recent {
		rng := c.Range()
		if rng <= 0 {
			continue
		}
		if c.UpperWick()/rng > threshold {
			upper++
		}
		if c.LowerWick()/rng > threshold {
			lower++
		}
	}
	return upper >= needed || lower >= needed
}

// abnormallyTightSpread：末根波幅不足最近 10 根平均波幅的 30%。
func abnormallyTightSpread(candles market.Candles) bool {
	const lookback = 10
	if len(candles) < lookback+1 {
		return false
	}
	last, _ := candles.Latest()
	if last.Low <= 0 {
		return false
	}
	window := candles[:len(candles)-1].Last(lookback)
	var sum float64
	for _, c := range window {
		if c.Low > 0 {
			sum += c.Range() / c.Low
		}
	}
	mean := sum / float64(len(window))
	if mean <= 0 {
		return false
	}
	lastRange := last.Range() / last.Low
	return lastRange < 0.3*mean
}

// unsupportedReversal：≥0.5% 的行情紧接着反向 ≥0.5%，且反转那根量能未放大 20%。
func unsupportedReversal(candles market.Candles) bool {
	const movePct = 0.005
	if len(candles) < 2 {
		return false
	}
	prev := candles[len(candles)-2]
	last := candles[len(candles)-1]
	if prev.Open == 0 || last.Open == 0 || prev.Volume <= 0 {
		return false
	}
	prevMove := (prev.Close - prev.Open) / prev.Open
	lastMove := (last.Close - last.Open) / last.Open
	opposite := (prevMove > 0 && lastMove < 0) || (prevMove < 0 && lastMove > 0)
	if !opposite {
		return false
	}
	if absFloat(prevMove) < movePct || absFloat(lastMove) < movePct {
		return false
	}
	return last.Volume < prev.Volume*1.2
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
