package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"opto/internal/decision"
	"opto/internal/gateway/notifier"
	"opto/internal/gateway/venue"
	"opto/internal/indicator"
	"opto/internal/learning"
	"opto/internal/ledger"
	"opto/internal/logger"
	"opto/internal/manipulation"
	"opto/internal/market"
	"opto/internal/risk"
	"opto/internal/sizing"
)

// sensitivityRaiseStreak：连败达到该值后调高操纵检测敏感度。
const sensitivityRaiseStreak = 3

// CandleGetter 是引擎对行情层的最小依赖。
type CandleGetter interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
}

// Persister 把周期产物写入持久层。nil 表示纯内存运行。
type Persister interface {
	AppendTrade(rec ledger.TradeRecord) error
	AppendOutcome(rec learning.OutcomeRecord) error
	SaveWeight(name string, weight, initialWeight float64) error
}

// Options 汇总引擎的全部协作方。
type Options struct {
	Symbols           []string
	Timeframe         string
	CandleLimit       int
	ExpirationMinutes int
	PayoutRatio       float64
	StartingBalance   float64

	MinConfidence    float64
	ConfidenceJitter float64

	Provider   CandleGetter
	Indicators []indicator.Indicator
	Aggregator *decision.Aggregator
	Detector   *manipulation.Detector
	RiskGate   *risk.Gate
	Ledger     *ledger.Ledger
	Learning   *learning.Store
	Venue      venue.Venue
	Store      Persister
	Events     *notifier.Events
	Policies   []Policy

	NewTierMachine func() *sizing.Machine
}

// SkipInfo 记录一次被否决的评估，供状态端点展示。
type SkipInfo struct {
	Stage  string    `json:"stage"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Engine 按 tick 驱动单次评估：取 K 线 → 否决链 → 聚合 → 下单 → 回写。
// 同一时刻只允许一个周期在跑。
type Engine struct {
	opts Options

	tiers map[string]*sizing.Machine

	mu           sync.Mutex
	running      bool
	lastDecision map[string]decision.Decision
	lastSkip     map[string]SkipInfo
	cycleSeq     int64

	randFn func() float64
	nowFn  func() time.Time
}

func New(opts Options) (*Engine, error) {
	if len(opts.Symbols) == 0 {
		return nil, fmt.Errorf("engine requires at least one symbol")
	}
	if opts.Provider == nil || opts.Aggregator == nil || opts.Detector == nil ||
		opts.RiskGate == nil || opts.Ledger == nil || opts.Learning == nil || opts.Venue == nil {
		return nil, fmt.Errorf("engine missing required collaborator")
	}
	if len(opts.Indicators) == 0 {
		return nil, fmt.Errorf("engine requires at least one indicator")
	}
	if opts.NewTierMachine == nil {
		return nil, fmt.Errorf("engine requires tier machine factory")
	}
	tiers := make(map[string]*sizing.Machine, len(opts.Symbols))
	for _, sym := range opts.Symbols {
		tiers[sym] = opts.NewTierMachine()
	}
	return &Engine{
		opts:         opts,
		tiers:        tiers,
		lastDecision: make(map[string]decision.Decision),
		lastSkip:     make(map[string]SkipInfo),
		randFn:       rand.Float64,
		nowFn:        time.Now,
	}, nil
}

// RunCycle 依次评估全部品种。上一轮还没结束时直接跳过（评估必须
// 基于已收盘 K 线，挤压执行没有意义）。
func (e *Engine) RunCycle(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		logger.Warnf("engine: previous cycle still running, skip this tick")
		return
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	for _, sym := range e.opts.Symbols {
		if ctx.Err() != nil {
			return
		}
		if err := e.evaluateSymbol(ctx, sym); err != nil {
			logger.Errorf("engine: evaluate %s failed: %v", sym, err)
		}
	}
}

// evaluateSymbol 执行单品种的完整决策周期。
func (e *Engine) evaluateSymbol(ctx context.Context, symbol string) error {
	// 风控前置：停机状态下不取数也不评估
	if verdict := e.opts.RiskGate.CanTrade(); !verdict.Allowed {
		e.recordSkip(symbol, "risk", verdict.Reason)
		return nil
	}

	raw, err := e.opts.Provider.GetCandles(ctx, symbol, e.opts.Timeframe, e.opts.CandleLimit)
	if err != nil {
		return fmt.Errorf("get candles: %w", err)
	}
	candles := market.Candles(raw)

	// 否决链 1：操纵特征
	if res := e.opts.Detector.Detect(candles); res.Flagged {
		reasons := reasonStrings(res.Reasons)
		e.recordSkip(symbol, "manipulation", strings.Join(reasons, ","))
		e.opts.Events.ManipulationAlert(symbol, reasons)
		return nil
	}

	scorers := make([]decision.Scorer, 0, len(e.opts.Indicators))
	for _, ind := range e.opts.Indicators {
		scorers = append(scorers, ind)
	}
	dec := e.opts.Aggregator.Aggregate(symbol, scorers, candles)
	e.mu.Lock()
	e.lastDecision[symbol] = dec
	e.mu.Unlock()

	// 否决链 2：抖动后的置信度门槛（每次评估独立抽样，避免阈值附近拉锯）
	threshold := e.opts.MinConfidence + (e.randFn()*2-1)*e.opts.ConfidenceJitter
	if dec.Direction != decision.DirectionWait && dec.Confidence < threshold {
		e.recordSkip(symbol, "confidence", fmt.Sprintf("%.3f < %.3f", dec.Confidence, threshold))
		return nil
	}

	// 否决链 3：方向不明
	if dec.Direction == decision.DirectionWait {
		e.recordSkip(symbol, "wait", "no directional consensus")
		return nil
	}

	// 否决链 4：同类信号的历史胜率
	signalClass := decision.SignalClass(dec.Direction, dec.Confidence)
	if gate := e.opts.Learning.ShouldTrade(symbol, signalClass); !gate.Allowed {
		e.recordSkip(symbol, "learning", gate.Reason)
		return nil
	}

	// 否决链 5：可插拔策略
	now := e.nowFn()
	for _, p := range e.opts.Policies {
		if err := p.Check(now, dec, e.opts.Ledger); err != nil {
			e.recordSkip(symbol, p.Name(), err.Error())
			return nil
		}
	}

	return e.placeAndSettle(ctx, symbol, dec, signalClass)
}

func (e *Engine) placeAndSettle(ctx context.Context, symbol string, dec decision.Decision, signalClass string) error {
	machine := e.tiers[symbol]
	tier := machine.Tier()
	count := machine.TradeCount()

	kellyCap := e.kellyCap(symbol, signalClass)
	stake := machine.StakePerTrade(kellyCap)
	if err := e.opts.RiskGate.ValidateAmount(stake); err != nil {
		e.recordSkip(symbol, "risk", err.Error())
		return nil
	}
	if err := e.opts.RiskGate.ValidateTierExposure(tier, machine.TotalRisk(kellyCap)); err != nil {
		e.recordSkip(symbol, "risk", err.Error())
		return nil
	}

	logger.Infof("engine: %s %s tier=%d count=%d stake=%.2f conf=%.3f class=%s",
		symbol, dec.Direction, tier, count, stake, dec.Confidence, signalClass)

	outcome, err := executeCycle(ctx, e.opts.Venue, symbol, string(dec.Direction), stake, count, e.opts.ExpirationMinutes)
	if err != nil {
		// 执行失败不是亏损：状态原样保留，本周期作废
		e.recordSkip(symbol, "execution", err.Error())
		return fmt.Errorf("execute cycle: %w", err)
	}

	e.applyOutcome(symbol, dec, signalClass, machine, stake, outcome)
	return nil
}

// kellyCap 用同类信号的历史胜率算四分之一 Kelly 上限；没有历史时退化为
// 全量胜率，再没有就不设上限。
func (e *Engine) kellyCap(symbol, signalClass string) float64 {
	gate := e.opts.Learning.ShouldTrade(symbol, signalClass)
	winRate := gate.WinRate
	if winRate <= 0 {
		winRate = e.opts.Ledger.Stats().AllTime.WinRate
	}
	if winRate <= 0 {
		return 0
	}
	return risk.KellyStake(winRate, e.opts.PayoutRatio, e.opts.StartingBalance)
}

func reasonStrings(codes []manipulation.ReasonCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}

func (e *Engine) recordSkip(symbol, stage, reason string) {
	logger.Infof("engine: skip %s at %s: %s", symbol, stage, reason)
	e.mu.Lock()
	e.lastSkip[symbol] = SkipInfo{Stage: stage, Reason: reason, At: e.nowFn()}
	e.mu.Unlock()
}

// Status 暴露给状态端点的只读快照。
type Status struct {
	Halted        bool                         `json:"halted"`
	HaltReason    string                       `json:"halt_reason,omitempty"`
	Tiers         map[string]int               `json:"tiers"`
	Sensitivity   float64                      `json:"manipulation_sensitivity"`
	Weights       map[string]float64           `json:"indicator_weights"`
	Outcomes      int                          `json:"learning_samples"`
	LastDecisions map[string]decision.Decision `json:"last_decisions"`
	LastSkips     map[string]SkipInfo          `json:"last_skips"`
}

func (e *Engine) Status() Status {
	halted, reason := e.opts.RiskGate.Halted()
	st := Status{
		Halted:        halted,
		HaltReason:    reason,
		Tiers:         make(map[string]int, len(e.tiers)),
		Sensitivity:   e.opts.Detector.Sensitivity(),
		Weights:       make(map[string]float64, len(e.opts.Indicators)),
		Outcomes:      e.opts.Learning.Len(),
		LastDecisions: make(map[string]decision.Decision),
		LastSkips:     make(map[string]SkipInfo),
	}
	for sym, m := range e.tiers {
		st.Tiers[sym] = m.Tier()
	}
	for _, ind := range e.opts.Indicators {
		st.Weights[ind.Name()] = ind.Weight()
	}
	e.mu.Lock()
	for sym, d := range e.lastDecision {
		st.LastDecisions[sym] = d
	}
	for sym, s := range e.lastSkip {
		st.LastSkips[sym] = s
	}
	e.mu.Unlock()
	return st
}

// Resume 人工恢复交易并广播通知。
func (e *Engine) Resume() {
	e.opts.RiskGate.Resume()
	e.opts.Events.TradingResumed()
}
