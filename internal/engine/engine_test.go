package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opto/internal/decision"
	"opto/internal/gateway/notifier"
	"opto/internal/gateway/venue"
	"opto/internal/indicator"
	"opto/internal/learning"
	"opto/internal/ledger"
	"opto/internal/manipulation"
	"opto/internal/market"
	"opto/internal/risk"
	"opto/internal/sizing"
)

type stubIndicator struct {
	name    string
	sig     decision.Signal
	weight  float64
	adjusts []bool
}

func (s *stubIndicator) Name() string                             { return s.name }
func (s *stubIndicator) Calculate(market.Candles) decision.Signal { return s.sig }
func (s *stubIndicator) AdjustWeight(success bool)                { s.adjusts = append(s.adjusts, success) }
func (s *stubIndicator) ResetWeight()                             {}
func (s *stubIndicator) Weight() float64                          { return s.weight }
func (s *stubIndicator) InitialWeight() float64                   { return s.weight }
func (s *stubIndicator) SetWeight(w float64)                      { s.weight = w }

type stubProvider struct {
	candles market.Candles
	err     error
	calls   int
}

func (s *stubProvider) GetCandles(_ context.Context, _, _ string, _ int) ([]market.Candle, error) {
	s.calls++
	return s.candles, s.err
}

type stubVenue struct {
	mu         sync.Mutex
	result     venue.TradeResult
	placeErr   error
	partial    bool // 返回 count-1 笔句柄外加错误
	awaitErr   error
	placeCalls int
	placed     int
	awaited    int
}

func (s *stubVenue) PlaceTrades(_ context.Context, symbol, _ string, _ float64, count, _ int) ([]venue.TradeHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeCalls++
	n := count
	if s.partial {
		n = count - 1
	} else if s.placeErr != nil {
		return nil, s.placeErr
	}
	handles := make([]venue.TradeHandle, n)
	for i := range handles {
		handles[i] = venue.TradeHandle{ID: fmt.Sprintf("%s-%d-%d", symbol, s.placeCalls, i), Symbol: symbol}
	}
	s.placed += n
	if s.partial {
		return handles, s.placeErr
	}
	return handles, nil
}

func (s *stubVenue) AwaitResult(_ context.Context, _ venue.TradeHandle) (venue.TradeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaited++
	if s.awaitErr != nil {
		return venue.TradeResult{}, s.awaitErr
	}
	return s.result, nil
}

func (s *stubVenue) Close() error { return nil }

type stubPersister struct {
	trades   []ledger.TradeRecord
	outcomes []learning.OutcomeRecord
	weights  map[string]float64
}

func (s *stubPersister) AppendTrade(rec ledger.TradeRecord) error {
	s.trades = append(s.trades, rec)
	return nil
}

func (s *stubPersister) AppendOutcome(rec learning.OutcomeRecord) error {
	s.outcomes = append(s.outcomes, rec)
	return nil
}

func (s *stubPersister) SaveWeight(name string, weight, _ float64) error {
	if s.weights == nil {
		s.weights = make(map[string]float64)
	}
	s.weights[name] = weight
	return nil
}

type captureSink struct {
	msgs []string
}

func (c *captureSink) SendText(text string) error {
	c.msgs = append(c.msgs, text)
	return nil
}

func (c *captureSink) contains(substr string) bool {
	for _, m := range c.msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// calmCandles 构造不会触发操纵启发式的平稳 K 线窗口。
func calmCandles(n int) market.Candles {
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

type fixture struct {
	engine   *Engine
	provider *stubProvider
	venue    *stubVenue
	store    *stubPersister
	ind      *stubIndicator
	gate     *risk.Gate
	led      *ledger.Ledger
	learn    *learning.Store
	detector *manipulation.Detector
	sink     *captureSink
}

func newFixture(t *testing.T, sig decision.Signal, history []learning.OutcomeRecord) *fixture {
	t.Helper()
	f := &fixture{
		provider: &stubProvider{candles: calmCandles(30)},
		venue:    &stubVenue{result: venue.TradeResult{Success: true, ProfitLoss: 8.5}},
		store:    &stubPersister{},
		ind:      &stubIndicator{name: "stub", sig: sig, weight: 1.0},
		led:      ledger.New(nil),
		learn:    learning.NewStore(history),
		detector: manipulation.NewDetector(),
		sink:     &captureSink{},
	}
	f.gate = risk.NewGate(risk.Config{
		StartingBalance:     1000,
		MaxDailyLossPercent: 90,
		StopOnLossStreak:    0,
		BreakerEnabled:      true,
		PayoutRatio:         0.85,
	}, f.led)

	eng, err := New(Options{
		Symbols:           []string{"BTC/USDT"},
		Timeframe:         "1m",
		CandleLimit:       30,
		ExpirationMinutes: 1,
		PayoutRatio:       0.85,
		StartingBalance:   1000,
		MinConfidence:     0.55,
		ConfidenceJitter:  0,
		Provider:          f.provider,
		Indicators:        []indicator.Indicator{f.ind},
		Aggregator:        decision.NewAggregator(0),
		Detector:          f.detector,
		RiskGate:          f.gate,
		Ledger:            f.led,
		Learning:          f.learn,
		Venue:             f.venue,
		Store:             f.store,
		Events:            notifier.NewEventsWithSink(f.sink),
		NewTierMachine:    func() *sizing.Machine { return sizing.NewMachine(3, 10) },
	})
	require.NoError(t, err)
	eng.randFn = func() float64 { return 0.5 }
	f.engine = eng
	return f
}

func buySignal(strength float64) decision.Signal {
	return decision.Signal{Direction: decision.DirectionBuy, Strength: strength, Confidence: strength}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Symbols: []string{"BTC/USDT"}})
	assert.Error(t, err)
}

func TestWinningCycleUpdatesAllState(t *testing.T) {
	f := newFixture(t, buySignal(0.8), nil)
	f.engine.RunCycle(context.Background())

	// 一笔订单、赢单结算
	require.Equal(t, 1, f.led.Len())
	rec := f.led.Records()[0]
	assert.True(t, rec.Success)
	assert.InDelta(t, 8.5, rec.ProfitLoss, 1e-9)
	assert.InDelta(t, 10, rec.Amount, 1e-9)
	assert.Equal(t, decision.DirectionBuy, rec.Direction)
	assert.Equal(t, "BUY:strong", rec.SignalClass)
	assert.Equal(t, 0, rec.Tier)

	// 同向指标按赢单加权
	require.Len(t, f.ind.adjusts, 1)
	assert.True(t, f.ind.adjusts[0])

	// 层级归零、敏感度回基线、胜率记忆追加
	assert.Equal(t, 0, f.engine.tiers["BTC/USDT"].Tier())
	assert.InDelta(t, 1.0, f.detector.Sensitivity(), 1e-9)
	assert.Equal(t, 1, f.learn.Len())

	// 持久层全量落盘
	assert.Len(t, f.store.trades, 1)
	assert.Len(t, f.store.outcomes, 1)
	assert.Contains(t, f.store.weights, "stub")

	assert.True(t, f.sink.contains("周期结算"))

	st := f.engine.Status()
	assert.False(t, st.Halted)
	assert.Equal(t, decision.DirectionBuy, st.LastDecisions["BTC/USDT"].Direction)
}

func TestLossStreakEscalatesTierAndSensitivity(t *testing.T) {
	f := newFixture(t, buySignal(0.8), nil)
	f.venue.result = venue.TradeResult{Success: false, ProfitLoss: -10}

	// 连亏三个周期：1 + 2 + 4 笔
	for i := 0; i < 3; i++ {
		f.engine.RunCycle(context.Background())
	}

	assert.Equal(t, 3, f.engine.tiers["BTC/USDT"].Tier())
	assert.Equal(t, 7, f.led.Len())
	assert.Equal(t, 7, f.venue.placed)

	// 第二、三周期结算后连败数分别为 3 和 7，各调高一档
	assert.InDelta(t, 1.2, f.detector.Sensitivity(), 1e-9)

	assert.True(t, f.sink.contains("封顶"), "到达最高层时发告警")
}

func TestRiskHaltShortCircuitsEvaluation(t *testing.T) {
	f := newFixture(t, buySignal(0.8), nil)
	f.gate.Halt("operator pause")

	f.engine.RunCycle(context.Background())

	assert.Zero(t, f.provider.calls, "停机状态下不取行情")
	assert.Zero(t, f.venue.placeCalls)
	assert.Equal(t, "risk", f.engine.Status().LastSkips["BTC/USDT"].Stage)
}

func TestManipulationVetoSkipsAndAlerts(t *testing.T) {
	f := newFixture(t, buySignal(0.8), nil)
	candles := calmCandles(30)
	// 放量不动 + 波幅收窄，两条启发式齐发
	candles[len(candles)-1] = market.Candle{
		Open: 100, Close: 100.05, High: 100.1, Low: 100,
		Volume: 400,
	}
	f.provider.candles = candles

	f.engine.RunCycle(context.Background())

	assert.Zero(t, f.venue.placeCalls)
	assert.Equal(t, "manipulation", f.engine.Status().LastSkips["BTC/USDT"].Stage)
	assert.True(t, f.sink.contains("疑似价格操纵"))
}

func TestConfidenceVetoWithJitter(t *testing.T) {
	f := newFixture(t, buySignal(0.52), nil)
	f.engine.opts.ConfidenceJitter = 0.05

	// 抖动抽样在最高点：阈值 0.60，0.52 被否决
	f.engine.randFn = func() float64 { return 1 }
	f.engine.RunCycle(context.Background())
	assert.Zero(t, f.venue.placeCalls)
	assert.Equal(t, "confidence", f.engine.Status().LastSkips["BTC/USDT"].Stage)

	// 抖动抽样在最低点：阈值 0.50，同一信号放行
	f.engine.randFn = func() float64 { return 0 }
	f.engine.RunCycle(context.Background())
	assert.Equal(t, 1, f.venue.placeCalls)
}

func TestWaitVeto(t *testing.T) {
	f := newFixture(t, decision.NeutralSignal(), nil)
	f.engine.RunCycle(context.Background())

	assert.Zero(t, f.venue.placeCalls)
	assert.Equal(t, "wait", f.engine.Status().LastSkips["BTC/USDT"].Stage)
}

func TestLearningGateVeto(t *testing.T) {
	history := make([]learning.OutcomeRecord, 5)
	for i := range history {
		history[i] = learning.OutcomeRecord{
			Symbol: "BTC/USDT", SignalClass: "BUY:strong", Result: learning.ResultLoss,
		}
	}
	f := newFixture(t, buySignal(0.8), history)

	f.engine.RunCycle(context.Background())

	assert.Zero(t, f.venue.placeCalls)
	assert.Equal(t, "learning", f.engine.Status().LastSkips["BTC/USDT"].Stage)
}

func TestPolicyVeto(t *testing.T) {
	f := newFixture(t, buySignal(0.8), nil)
	f.engine.opts.Policies = []Policy{ActiveHoursPolicy{Start: 9, End: 17}}
	f.engine.nowFn = func() time.Time {
		return time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	}

	f.engine.RunCycle(context.Background())

	assert.Zero(t, f.venue.placeCalls)
	assert.Equal(t, "active_hours", f.engine.Status().LastSkips["BTC/USDT"].Stage)
}

func TestExecutionFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, buySignal(0.8), nil)
	f.venue.awaitErr = errors.New("venue timeout")

	f.engine.RunCycle(context.Background())

	// 执行失败不是亏损：账本、层级、权重、记忆一律不动
	assert.Zero(t, f.led.Len())
	assert.Empty(t, f.ind.adjusts)
	assert.Equal(t, 0, f.engine.tiers["BTC/USDT"].Tier())
	assert.Zero(t, f.learn.Len())
	assert.Empty(t, f.store.trades)
	assert.Equal(t, "execution", f.engine.Status().LastSkips["BTC/USDT"].Stage)
}

func TestPartialPlacementVoidsCycleAfterJoin(t *testing.T) {
	f := newFixture(t, buySignal(0.8), nil)
	// 先把层级推到 1（2 笔），再模拟只提交成功 1 笔
	f.engine.tiers["BTC/USDT"].OnLoss()
	f.venue.partial = true
	f.venue.placeErr = errors.New("venue rejected order")

	f.engine.RunCycle(context.Background())

	assert.Equal(t, 1, f.venue.awaited, "已提交的订单仍要等到结算")
	assert.Zero(t, f.led.Len())
	assert.Equal(t, 1, f.engine.tiers["BTC/USDT"].Tier(), "层级保持原样")
	assert.Equal(t, "execution", f.engine.Status().LastSkips["BTC/USDT"].Stage)
}

func TestHaltTriggersNotificationAfterSettle(t *testing.T) {
	f := newFixture(t, buySignal(0.8), nil)
	f.venue.result = venue.TradeResult{Success: false, ProfitLoss: -905}

	f.engine.RunCycle(context.Background())

	halted, reason := f.gate.Halted()
	assert.True(t, halted)
	assert.Contains(t, reason, "daily loss")
	assert.True(t, f.sink.contains("熔断"))
}

func TestResumeClearsHaltAndNotifies(t *testing.T) {
	f := newFixture(t, buySignal(0.8), nil)
	f.gate.Halt("manual")

	f.engine.Resume()

	halted, _ := f.gate.Halted()
	assert.False(t, halted)
	assert.True(t, f.sink.contains("恢复"))
}
