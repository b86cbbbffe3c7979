package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opto/internal/ledger"
)

func gateConfig() Config {
	return Config{
		StartingBalance:     1000,
		MaxDailyLossPercent: 20,
		StopOnLossStreak:    3,
		BreakerEnabled:      true,
		PayoutRatio:         0.85,
	}
}

func lossRecords(n int, pnlEach float64) []ledger.TradeRecord {
	out := make([]ledger.TradeRecord, n)
	for i := range out {
		out[i] = ledger.TradeRecord{
			Timestamp:  time.Now(),
			Success:    false,
			ProfitLoss: pnlEach,
		}
	}
	return out
}

func TestGateAllowsWhenHealthy(t *testing.T) {
	g := NewGate(gateConfig(), ledger.New(nil))
	v := g.CanTrade()
	assert.True(t, v.Allowed)
	assert.Empty(t, v.Reason)
}

func TestGateHaltsOnDailyLoss(t *testing.T) {
	// 当日 -210，超过初始资金 1000 的 20%
	l := ledger.New([]ledger.TradeRecord{{
		Timestamp:  time.Now(),
		Success:    false,
		ProfitLoss: -210,
	}})
	g := NewGate(gateConfig(), l)

	v := g.CanTrade()
	require.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "daily loss")
	assert.True(t, g.HaltReasonContains("daily loss"))

	halted, _ := g.Halted()
	assert.True(t, halted)
}

func TestGateHaltsOnLossStreak(t *testing.T) {
	// 三连败但日亏仅 0.3%，应命中连败熔断而不是日亏
	g := NewGate(gateConfig(), ledger.New(lossRecords(3, -1)))

	v := g.CanTrade()
	require.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "loss streak")
}

func TestGateStreakDisabledWhenZero(t *testing.T) {
	cfg := gateConfig()
	cfg.StopOnLossStreak = 0
	g := NewGate(cfg, ledger.New(lossRecords(5, -1)))
	assert.True(t, g.CanTrade().Allowed)
}

func TestGateResumeIsManualOnly(t *testing.T) {
	g := NewGate(gateConfig(), ledger.New(nil))
	g.Halt("operator pause")

	// 停机期间条件再健康也不放行
	for i := 0; i < 3; i++ {
		assert.False(t, g.CanTrade().Allowed)
	}

	g.Resume()
	assert.True(t, g.CanTrade().Allowed)

	halted, reason := g.Halted()
	assert.False(t, halted)
	assert.Empty(t, reason)

	// 未停机时 Resume 是空操作
	g.Resume()
	assert.True(t, g.CanTrade().Allowed)
}

func TestGateBreakerDisabledSkipsThresholds(t *testing.T) {
	cfg := gateConfig()
	cfg.BreakerEnabled = false
	g := NewGate(cfg, ledger.New(lossRecords(5, -100)))

	assert.True(t, g.CanTrade().Allowed, "熔断关闭时不做越限检查")

	// 但已停机状态依然生效
	g.Halt("manual halt")
	assert.False(t, g.CanTrade().Allowed)
}

func TestValidateAmount(t *testing.T) {
	g := NewGate(gateConfig(), ledger.New(nil))

	assert.NoError(t, g.ValidateAmount(10))
	assert.Error(t, g.ValidateAmount(0))
	assert.Error(t, g.ValidateAmount(-5))
	assert.Error(t, g.ValidateAmount(1000.01))
}

func TestValidateTierExposure(t *testing.T) {
	g := NewGate(gateConfig(), ledger.New(nil))

	assert.NoError(t, g.ValidateTierExposure(2, 400))
	assert.NoError(t, g.ValidateTierExposure(2, 500), "恰好一半仍可交易")
	assert.Error(t, g.ValidateTierExposure(3, 500.01))

	empty := NewGate(Config{}, ledger.New(nil))
	assert.Error(t, empty.ValidateTierExposure(0, 1))
}
