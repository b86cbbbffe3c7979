package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierProgression(t *testing.T) {
	m := NewMachine(3, 10)
	assert.Equal(t, 0, m.Tier())
	assert.Equal(t, 1, m.TradeCount())

	m.OnLoss()
	assert.Equal(t, 1, m.Tier())
	assert.Equal(t, 2, m.TradeCount())

	m.OnLoss()
	m.OnLoss()
	assert.Equal(t, 3, m.Tier())
	assert.Equal(t, 8, m.TradeCount())
}

func TestTierSaturatesAtMax(t *testing.T) {
	m := NewMachine(2, 10)
	for i := 0; i < 10; i++ {
		m.OnLoss()
	}
	assert.Equal(t, 2, m.Tier(), "封顶后不再增长")
	assert.Equal(t, 4, m.TradeCount())
}

func TestWinResetsFromAnyTier(t *testing.T) {
	m := NewMachine(3, 10)
	m.OnLoss()
	m.OnLoss()
	m.OnWin()
	assert.Equal(t, 0, m.Tier())
	assert.Equal(t, 1, m.TradeCount())

	// 静息态赢单保持归零
	m.OnWin()
	assert.Equal(t, 0, m.Tier())
}

func TestTradeCountForTier(t *testing.T) {
	assert.Equal(t, 1, TradeCountForTier(0))
	assert.Equal(t, 2, TradeCountForTier(1))
	assert.Equal(t, 8, TradeCountForTier(3))
	assert.Equal(t, 1, TradeCountForTier(-1))
}

func TestStakePerTradeKellyCap(t *testing.T) {
	m := NewMachine(3, 10)

	assert.InDelta(t, 10, m.StakePerTrade(0), 1e-9, "无建议时用基础注金")
	assert.InDelta(t, 10, m.StakePerTrade(-1), 1e-9)
	assert.InDelta(t, 10, m.StakePerTrade(25), 1e-9, "建议高于基础注金不放大")
	assert.InDelta(t, 6.5, m.StakePerTrade(6.5), 1e-9, "建议低于基础注金时封顶")
}

func TestTotalRisk(t *testing.T) {
	m := NewMachine(3, 10)
	m.OnLoss()
	m.OnLoss()
	assert.InDelta(t, 40, m.TotalRisk(0), 1e-9, "4 笔 × 10")
	assert.InDelta(t, 20, m.TotalRisk(5), 1e-9, "凯利封顶后 4 笔 × 5")
}

func TestTotalRiskForTier(t *testing.T) {
	assert.InDelta(t, 10, TotalRiskForTier(0, 10), 1e-9)
	assert.InDelta(t, 80, TotalRiskForTier(3, 10), 1e-9)
}

func TestWorstCaseLoss(t *testing.T) {
	// 10 + 20 + 40 + 80
	assert.InDelta(t, 150, WorstCaseLoss(3, 10), 1e-9)
	assert.InDelta(t, 10, WorstCaseLoss(0, 10), 1e-9)
}
