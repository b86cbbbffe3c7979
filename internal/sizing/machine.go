package sizing

import (
	"sync"

	"opto/internal/logger"
)

// Machine 是亏损追回的分层状态机。
// tier 0 为静息态；每次亏损 +1（到顶饱和并告警），任意一次盈利归零。
// 追回只靠笔数翻倍（2^tier），单笔注金保持不变，从而把最坏损失限制在
// Σ stake×2^i 而不是注金指数增长。
type Machine struct {
	mu      sync.Mutex
	tier    int
	maxTier int

	baseStake float64
}

func NewMachine(maxTier int, baseStake float64) *Machine {
	if maxTier <= 0 {
		maxTier = 3
	}
	return &Machine{maxTier: maxTier, baseStake: baseStake}
}

func (m *Machine) Tier() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tier
}

func (m *Machine) MaxTier() int { return m.maxTier }

// TradeCount 返回当前层级的并发笔数 2^tier。
func (m *Machine) TradeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tradeCountForTier(m.tier)
}

func tradeCountForTier(tier int) int {
	return 1 << uint(tier)
}

// TradeCountForTier 暴露纯函数形式，供风险校验与测试使用。
func TradeCountForTier(tier int) int {
	if tier < 0 {
		return 1
	}
	return tradeCountForTier(tier)
}

// OnLoss 层级 +1，封顶在 maxTier：封顶时告警而不是报错。
func (m *Machine) OnLoss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tier >= m.maxTier {
		logger.Warnf("sizing: max tier %d reached, staying capped", m.maxTier)
		return
	}
	m.tier++
}

// OnWin 无条件归零。
func (m *Machine) OnWin() {
	m.mu.Lock()
	m.tier = 0
	m.mu.Unlock()
}
