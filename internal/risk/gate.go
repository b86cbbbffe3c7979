package risk

import (
	"fmt"
	"strings"
	"sync"

	"opto/internal/ledger"
	"opto/internal/logger"
)

// Verdict 是风控裁决：不允许时附带人类可读原因。
type Verdict struct {
	Allowed bool
	Reason  string
}

// Config 汇总风控阈值。
type Config struct {
	StartingBalance     float64
	MaxDailyLossPercent float64
	StopOnLossStreak    int
	BreakerEnabled      bool
	PayoutRatio         float64
}

// Gate 实现止损熔断：触发后进入 HALTED，只能人工 Resume 恢复，绝不自动复位。
type Gate struct {
	cfg    Config
	ledger *ledger.Ledger

	mu         sync.Mutex
	halted     bool
	haltReason string
}

func NewGate(cfg Config, l *ledger.Ledger) *Gate {
	return &Gate{cfg: cfg, ledger: l}
}

// CanTrade 按序检查：人工/历史停机 → 日亏熔断 → 连败熔断。
// 熔断开关关闭时跳过越限检查，但已停机状态仍然生效。
func (g *Gate) CanTrade() Verdict {
	g.mu.Lock()
	if g.halted {
		reason := g.haltReason
		g.mu.Unlock()
		return Verdict{Allowed: false, Reason: reason}
	}
	g.mu.Unlock()

	if !g.cfg.BreakerEnabled {
		return Verdict{Allowed: true}
	}

	if pct := g.ledger.DailyLossPercent(g.cfg.StartingBalance); pct <= -g.cfg.MaxDailyLossPercent {
		reason := fmt.Sprintf("daily loss limit breached: %.2f%% (max %.2f%%)", pct, g.cfg.MaxDailyLossPercent)
		g.Halt(reason)
		return Verdict{Allowed: false, Reason: reason}
	}
	if streak := g.ledger.ConsecutiveLosses(); g.cfg.StopOnLossStreak > 0 && streak >= g.cfg.StopOnLossStreak {
		reason := fmt.Sprintf("loss streak breached: %d consecutive losses (stop at %d)", streak, g.cfg.StopOnLossStreak)
		g.Halt(reason)
		return Verdict{Allowed: false, Reason: reason}
	}
	return Verdict{Allowed: true}
}

// Halt 进入停机态并记录原因。
func (g *Gate) Halt(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.halted {
		return
	}
	g.halted = true
	g.haltReason = reason
	logger.Warnf("risk gate: HALTED (%s)", reason)
}

// Resume 人工恢复，唯一离开 HALTED 的途径。
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.halted {
		return
	}
	g.halted = false
	g.haltReason = ""
	logger.Infof("risk gate: resumed by operator")
}

// Halted 返回当前停机状态与原因。
func (g *Gate) Halted() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.halted, g.haltReason
}

// ValidateAmount 拒绝非正数与超出初始资金的注金。
func (g *Gate) ValidateAmount(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("trade amount must be positive, got %.2f", amount)
	}
	if amount > g.cfg.StartingBalance {
		return fmt.Errorf("trade amount %.2f exceeds starting balance %.2f", amount, g.cfg.StartingBalance)
	}
	return nil
}

// 单个追回周期的总敞口硬上限（占初始资金比例），独立于熔断开关。
const maxTierExposureRatio = 0.5

// ValidateTierExposure 校验层级总敞口不超过初始资金的一半。
func (g *Gate) ValidateTierExposure(tier int, totalRisk float64) error {
	if g.cfg.StartingBalance <= 0 {
		return fmt.Errorf("starting balance not configured")
	}
	ratio := totalRisk / g.cfg.StartingBalance
	if ratio > maxTierExposureRatio {
		return fmt.Errorf("tier %d exposure %.2f is %.0f%% of balance (max %.0f%%)",
			tier, totalRisk, ratio*100, maxTierExposureRatio*100)
	}
	return nil
}

// HaltReasonContains 便于测试与上层做粗粒度归因。
func (g *Gate) HaltReasonContains(substr string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.halted && strings.Contains(g.haltReason, substr)
}
