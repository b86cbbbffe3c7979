package ledger

import (
	"sync"
	"time"

	"opto/internal/decision"
)

// TradeRecord 在交易结果回报后生成，追加后不再修改。
type TradeRecord struct {
	ID                string             `json:"id"`
	Timestamp         time.Time          `json:"timestamp"`
	Asset             string             `json:"asset"`
	Direction         decision.Direction `json:"direction"`
	Amount            float64            `json:"amount"`
	ExpirationMinutes int                `json:"expiration_minutes"`
	Success           bool               `json:"success"`
	ProfitLoss        float64            `json:"profit_loss"`
	Tier              int                `json:"tier"`
	IndicatorSnapshot map[string]float64 `json:"indicator_snapshot"`
	SignalClass       string             `json:"signal_class"`
}

// Ledger 是只追加的交易账本，带滚动周期统计。
type Ledger struct {
	mu      sync.RWMutex
	records []TradeRecord
	nowFn   func() time.Time
}

func New(history []TradeRecord) *Ledger {
	l := &Ledger{nowFn: time.Now}
	if len(history) > 0 {
		l.records = append(l.records, history...)
	}
	return l
}

// Record 追加一条成交记录。
func (l *Ledger) Record(rec TradeRecord) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
}

// Records 返回账本快照（按写入顺序）。
func (l *Ledger) Records() []TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]TradeRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// ConsecutiveLosses 从最近一条向前数连续亏损，遇到首个盈利即停。
func (l *Ledger) ConsecutiveLosses() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	count := 0
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Success {
			break
		}
		count++
	}
	return count
}

// DailyPnL 返回当日（UTC 日界）已实现盈亏。
func (l *Ledger) DailyPnL() float64 {
	dayStart := l.now().UTC().Truncate(24 * time.Hour)
	l.mu.RLock()
	defer l.mu.RUnlock()
	var sum float64
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Timestamp.Before(dayStart) {
			break
		}
		sum += l.records[i].ProfitLoss
	}
	return sum
}

// DailyLossPercent 返回当日盈亏占初始资金的百分比（亏损为负）。
func (l *Ledger) DailyLossPercent(startingBalance float64) float64 {
	if startingBalance <= 0 {
		return 0
	}
	return l.DailyPnL() / startingBalance * 100
}

func (l *Ledger) now() time.Time {
	if l.nowFn != nil {
		return l.nowFn()
	}
	return time.Now()
}
