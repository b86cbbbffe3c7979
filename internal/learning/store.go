package learning

import (
	"fmt"
	"sync"
	"time"
)

// Result 是交易结局的二元标签。
type Result string

const (
	ResultWin  Result = "WIN"
	ResultLoss Result = "LOSS"
)

// OutcomeRecord 与指标权重学习完全独立：按 (symbol, signalClass) 键控的
// 历史胜率记忆，只追加。
type OutcomeRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Symbol      string    `json:"symbol"`
	SignalClass string    `json:"signal_class"`
	Result      Result    `json:"result"`
}

// Gate 是按历史胜率放行交易的裁决。
type Gate struct {
	Allowed bool
	WinRate float64
	Reason  string
}

const (
	// 指数加权折算系数
	ewwrAlpha = 0.2

	// 样本不足 5 条时处于探索期，一律放行
	exploreMinSamples = 5

	// 样本量相关的放行阈值
	smallSampleCutoff    = 10
	smallSampleThreshold = 55.0
	largeSampleThreshold = 48.0
)

// Store 维护结局历史并计算时间加权胜率。
type Store struct {
	mu      sync.RWMutex
	records []OutcomeRecord
	nowFn   func() time.Time
}

func NewStore(history []OutcomeRecord) *Store {
	s := &Store{nowFn: time.Now}
	if len(history) > 0 {
		s.records = append(s.records, history...)
	}
	return s
}

// RecordOutcome 追加一条结局。
func (s *Store) RecordOutcome(symbol, signalClass string, result Result) OutcomeRecord {
	rec := OutcomeRecord{
		Timestamp:   s.nowFn(),
		Symbol:      symbol,
		SignalClass: signalClass,
		Result:      result,
	}
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return rec
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ShouldTrade 按 (symbol, signalClass) 的时间加权胜率裁决。
// 样本不足 5 条时始终放行（探索期）；之后要求 EWWR 不低于样本量阈值。
func (s *Store) ShouldTrade(symbol, signalClass string) Gate {
	matches := s.matches(symbol, signalClass)
	if len(matches) < exploreMinSamples {
		return Gate{Allowed: true, Reason: "exploration phase"}
	}

	rate := ewwr(matches) * 100
	threshold := largeSampleThreshold
	if len(matches) < smallSampleCutoff {
		threshold = smallSampleThreshold
	}
	if rate < threshold {
		return Gate{
			Allowed: false,
			WinRate: rate,
			Reason: fmt.Sprintf("weighted win rate %.1f%% below threshold %.0f%% (%d samples)",
				rate, threshold, len(matches)),
		}
	}
	return Gate{Allowed: true, WinRate: rate}
}

// matches 返回按时间升序的匹配记录。
func (s *Store) matches(symbol, signalClass string) []OutcomeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []OutcomeRecord
	for _, rec := range s.records {
		if rec.Symbol == symbol && rec.SignalClass == signalClass {
			out = append(out, rec)
		}
	}
	return out
}

// ewwr 从最旧一条的二元结局起步，按时间向前折算：
// ewwr = win×alpha + ewwr×(1−alpha)，越新的结局权重越高。
func ewwr(matches []OutcomeRecord) float64 {
	if len(matches) == 0 {
		return 0
	}
	value := binary(matches[0].Result)
	for _, rec := range matches[1:] {
		value = binary(rec.Result)*ewwrAlpha + value*(1-ewwrAlpha)
	}
	return value
}

func binary(r Result) float64 {
	if r == ResultWin {
		return 1
	}
	return 0
}
