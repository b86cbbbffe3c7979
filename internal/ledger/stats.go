package ledger

import "time"

// PeriodStats 是单个周期的聚合结果；空周期一律返回零值而不是 NaN。
type PeriodStats struct {
	ProfitUSD         float64 `json:"profit_usd"`
	Trades            int     `json:"trades"`
	WinRate           float64 `json:"win_rate"`
	AvgProfitPerTrade float64 `json:"avg_profit_per_trade"`
	BestTrade         float64 `json:"best_trade"`
	WorstTrade        float64 `json:"worst_trade"`
}

// Stats 汇总日/周/月/全量四个窗口。
// 日窗口取 UTC 日界，周/月为滚动 7/30 天。
type Stats struct {
	Daily   PeriodStats `json:"daily"`
	Weekly  PeriodStats `json:"weekly"`
	Monthly PeriodStats `json:"monthly"`
	AllTime PeriodStats `json:"all_time"`
}

func (l *Ledger) Stats() Stats {
	now := l.now().UTC()
	dayStart := now.Truncate(24 * time.Hour)
	weekStart := now.Add(-7 * 24 * time.Hour)
	monthStart := now.Add(-30 * 24 * time.Hour)

	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		Daily:   l.aggregateSince(dayStart),
		Weekly:  l.aggregateSince(weekStart),
		Monthly: l.aggregateSince(monthStart),
		AllTime: l.aggregateSince(time.Time{}),
	}
}

// aggregateSince 调用方必须已持有读锁。
func (l *Ledger) aggregateSince(start time.Time) PeriodStats {
	var out PeriodStats
	wins := 0
	first := true
	for _, rec := range l.records {
		if !start.IsZero() && rec.Timestamp.Before(start) {
			continue
		}
		out.Trades++
		out.ProfitUSD += rec.ProfitLoss
		if rec.Success {
			wins++
		}
		if first {
			out.BestTrade = rec.ProfitLoss
			out.WorstTrade = rec.ProfitLoss
			first = false
			continue
		}
		if rec.ProfitLoss > out.BestTrade {
			out.BestTrade = rec.ProfitLoss
		}
		if rec.ProfitLoss < out.WorstTrade {
			out.WorstTrade = rec.ProfitLoss
		}
	}
	if out.Trades == 0 {
		return PeriodStats{}
	}
	out.WinRate = float64(wins) / float64(out.Trades) * 100
	out.AvgProfitPerTrade = out.ProfitUSD / float64(out.Trades)
	return out
}
