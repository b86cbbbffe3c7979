package engine

import (
	"fmt"
	"time"

	"opto/internal/decision"
	"opto/internal/ledger"
)

// Policy 是可插拔的额外否决策略，在内建否决链之后运行。
// 返回非 nil error 表示否决并给出原因。
type Policy interface {
	Name() string
	Check(now time.Time, dec decision.Decision, led *ledger.Ledger) error
}

// ActiveHoursPolicy 只允许在 [start, end) 的 UTC 小时区间内下单。
// start == end 表示不限制。
type ActiveHoursPolicy struct {
	Start int
	End   int
}

func (p ActiveHoursPolicy) Name() string { return "active_hours" }

func (p ActiveHoursPolicy) Check(now time.Time, _ decision.Decision, _ *ledger.Ledger) error {
	if p.Start == p.End {
		return nil
	}
	hour := now.UTC().Hour()
	inWindow := false
	if p.Start < p.End {
		inWindow = hour >= p.Start && hour < p.End
	} else {
		// 跨午夜区间，例如 22-6
		inWindow = hour >= p.Start || hour < p.End
	}
	if !inWindow {
		return fmt.Errorf("hour %02d outside active window %02d-%02d UTC", hour, p.Start, p.End)
	}
	return nil
}

// HourlyRatePolicy 限制最近一小时内的下单周期数，防止过度交易。
// Max <= 0 表示不限制。
type HourlyRatePolicy struct {
	Max int
}

func (p HourlyRatePolicy) Name() string { return "hourly_rate" }

func (p HourlyRatePolicy) Check(now time.Time, _ decision.Decision, led *ledger.Ledger) error {
	if p.Max <= 0 || led == nil {
		return nil
	}
	cutoff := now.Add(-time.Hour)
	cycles := 0
	var lastTS time.Time
	for _, rec := range led.Records() {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		// 同一周期的多笔订单共享时间戳，只算一个周期
		if rec.Timestamp.Equal(lastTS) {
			continue
		}
		lastTS = rec.Timestamp
		cycles++
	}
	if cycles >= p.Max {
		return fmt.Errorf("%d cycles in the last hour (max %d)", cycles, p.Max)
	}
	return nil
}
