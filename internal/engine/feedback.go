package engine

import (
	"github.com/google/uuid"

	"opto/internal/decision"
	"opto/internal/learning"
	"opto/internal/ledger"
	"opto/internal/logger"
	"opto/internal/sizing"
)

// applyOutcome 在整个周期结算完毕后一次性回写全部状态：
// 账本、指标权重、加倍层级、操纵敏感度、胜率记忆、持久层、通知。
// 只有真实结算会走到这里，执行失败在上游就被拦截。
func (e *Engine) applyOutcome(symbol string, dec decision.Decision, signalClass string, machine *sizing.Machine, stake float64, outcome executionOutcome) {
	success := outcome.TotalPnL > 0
	now := e.nowFn()
	tier := machine.Tier()

	// 账本：每笔订单一条记录，同周期共享时间戳
	for _, res := range outcome.Results {
		rec := ledger.TradeRecord{
			ID:                uuid.NewString(),
			Timestamp:         now,
			Asset:             symbol,
			Direction:         dec.Direction,
			Amount:            stake,
			ExpirationMinutes: e.opts.ExpirationMinutes,
			Success:           res.Success,
			ProfitLoss:        res.ProfitLoss,
			Tier:              tier,
			IndicatorSnapshot: dec.IndicatorScores,
			SignalClass:       signalClass,
		}
		e.opts.Ledger.Record(rec)
		e.persistTrade(rec)
	}

	// 权重：与最终方向同向的指标按周期结果调整，反向的反向调整
	dirSign := 1.0
	if dec.Direction == decision.DirectionSell {
		dirSign = -1.0
	}
	for _, ind := range e.opts.Indicators {
		contribution := dec.IndicatorScores[ind.Name()]
		switch {
		case contribution*dirSign > 0:
			ind.AdjustWeight(success)
		case contribution*dirSign < 0:
			ind.AdjustWeight(!success)
		}
		e.persistWeight(ind.Name(), ind.Weight(), ind.InitialWeight())
	}

	// 层级
	if success {
		machine.OnWin()
	} else {
		atMax := machine.Tier() == machine.MaxTier()
		machine.OnLoss()
		if !atMax && machine.Tier() == machine.MaxTier() {
			e.opts.Events.MaxTierReached(machine.Tier())
		}
	}

	// 操纵敏感度：连败调高，赢单向基线衰减
	if success {
		e.opts.Detector.Decay()
	} else if e.opts.Ledger.ConsecutiveLosses() >= sensitivityRaiseStreak {
		e.opts.Detector.Raise()
	}

	// 胜率记忆
	result := learning.ResultLoss
	if success {
		result = learning.ResultWin
	}
	outRec := e.opts.Learning.RecordOutcome(symbol, signalClass, result)
	e.persistOutcome(outRec)

	e.opts.Events.CycleSettled(symbol, string(dec.Direction), tier, outcome.Wins, outcome.Losses, outcome.TotalPnL)
	logger.Infof("engine: %s cycle settled pnl=%+.2f wins=%d losses=%d tier=%d→%d sens=%.1f",
		symbol, outcome.TotalPnL, outcome.Wins, outcome.Losses, tier, machine.Tier(), e.opts.Detector.Sensitivity())

	// 结算后立刻复核熔断，触发即通知
	if verdict := e.opts.RiskGate.CanTrade(); !verdict.Allowed {
		e.opts.Events.TradingHalted(verdict.Reason, e.opts.Ledger.DailyPnL())
	}
}

func (e *Engine) persistTrade(rec ledger.TradeRecord) {
	if e.opts.Store == nil {
		return
	}
	if err := e.opts.Store.AppendTrade(rec); err != nil {
		logger.Errorf("persist trade %s failed: %v", rec.ID, err)
	}
}

func (e *Engine) persistOutcome(rec learning.OutcomeRecord) {
	if e.opts.Store == nil {
		return
	}
	if err := e.opts.Store.AppendOutcome(rec); err != nil {
		logger.Errorf("persist outcome failed: %v", err)
	}
}

func (e *Engine) persistWeight(name string, weight, initial float64) {
	if e.opts.Store == nil {
		return
	}
	if err := e.opts.Store.SaveWeight(name, weight, initial); err != nil {
		logger.Errorf("persist weight %s failed: %v", name, err)
	}
}
