package notifier

import (
	"fmt"
	"strings"
	"time"

	"opto/internal/config"
	"opto/internal/logger"
)

// Events 将风控与交易周期中的关键事件推送到 Telegram。
// 未启用时所有方法都是空操作。
type Events struct {
	sink TextNotifier
}

func NewEvents(cfg config.Telegram) *Events {
	if !cfg.Enabled {
		return &Events{}
	}
	return &Events{sink: NewTelegram(cfg.BotToken, cfg.ChatID)}
}

// NewEventsWithSink is used by tests to capture outgoing messages.
func NewEventsWithSink(sink TextNotifier) *Events {
	return &Events{sink: sink}
}

func (e *Events) TradingHalted(reason string, dailyPnL float64) {
	e.push(StructuredMessage{
		Icon:  "🛑",
		Title: "交易已熔断",
		Sections: []MessageSection{{
			Lines: []string{
				"原因: " + reason,
				fmt.Sprintf("今日盈亏: %+.2f USD", dailyPnL),
				"恢复方式: POST /api/live/risk/resume",
			},
		}},
		Timestamp: time.Now(),
	})
}

func (e *Events) TradingResumed() {
	e.push(StructuredMessage{
		Icon:      "✅",
		Title:     "交易已手动恢复",
		Timestamp: time.Now(),
	})
}

func (e *Events) MaxTierReached(tier int) {
	e.push(StructuredMessage{
		Icon:  "⚠️",
		Title: "加倍层级已封顶",
		Sections: []MessageSection{{
			Lines: []string{fmt.Sprintf("当前层级: %d（维持不再上升）", tier)},
		}},
		Timestamp: time.Now(),
	})
}

func (e *Events) ManipulationAlert(symbol string, reasons []string) {
	e.push(StructuredMessage{
		Icon:  "🔍",
		Title: "疑似价格操纵，跳过本周期",
		Sections: []MessageSection{{
			Lines: []string{
				"品种: " + symbol,
				"特征: " + strings.Join(reasons, ", "),
			},
		}},
		Timestamp: time.Now(),
	})
}

func (e *Events) CycleSettled(symbol, direction string, tier, wins, losses int, pnl float64) {
	icon := "📈"
	if pnl < 0 {
		icon = "📉"
	}
	e.push(StructuredMessage{
		Icon:  icon,
		Title: "周期结算",
		Sections: []MessageSection{{
			Lines: []string{
				fmt.Sprintf("品种: %s  方向: %s  层级: %d", symbol, direction, tier),
				fmt.Sprintf("胜/负: %d/%d", wins, losses),
				fmt.Sprintf("盈亏: %+.2f USD", pnl),
			},
		}},
		Timestamp: time.Now(),
	})
}

func (e *Events) push(msg StructuredMessage) {
	if e == nil || e.sink == nil {
		return
	}
	if err := e.sink.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("通知发送失败: %v", err)
	}
}
