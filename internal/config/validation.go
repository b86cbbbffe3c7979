package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验；这是核心中唯一允许让进程退出的错误路径。
func validate(c *Config) error {
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Venue.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (t *Trading) validate() error {
	if len(t.Symbols) == 0 {
		return fmt.Errorf("trading.symbols requires at least one symbol")
	}
	for _, sym := range t.Symbols {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("trading.symbols contains empty entry")
		}
	}
	if t.BaseTradeAmount > t.StartingBalance {
		return fmt.Errorf("trading.base_trade_amount (%.2f) exceeds starting_balance (%.2f)",
			t.BaseTradeAmount, t.StartingBalance)
	}
	if t.MaxDailyLossPercent <= 0 || t.MaxDailyLossPercent > 100 {
		return fmt.Errorf("trading.max_daily_loss_percent must be in (0, 100], got %.2f", t.MaxDailyLossPercent)
	}
	if t.MinConfidenceThreshold <= 0 || t.MinConfidenceThreshold >= 1 {
		return fmt.Errorf("trading.min_confidence_threshold must be in (0, 1), got %.2f", t.MinConfidenceThreshold)
	}
	if t.LearningRate <= 0 || t.LearningRate >= 0.5 {
		return fmt.Errorf("trading.learning_rate must be in (0, 0.5), got %.3f", t.LearningRate)
	}
	if t.PayoutRatio <= 0 || t.PayoutRatio > 1 {
		return fmt.Errorf("trading.payout_ratio must be in (0, 1], got %.2f", t.PayoutRatio)
	}
	// start == end 表示不限时段；end < start 表示跨午夜区间（如 22-6）。
	if t.ActiveHourStart < 0 || t.ActiveHourStart > 23 {
		return fmt.Errorf("trading.active_hour_start must be in [0, 23]")
	}
	if t.ActiveHourEnd < 0 || t.ActiveHourEnd > 24 {
		return fmt.Errorf("trading.active_hour_end must be in [0, 24]")
	}
	return nil
}

func (v *Venue) validate() error {
	switch strings.ToLower(strings.TrimSpace(v.Mode)) {
	case "paper":
		return nil
	case "rest":
		if strings.TrimSpace(v.APIURL) == "" {
			return fmt.Errorf("venue.api_url is required when venue.mode is rest")
		}
		return nil
	default:
		return fmt.Errorf("venue.mode must be paper or rest, got %q", v.Mode)
	}
}

func (n *Notify) validate() error {
	if !n.Telegram.Enabled {
		return nil
	}
	if strings.TrimSpace(n.Telegram.BotToken) == "" || strings.TrimSpace(n.Telegram.ChatID) == "" {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}
