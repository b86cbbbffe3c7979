package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opto/internal/logger"
)

// PriceFunc 返回 symbol 的最新成交价。
type PriceFunc func(ctx context.Context, symbol string) (float64, error)

// Paper 为模拟场所：按入场价与到期价的方向比较结算，
// 赔付率来自配置。不产生任何外部副作用。
type Paper struct {
	payout  float64
	priceFn PriceFunc
	nowFn   func() time.Time
	waitFn  func(ctx context.Context, until time.Time) error
}

func NewPaper(payout float64, priceFn PriceFunc) *Paper {
	return &Paper{
		payout:  payout,
		priceFn: priceFn,
		nowFn:   time.Now,
		waitFn:  waitUntil,
	}
}

func (p *Paper) PlaceTrades(ctx context.Context, symbol, direction string, amount float64, count, expirationMinutes int) ([]TradeHandle, error) {
	if count <= 0 {
		return nil, fmt.Errorf("下单笔数非法: %d", count)
	}
	entry, err := p.priceFn(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("获取入场价失败: %w", err)
	}
	placedAt := p.nowFn()
	handles := make([]TradeHandle, 0, count)
	for i := 0; i < count; i++ {
		handles = append(handles, TradeHandle{
			ID:                uuid.NewString(),
			Symbol:            symbol,
			Direction:         direction,
			Amount:            amount,
			ExpirationMinutes: expirationMinutes,
			PlacedAt:          placedAt,
			EntryPrice:        entry,
		})
	}
	logger.Infof("[paper] %s %s x%d amount=%.2f entry=%.6f exp=%dm",
		symbol, direction, count, amount, entry, expirationMinutes)
	return handles, nil
}

func (p *Paper) AwaitResult(ctx context.Context, handle TradeHandle) (TradeResult, error) {
	expiry := handle.PlacedAt.Add(time.Duration(handle.ExpirationMinutes) * time.Minute)
	if err := p.waitFn(ctx, expiry); err != nil {
		return TradeResult{}, err
	}
	exit, err := p.priceFn(ctx, handle.Symbol)
	if err != nil {
		return TradeResult{}, fmt.Errorf("获取到期价失败: %w", err)
	}
	win := false
	switch handle.Direction {
	case "BUY":
		win = exit > handle.EntryPrice
	case "SELL":
		win = exit < handle.EntryPrice
	}
	if win {
		return TradeResult{Success: true, ProfitLoss: handle.Amount * p.payout}, nil
	}
	return TradeResult{Success: false, ProfitLoss: -handle.Amount}, nil
}

func (p *Paper) Close() error { return nil }

func waitUntil(ctx context.Context, until time.Time) error {
	d := time.Until(until)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
