package venue

import (
	"context"
	"time"
)

// TradeHandle 代表场所已受理的一笔下单，用于后续结算查询。
type TradeHandle struct {
	ID                string
	Symbol            string
	Direction         string
	Amount            float64
	ExpirationMinutes int
	PlacedAt          time.Time
	EntryPrice        float64
}

// TradeResult 为单笔到期结算结果。ProfitLoss 已按下注额折算：
// 赢为 amount*payout，输为 -amount。
type TradeResult struct {
	Success    bool
	ProfitLoss float64
}

// Venue 抽象二元期权下单场所。PlaceTrades 提交 count 笔同向等额订单；
// 任何一笔失败都返回错误，调用方据此放弃整个周期。
type Venue interface {
	PlaceTrades(ctx context.Context, symbol, direction string, amount float64, count, expirationMinutes int) ([]TradeHandle, error)
	AwaitResult(ctx context.Context, handle TradeHandle) (TradeResult, error)
	Close() error
}
