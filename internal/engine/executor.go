package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"opto/internal/gateway/venue"
	"opto/internal/logger"
)

// executionOutcome 汇总一个周期全部订单的结算结果。
type executionOutcome struct {
	Results  []venue.TradeResult
	TotalPnL float64
	Wins     int
	Losses   int
}

// executeCycle 提交 count 笔同向等额订单并等待全部结算。
//
// 任何一笔下单或结算失败都会使整个周期作废（返回错误），但作废前
// 仍会等完所有已提交订单，绝不在有在途订单时让调用方改状态。
// 执行失败不是亏损，调用方不得据此调整层级或权重。
func executeCycle(ctx context.Context, v venue.Venue, symbol, direction string, stake float64, count, expirationMinutes int) (executionOutcome, error) {
	handles, placeErr := v.PlaceTrades(ctx, symbol, direction, stake, count, expirationMinutes)
	if placeErr != nil && len(handles) == 0 {
		return executionOutcome{}, fmt.Errorf("place trades: %w", placeErr)
	}

	results := make([]venue.TradeResult, len(handles))
	errs := make([]error, len(handles))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for i, h := range handles {
		i, h := i, h
		g.Go(func() error {
			res, err := v.AwaitResult(gctx, h)
			mu.Lock()
			results[i] = res
			errs[i] = err
			mu.Unlock()
			// 这里不返回 err：要等所有订单都结算完
			return nil
		})
	}
	_ = g.Wait()

	if placeErr != nil {
		logger.Warnf("executeCycle %s: %d/%d 笔提交成功后失败，本周期作废", symbol, len(handles), count)
		return executionOutcome{}, fmt.Errorf("partial placement (%d/%d): %w", len(handles), count, placeErr)
	}
	for i, err := range errs {
		if err != nil {
			return executionOutcome{}, fmt.Errorf("await trade %s: %w", handles[i].ID, err)
		}
	}

	var out executionOutcome
	out.Results = results
	for _, res := range results {
		out.TotalPnL += res.ProfitLoss
		if res.Success {
			out.Wins++
		} else {
			out.Losses++
		}
	}
	return out, nil
}
