package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"opto/internal/config"
	"opto/internal/engine"
	"opto/internal/gateway"
	"opto/internal/gateway/venue"
	"opto/internal/logger"
	"opto/internal/scheduler"
	"opto/internal/store/gormstore"
	livehttp "opto/internal/transport/http/live"
)

// 评估在 K 线收盘后延迟这么久触发，等行情源把收盘数据落稳。
const evaluateOffset = 2 * time.Second

// App 负责应用级编排：初始化依赖 → 启动 HTTP 服务与评估循环。
type App struct {
	cfg      *config.Config
	engine   *engine.Engine
	server   *livehttp.Server
	provider *gateway.CandleProvider
	venue    venue.Venue
	persist  *gormstore.GormStore
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildApp(cfg)
}

// Run 启动 HTTP 服务与按 K 线收盘对齐的评估循环，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	interval, ok := scheduler.ParseIntervalDuration(a.cfg.Trading.Timeframe)
	if !ok {
		return fmt.Errorf("invalid timeframe: %q", a.cfg.Trading.Timeframe)
	}

	logger.InfoBlock(strings.Join([]string{
		"===== 启动摘要 =====",
		fmt.Sprintf("品种：%s", strings.Join(a.cfg.Trading.Symbols, ", ")),
		fmt.Sprintf("周期：%s  到期：%d 分钟", a.cfg.Trading.Timeframe, a.cfg.Trading.ExpirationMinutes),
		fmt.Sprintf("HTTP：%s", a.server.Addr()),
	}, "\n"))

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("live http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		sched := scheduler.NewAlignedScheduler(ctx, interval, evaluateOffset)
		sched.Start(func() {
			a.engine.RunCycle(ctx)
		})
		return nil
	})

	return group.Wait()
}

// Close 释放全部外部资源，可重复调用。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			logger.Warnf("close candle provider: %v", err)
		}
	}
	if a.venue != nil {
		if err := a.venue.Close(); err != nil {
			logger.Warnf("close venue: %v", err)
		}
	}
	if a.persist != nil {
		if err := a.persist.Close(); err != nil {
			logger.Warnf("close store: %v", err)
		}
	}
}

// Engine exposes the decision engine (for testing harnesses).
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}
