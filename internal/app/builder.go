package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"opto/internal/config"
	"opto/internal/decision"
	"opto/internal/engine"
	"opto/internal/gateway"
	"opto/internal/gateway/notifier"
	"opto/internal/gateway/venue"
	"opto/internal/indicator"
	"opto/internal/learning"
	"opto/internal/ledger"
	"opto/internal/logger"
	"opto/internal/manipulation"
	"opto/internal/market/cache"
	pairsym "opto/internal/pkg/symbol"
	"opto/internal/profile"
	"opto/internal/risk"
	"opto/internal/sizing"
	"opto/internal/store/gormstore"
	livehttp "opto/internal/transport/http/live"
)

// buildApp 按配置逐层组装依赖。持久层打开失败降级为纯内存运行，
// 其余依赖缺一不可。
func buildApp(cfg *config.Config) (*App, error) {
	// 持久层（fail-soft）
	var persist *gormstore.GormStore
	if path := strings.TrimSpace(cfg.Store.DBPath); path != "" {
		gs, err := gormstore.NewGormStore(path)
		if err != nil {
			logger.Errorf("打开持久层失败，本次以纯内存运行: %v", err)
		} else {
			persist = gs
		}
	}

	// 历史状态恢复
	var trades []ledger.TradeRecord
	var outcomes []learning.OutcomeRecord
	savedWeights := map[string]float64{}
	if persist != nil {
		var err error
		if trades, err = persist.LoadTrades(); err != nil {
			logger.Warnf("恢复成交历史失败: %v", err)
		}
		if outcomes, err = persist.LoadOutcomes(); err != nil {
			logger.Warnf("恢复结局历史失败: %v", err)
		}
		if savedWeights, err = persist.LoadWeights(); err != nil {
			logger.Warnf("恢复指标权重失败: %v", err)
		}
	}
	led := ledger.New(trades)
	learn := learning.NewStore(outcomes)

	// 行情栈
	source, err := gateway.NewSourceFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build market source: %w", err)
	}
	candleCache, err := cache.New(cfg.Market.CacheDir)
	if err != nil {
		logger.Warnf("打开 K 线缓存失败，降级无缓存运行: %v", err)
		candleCache = nil
	}
	provider := gateway.NewCandleProvider(source, candleCache,
		time.Duration(cfg.Market.TimeoutSeconds)*time.Second)

	// 指标 profile
	var registry *profile.Registry
	profiles := defaultProfiles()
	if path := strings.TrimSpace(cfg.Profiles.Path); path != "" {
		registry, err = profile.NewRegistry(path)
		if err != nil {
			logger.Warnf("加载指标 profiles 失败，使用内置默认: %v", err)
		} else {
			profiles = registry.Snapshot().Indicators
		}
	}
	indicators := buildIndicators(profiles, cfg.Trading.LearningRate)
	if len(indicators) == 0 {
		return nil, fmt.Errorf("no indicator enabled")
	}
	restoreWeights(indicators, savedWeights)

	// 风控与执行
	gate := risk.NewGate(risk.Config{
		StartingBalance:     cfg.Trading.StartingBalance,
		MaxDailyLossPercent: cfg.Trading.MaxDailyLossPercent,
		StopOnLossStreak:    cfg.Trading.StopOnLossStreak,
		BreakerEnabled:      cfg.Trading.CircuitBreakerEnabled,
		PayoutRatio:         cfg.Trading.PayoutRatio,
	}, led)
	tradeVenue, err := buildVenue(cfg, provider)
	if err != nil {
		return nil, err
	}
	events := notifier.NewEvents(cfg.Notify.Telegram)

	eng, err := engine.New(engine.Options{
		Symbols:           pairsym.NormalizeList(cfg.Trading.Symbols),
		Timeframe:         cfg.Trading.Timeframe,
		CandleLimit:       cfg.Trading.CandleLimit,
		ExpirationMinutes: cfg.Trading.ExpirationMinutes,
		PayoutRatio:       cfg.Trading.PayoutRatio,
		StartingBalance:   cfg.Trading.StartingBalance,
		MinConfidence:     cfg.Trading.MinConfidenceThreshold,
		ConfidenceJitter:  cfg.Trading.ConfidenceJitter,
		Provider:          provider,
		Indicators:        indicators,
		Aggregator:        decision.NewAggregator(0),
		Detector:          manipulation.NewDetector(),
		RiskGate:          gate,
		Ledger:            led,
		Learning:          learn,
		Venue:             tradeVenue,
		Store:             persistOrNil(persist),
		Events:            events,
		Policies: []engine.Policy{
			engine.ActiveHoursPolicy{Start: cfg.Trading.ActiveHourStart, End: cfg.Trading.ActiveHourEnd},
			engine.HourlyRatePolicy{Max: cfg.Trading.MaxTradesPerHour},
		},
		NewTierMachine: func() *sizing.Machine {
			return sizing.NewMachine(cfg.Trading.MartingaleMaxTier, cfg.Trading.BaseTradeAmount)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	if registry != nil {
		subscribeProfileReload(registry, indicators, profiles)
	}

	server, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:            cfg.App.HTTPAddr,
		Engine:          eng,
		Ledger:          led,
		StartingBalance: cfg.Trading.StartingBalance,
	})
	if err != nil {
		return nil, fmt.Errorf("build live http server: %w", err)
	}

	return &App{
		cfg:      cfg,
		engine:   eng,
		server:   server,
		provider: provider,
		venue:    tradeVenue,
		persist:  persist,
	}, nil
}

// persistOrNil 把具体类型转成引擎依赖的接口，nil 指针不能装进非 nil 接口。
func persistOrNil(gs *gormstore.GormStore) engine.Persister {
	if gs == nil {
		return nil
	}
	return gs
}

func buildVenue(cfg *config.Config, provider *gateway.CandleProvider) (venue.Venue, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Venue.Mode))
	switch mode {
	case "", "paper":
		priceFn := func(ctx context.Context, symbol string) (float64, error) {
			candles, err := provider.GetCandles(ctx, symbol, cfg.Trading.Timeframe, 2)
			if err != nil {
				return 0, err
			}
			if len(candles) == 0 {
				return 0, fmt.Errorf("no candles for %s", symbol)
			}
			return candles[len(candles)-1].Close, nil
		}
		return venue.NewPaper(cfg.Trading.PayoutRatio, priceFn), nil
	case "rest":
		return venue.NewREST(cfg.Venue)
	default:
		return nil, fmt.Errorf("unsupported venue mode: %s", mode)
	}
}

// restoreWeights 把持久化的权重按名字套回指标，名字对不上的忽略。
func restoreWeights(indicators []indicator.Indicator, saved map[string]float64) {
	if len(saved) == 0 {
		return
	}
	for _, ind := range indicators {
		if w, ok := saved[ind.Name()]; ok {
			ind.SetWeight(w)
			logger.Infof("恢复指标权重 %s=%.3f", ind.Name(), w)
		}
	}
}

// subscribeProfileReload 处理 profiles 热更新：运营方显式改过 weight 的指标
// 重新播种权重，其余沿用已学习值；参数改动需要重启才生效。
func subscribeProfileReload(registry *profile.Registry, indicators []indicator.Indicator, initial map[string]profile.IndicatorProfile) {
	byName := make(map[string]indicator.Indicator, len(indicators))
	for _, ind := range indicators {
		byName[ind.Name()] = ind
	}
	prev := initial
	registry.Subscribe(func(snap profile.Snapshot) {
		for name, p := range snap.Indicators {
			ind, ok := byName[name]
			if !ok {
				logger.Warnf("profiles 热更新新增指标 %q 需要重启才生效", name)
				continue
			}
			if old, seen := prev[name]; !seen || old.Weight != p.Weight {
				ind.SetWeight(p.Weight)
				logger.Infof("profiles 热更新: %s 权重重新播种为 %.3f", name, p.Weight)
			}
		}
		prev = snap.Indicators
	})
}
