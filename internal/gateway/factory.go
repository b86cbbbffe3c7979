package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"opto/internal/config"
	"opto/internal/gateway/binance"
	"opto/internal/logger"
	"opto/internal/market"
	"opto/internal/market/cache"
)

func NewSourceFromConfig(cfg *config.Config) (market.Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Market.Source))
	switch name {
	case "", "binance", "binance-futures":
		return binance.New(binance.Config{
			RESTBaseURL:  cfg.Market.RESTBaseURL,
			HTTPTimeout:  time.Duration(cfg.Market.TimeoutSeconds) * time.Second,
			ProxyEnabled: cfg.Market.Proxy.Enabled,
			RESTProxyURL: cfg.Market.Proxy.RESTURL,
		})
	default:
		return nil, fmt.Errorf("unsupported market source: %s", name)
	}
}

// CandleProvider 在行情源之上叠加本地缓存：抓取成功即落盘，
// 源失败或超时则退回最近一次落盘的窗口，保证评估循环不被阻塞。
type CandleProvider struct {
	source  market.Source
	cache   *cache.Cache
	timeout time.Duration
}

func NewCandleProvider(source market.Source, c *cache.Cache, timeout time.Duration) *CandleProvider {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &CandleProvider{source: source, cache: c, timeout: timeout}
}

// GetCandles 返回按时间升序的最近 limit 根 K 线。
// 源不可用时返回缓存数据并记录降级，缓存也为空时才返回错误。
func (p *CandleProvider) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	candles, err := p.source.FetchHistory(fetchCtx, symbol, interval, limit)
	if err == nil && len(candles) > 0 {
		if p.cache != nil {
			if saveErr := p.cache.SaveWindow(ctx, symbol, interval, candles); saveErr != nil {
				logger.Warnf("candle cache: save %s@%s failed: %v", symbol, interval, saveErr)
			}
		}
		return candles, nil
	}
	if p.cache == nil {
		return nil, fmt.Errorf("fetch candles %s@%s: %w", symbol, interval, err)
	}
	cached, cacheErr := p.cache.LoadLatest(ctx, symbol, interval, limit)
	if cacheErr != nil || len(cached) == 0 {
		return nil, fmt.Errorf("fetch candles %s@%s: %w (cache empty)", symbol, interval, err)
	}
	logger.Warnf("candle provider: source failed for %s@%s, serving %d cached candles: %v",
		symbol, interval, len(cached), err)
	return cached, nil
}

func (p *CandleProvider) Close() error {
	var firstErr error
	if p.source != nil {
		if err := p.source.Close(); err != nil {
			firstErr = err
		}
	}
	if p.cache != nil {
		if err := p.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
