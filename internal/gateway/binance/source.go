package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"opto/internal/logger"
	"opto/internal/market"
	"opto/internal/pkg/convert"
	pairsym "opto/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
)

const maxHistoryLimit = 1500

// Source 基于 go-binance SDK 实现 market.Source。
type Source struct {
	cfg    Config
	client *futures.Client

	statsMu sync.Mutex
	stats   market.SourceStats
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = strings.TrimSpace(final.RESTBaseURL)
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client}, nil
}

// FetchHistory 拉取最近 limit 根 K 线，升序返回且剔除未收盘的最后一根。
func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	// Binance 的 symbol 不带斜杠（ETH/USDT → ETHUSDT）
	cleanSymbol := pairsym.ToBinance(symbol)

	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}

	var kls []*futures.Kline
	var err error
	for attempt := 0; attempt < s.cfg.RetryAttempts; attempt++ {
		svc := s.client.NewKlinesService().Symbol(cleanSymbol).Interval(interval).Limit(limit + 1)
		kls, err = svc.Do(ctx)
		if err == nil {
			break
		}
		s.recordError(err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		backoff := time.Duration(attempt+1) * time.Second
		logger.Warnf("binance: fetch %s@%s failed (attempt %d): %v", cleanSymbol, interval, attempt+1, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s@%s: %w", cleanSymbol, interval, err)
	}

	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      convert.ToFloat64(kl.Open),
			High:      convert.ToFloat64(kl.High),
			Low:       convert.ToFloat64(kl.Low),
			Close:     convert.ToFloat64(kl.Close),
			Volume:    convert.ToFloat64(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	out = dropUnclosed(out)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	s.recordFetch()
	return out, nil
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error { return nil }

func (s *Source) recordFetch() {
	s.statsMu.Lock()
	s.stats.Fetches++
	s.statsMu.Unlock()
}

func (s *Source) recordError(err error) {
	s.statsMu.Lock()
	s.stats.FetchErrors++
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
}

// dropUnclosed 去掉尚未收盘的最后一根 K 线。
func dropUnclosed(candles []market.Candle) []market.Candle {
	if len(candles) == 0 {
		return candles
	}
	last := candles[len(candles)-1]
	if last.CloseTime > time.Now().UnixMilli() {
		return candles[:len(candles)-1]
	}
	return candles
}
