package market

import "context"

type SourceStats struct {
	Fetches     int
	FetchErrors int
	CacheHits   int
	LastError   string
}

// Source 抽象行情来源：核心只依赖按时间升序排列的 K 线序列。
type Source interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	Stats() SourceStats

	Close() error
}
