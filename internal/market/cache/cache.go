package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"opto/internal/market"

	_ "modernc.org/sqlite"
)

// Cache 把最近抓取的 K 线窗口落盘，行情源不可用时作为降级数据返回。
// 每个 symbol@interval 对应一个独立的 SQLite 文件。
type Cache struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func New(root string) (*Cache, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("cache root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Cache{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for key, db := range c.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.dbs, key)
	}
	return firstErr
}

func (c *Cache) db(symbol, interval string) (*sql.DB, error) {
	if symbol == "" || interval == "" {
		return nil, fmt.Errorf("symbol/interval 不能为空")
	}
	key := strings.ToUpper(symbol) + "@" + strings.ToLower(interval)
	c.mu.Lock()
	defer c.mu.Unlock()
	if db, ok := c.dbs[key]; ok && db != nil {
		return db, nil
	}
	path := c.path(symbol, interval)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS candles (
		open_time  INTEGER PRIMARY KEY,
		close_time INTEGER NOT NULL,
		open       REAL NOT NULL,
		high       REAL NOT NULL,
		low        REAL NOT NULL,
		close      REAL NOT NULL,
		volume     REAL NOT NULL,
		trades     INTEGER DEFAULT 0
	);`); err != nil {
		_ = db.Close()
		return nil, err
	}
	c.dbs[key] = db
	return db, nil
}

func (c *Cache) path(symbol, interval string) string {
	dir := filepath.Join(c.root, strings.ToUpper(symbol))
	return filepath.Join(dir, strings.ToLower(interval)+".db")
}

// SaveWindow 批量写入窗口（重复 open_time 将被覆盖）。
func (c *Cache) SaveWindow(ctx context.Context, symbol, interval string, candles []market.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	db, err := c.db(symbol, interval)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (open_time, close_time, open, high, low, close, volume, trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(open_time) DO UPDATE SET
		    close_time=excluded.close_time,
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume,
		    trades=excluded.trades`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, k := range candles {
		if _, err := stmt.ExecContext(ctx, k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close, k.Volume, k.Trades); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LoadLatest 读取最近 limit 根缓存 K 线，按 open_time 升序返回。
func (c *Cache) LoadLatest(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	db, err := c.db(symbol, interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.QueryContext(ctx, `
		SELECT open_time, close_time, open, high, low, close, volume, trades
		FROM candles ORDER BY open_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Candle
	for rows.Next() {
		var k market.Candle
		if err := rows.Scan(&k.OpenTime, &k.CloseTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume, &k.Trades); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// 倒序查询结果翻转为升序
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
