package config

import "strings"

// Config 是 opto 的主配置载体。
type Config struct {
	App      App      `toml:"app"`
	Market   Market   `toml:"market"`
	Trading  Trading  `toml:"trading"`
	Venue    Venue    `toml:"venue"`
	Notify   Notify   `toml:"notify"`
	Profiles Profiles `toml:"profiles"`
	Store    Store    `toml:"store"`
}

type App struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

type Market struct {
	Source         string `toml:"source"`
	RESTBaseURL    string `toml:"rest_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	CacheDir       string `toml:"cache_dir"`
	Proxy          Proxy  `toml:"proxy"`
}

type Proxy struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

// Trading 覆盖决策核心消费的全部参数。
type Trading struct {
	Symbols   []string `toml:"symbols"`
	Timeframe string   `toml:"timeframe"`
	// 每次评估拉取的 K 线窗口大小
	CandleLimit int `toml:"candle_limit"`

	StartingBalance        float64 `toml:"starting_balance"`
	BaseTradeAmount        float64 `toml:"base_trade_amount"`
	MaxDailyLossPercent    float64 `toml:"max_daily_loss_percent"`
	MartingaleMaxTier      int     `toml:"martingale_max_tier"`
	LearningRate           float64 `toml:"learning_rate"`
	MinConfidenceThreshold float64 `toml:"min_confidence_threshold"`
	ConfidenceJitter       float64 `toml:"confidence_jitter"`
	StopOnLossStreak       int     `toml:"stop_on_loss_streak"`
	CircuitBreakerEnabled  bool    `toml:"circuit_breaker_enabled"`
	ExpirationMinutes      int     `toml:"expiration_minutes"`
	PayoutRatio            float64 `toml:"payout_ratio"`

	// 人为节奏限制（可插拔 veto 策略的默认参数）
	MaxTradesPerHour int `toml:"max_trades_per_hour"`
	ActiveHourStart  int `toml:"active_hour_start"`
	ActiveHourEnd    int `toml:"active_hour_end"`
}

type Venue struct {
	Mode           string `toml:"mode"` // "paper" | "rest"
	APIURL         string `toml:"api_url"`
	APIToken       string `toml:"api_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type Notify struct {
	Telegram Telegram `toml:"telegram"`
}

type Telegram struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type Profiles struct {
	Path string `toml:"path"`
}

type Store struct {
	DBPath string `toml:"db_path"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
