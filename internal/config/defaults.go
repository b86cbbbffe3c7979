package config

import "strings"

// 默认值常量
const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9982"
	defaultAppLogPath  = "data/logs/opto-live.log"

	defaultMarketSource  = "binance"
	defaultMarketREST    = "https://fapi.binance.com"
	defaultMarketTimeout = 15
	defaultMarketCache   = "data/candles"

	defaultTradingTimeframe   = "1m"
	defaultTradingLimit       = 120
	defaultTradingBalance     = 1000
	defaultTradingBaseAmount  = 10
	defaultTradingDailyLoss   = 20
	defaultTradingMaxTier     = 3
	defaultTradingLearnRate   = 0.05
	defaultTradingMinConf     = 0.55
	defaultTradingJitter      = 0.05
	defaultTradingLossStreak  = 3
	defaultTradingExpiration  = 1
	defaultTradingPayout      = 0.85
	defaultTradingPerHour     = 12
	defaultTradingActiveStart = 0
	defaultTradingActiveEnd   = 24

	defaultVenueMode    = "paper"
	defaultVenueTimeout = 30

	defaultProfilesPath = "configs/profiles.yaml"
	defaultStoreDBPath  = "data/db/opto.db"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Venue.applyDefaults(keys)
	c.Profiles.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

func (a *App) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (m *Market) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.source", &m.Source, defaultMarketSource),
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		stringFieldDefault("market.cache_dir", &m.CacheDir, defaultMarketCache),
		fieldDefault{
			key:   "market.timeout_seconds",
			need:  func() bool { return m.TimeoutSeconds <= 0 },
			apply: func() { m.TimeoutSeconds = defaultMarketTimeout },
		},
	)
}

func (t *Trading) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("trading.timeframe", &t.Timeframe, defaultTradingTimeframe),
		fieldDefault{
			key:   "trading.candle_limit",
			need:  func() bool { return t.CandleLimit <= 0 },
			apply: func() { t.CandleLimit = defaultTradingLimit },
		},
		fieldDefault{
			key:   "trading.starting_balance",
			need:  func() bool { return t.StartingBalance <= 0 },
			apply: func() { t.StartingBalance = defaultTradingBalance },
		},
		fieldDefault{
			key:   "trading.base_trade_amount",
			need:  func() bool { return t.BaseTradeAmount <= 0 },
			apply: func() { t.BaseTradeAmount = defaultTradingBaseAmount },
		},
		fieldDefault{
			key:   "trading.max_daily_loss_percent",
			need:  func() bool { return t.MaxDailyLossPercent <= 0 },
			apply: func() { t.MaxDailyLossPercent = defaultTradingDailyLoss },
		},
		fieldDefault{
			key:   "trading.martingale_max_tier",
			need:  func() bool { return t.MartingaleMaxTier <= 0 },
			apply: func() { t.MartingaleMaxTier = defaultTradingMaxTier },
		},
		fieldDefault{
			key:   "trading.learning_rate",
			need:  func() bool { return t.LearningRate <= 0 },
			apply: func() { t.LearningRate = defaultTradingLearnRate },
		},
		fieldDefault{
			key:   "trading.min_confidence_threshold",
			need:  func() bool { return t.MinConfidenceThreshold <= 0 },
			apply: func() { t.MinConfidenceThreshold = defaultTradingMinConf },
		},
		fieldDefault{
			key:   "trading.confidence_jitter",
			need:  func() bool { return t.ConfidenceJitter < 0 },
			apply: func() { t.ConfidenceJitter = defaultTradingJitter },
		},
		fieldDefault{
			key:   "trading.stop_on_loss_streak",
			need:  func() bool { return t.StopOnLossStreak <= 0 },
			apply: func() { t.StopOnLossStreak = defaultTradingLossStreak },
		},
		fieldDefault{
			key:   "trading.expiration_minutes",
			need:  func() bool { return t.ExpirationMinutes <= 0 },
			apply: func() { t.ExpirationMinutes = defaultTradingExpiration },
		},
		fieldDefault{
			key:   "trading.payout_ratio",
			need:  func() bool { return t.PayoutRatio <= 0 },
			apply: func() { t.PayoutRatio = defaultTradingPayout },
		},
		fieldDefault{
			key:   "trading.max_trades_per_hour",
			need:  func() bool { return t.MaxTradesPerHour <= 0 },
			apply: func() { t.MaxTradesPerHour = defaultTradingPerHour },
		},
		fieldDefault{
			key:   "trading.active_hour_start",
			need:  func() bool { return t.ActiveHourStart < 0 },
			apply: func() { t.ActiveHourStart = defaultTradingActiveStart },
		},
		fieldDefault{
			key:   "trading.active_hour_end",
			need:  func() bool { return t.ActiveHourEnd <= 0 },
			apply: func() { t.ActiveHourEnd = defaultTradingActiveEnd },
		},
	)
}

func (v *Venue) applyDefaults(keys keySet) {
	if v == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("venue.mode", &v.Mode, defaultVenueMode),
		fieldDefault{
			key:   "venue.timeout_seconds",
			need:  func() bool { return v.TimeoutSeconds <= 0 },
			apply: func() { v.TimeoutSeconds = defaultVenueTimeout },
		},
	)
}

func (p *Profiles) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("profiles.path", &p.Path, defaultProfilesPath),
	)
}

func (s *Store) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.db_path", &s.DBPath, defaultStoreDBPath),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
