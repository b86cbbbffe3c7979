package model

import "gorm.io/datatypes"

// TradeRecordModel 对应 trade_records 表：只追加的成交账本。
type TradeRecordModel struct {
	ID                int64          `gorm:"column:id;primaryKey"`
	TradeID           string         `gorm:"column:trade_id;uniqueIndex"`
	Timestamp         int64          `gorm:"column:timestamp;index"`
	Asset             string         `gorm:"column:asset;index"`
	Direction         string         `gorm:"column:direction"`
	Amount            float64        `gorm:"column:amount"`
	ExpirationMinutes int            `gorm:"column:expiration_minutes"`
	Success           int            `gorm:"column:success"`
	ProfitLoss        float64        `gorm:"column:profit_loss"`
	Tier              int            `gorm:"column:tier"`
	SignalClass       string         `gorm:"column:signal_class"`
	IndicatorSnapshot datatypes.JSON `gorm:"column:indicator_snapshot;type:TEXT"`
	CreatedAtUnix     int64          `gorm:"column:created_at"`
}

func (TradeRecordModel) TableName() string { return "trade_records" }

// OutcomeRecordModel 对应 outcome_records 表：按信号分类的结局记忆。
type OutcomeRecordModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	Timestamp     int64  `gorm:"column:timestamp;index"`
	Symbol        string `gorm:"column:symbol;index:idx_outcome_key"`
	SignalClass   string `gorm:"column:signal_class;index:idx_outcome_key"`
	Result        string `gorm:"column:result"`
	CreatedAtUnix int64  `gorm:"column:created_at"`
}

func (OutcomeRecordModel) TableName() string { return "outcome_records" }

// IndicatorWeightModel 对应 indicator_weights 表：跨进程保存学到的权重。
type IndicatorWeightModel struct {
	Name          string  `gorm:"column:name;primaryKey"`
	Weight        float64 `gorm:"column:weight"`
	InitialWeight float64 `gorm:"column:initial_weight"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (IndicatorWeightModel) TableName() string { return "indicator_weights" }
