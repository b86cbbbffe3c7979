package gormstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"opto/internal/decision"
	"opto/internal/learning"
	"opto/internal/ledger"
	storemodel "opto/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// GormStore implements append-only persistence for trade records, outcome
// records and learned indicator weights using Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens (or creates) the database at path and migrates the schema.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: db path 不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&storemodel.TradeRecordModel{},
		&storemodel.OutcomeRecordModel{},
		&storemodel.IndicatorWeightModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a little parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AppendTrade persists one trade record.
func (s *GormStore) AppendTrade(rec ledger.TradeRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	snapshot, err := json.Marshal(rec.IndicatorSnapshot)
	if err != nil {
		snapshot = []byte("{}")
	}
	m := storemodel.TradeRecordModel{
		TradeID:           rec.ID,
		Timestamp:         rec.Timestamp.UnixMilli(),
		Asset:             rec.Asset,
		Direction:         string(rec.Direction),
		Amount:            rec.Amount,
		ExpirationMinutes: rec.ExpirationMinutes,
		Success:           boolToInt(rec.Success),
		ProfitLoss:        rec.ProfitLoss,
		Tier:              rec.Tier,
		SignalClass:       rec.SignalClass,
		IndicatorSnapshot: datatypes.JSON(snapshot),
		CreatedAtUnix:     time.Now().UnixMilli(),
	}
	return s.db.Create(&m).Error
}

// LoadTrades returns the full trade history ordered by timestamp ascending.
func (s *GormStore) LoadTrades() ([]ledger.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	var rows []storemodel.TradeRecordModel
	if err := s.db.Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.TradeRecord, 0, len(rows))
	for _, row := range rows {
		rec := ledger.TradeRecord{
			ID:                row.TradeID,
			Timestamp:         time.UnixMilli(row.Timestamp).UTC(),
			Asset:             row.Asset,
			Direction:         decision.Direction(row.Direction),
			Amount:            row.Amount,
			ExpirationMinutes: row.ExpirationMinutes,
			Success:           row.Success != 0,
			ProfitLoss:        row.ProfitLoss,
			Tier:              row.Tier,
			SignalClass:       row.SignalClass,
		}
		if len(row.IndicatorSnapshot) > 0 {
			var snapshot map[string]float64
			if err := json.Unmarshal(row.IndicatorSnapshot, &snapshot); err == nil {
				rec.IndicatorSnapshot = snapshot
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// AppendOutcome persists one learning outcome record.
func (s *GormStore) AppendOutcome(rec learning.OutcomeRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	m := storemodel.OutcomeRecordModel{
		Timestamp:     rec.Timestamp.UnixMilli(),
		Symbol:        rec.Symbol,
		SignalClass:   rec.SignalClass,
		Result:        string(rec.Result),
		CreatedAtUnix: time.Now().UnixMilli(),
	}
	return s.db.Create(&m).Error
}

// LoadOutcomes returns the outcome history ordered by timestamp ascending.
func (s *GormStore) LoadOutcomes() ([]learning.OutcomeRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	var rows []storemodel.OutcomeRecordModel
	if err := s.db.Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]learning.OutcomeRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, learning.OutcomeRecord{
			Timestamp:   time.UnixMilli(row.Timestamp).UTC(),
			Symbol:      row.Symbol,
			SignalClass: row.SignalClass,
			Result:      learning.Result(row.Result),
		})
	}
	return out, nil
}

// SaveWeight upserts one indicator weight.
func (s *GormStore) SaveWeight(name string, weight, initialWeight float64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	m := storemodel.IndicatorWeightModel{
		Name:          name,
		Weight:        weight,
		InitialWeight: initialWeight,
		UpdatedAtUnix: time.Now().UnixMilli(),
	}
	return s.db.Save(&m).Error
}

// LoadWeights returns the persisted weights keyed by indicator name.
func (s *GormStore) LoadWeights() (map[string]float64, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	var rows []storemodel.IndicatorWeightModel
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		out[row.Name] = row.Weight
	}
	return out, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
