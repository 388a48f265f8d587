package persistence

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the embedded relational store backing the persistence server.
// All writes share db's single connection: sqlite's single-writer model
// serializes them naturally, so writers never need an application-level
// lock beyond mu; reads may run concurrently.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	mu     sync.Mutex
}

// Open opens (creating if absent) the sqlite database at dsn and runs
// AutoMigrate for every table this store owns.
func Open(dsn string, zlog *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("persistence: open store: %w", err)
	}
	if err := db.AutoMigrate(&StateRow{}, &GapRow{}, &QueueRow{}, &schemaVersion{}); err != nil {
		return nil, fmt.Errorf("persistence: migrate: %w", err)
	}

	var sv schemaVersion
	if err := db.FirstOrCreate(&sv, schemaVersion{ID: 1, Version: currentSchemaVersion}).Error; err != nil {
		return nil, fmt.Errorf("persistence: record schema version: %w", err)
	}

	return &Store{db: db, logger: zlog.Named("store")}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- state family ---

// SaveState upserts the latest snapshot for (exchange,symbol).
func (s *Store) SaveState(exchange, symbol, stateJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := StateRow{Exchange: exchange, Symbol: symbol, StateJSON: stateJSON, UpdatedAt: time.Now().UnixMilli()}
	return s.db.Save(&row).Error
}

// SaveStateBatch upserts many snapshots atomically: all or nothing.
func (s *Store) SaveStateBatch(rows []StateRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixMilli()
	return s.db.Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			rows[i].UpdatedAt = now
			if err := tx.Save(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadState returns the latest snapshot for (exchange,symbol), or
// gorm.ErrRecordNotFound if none exists.
func (s *Store) LoadState(exchange, symbol string) (StateRow, error) {
	var row StateRow
	err := s.db.Where("exchange = ? AND symbol = ?", exchange, symbol).First(&row).Error
	return row, err
}

// LoadStateBatch returns every stored snapshot for exchange among symbols.
func (s *Store) LoadStateBatch(exchange string, symbols []string) ([]StateRow, error) {
	var rows []StateRow
	err := s.db.Where("exchange = ? AND symbol IN ?", exchange, symbols).Find(&rows).Error
	return rows, err
}

// LoadAllState returns every stored snapshot.
func (s *Store) LoadAllState() ([]StateRow, error) {
	var rows []StateRow
	err := s.db.Find(&rows).Error
	return rows, err
}

// --- gap family ---

// SaveGap inserts one gap row.
func (s *Store) SaveGap(row GapRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Create(&row).Error
}

// SaveGapBatch inserts many gap rows atomically.
func (s *Store) SaveGapBatch(rows []GapRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

// GapFilter narrows a gap_load query.
type GapFilter struct {
	Exchange   string
	Symbol     string
	SyncedOnly bool
}

// LoadGaps returns gap rows matching filter, ordered by detectedAt
// descending.
func (s *Store) LoadGaps(filter GapFilter) ([]GapRow, error) {
	q := s.db.Model(&GapRow{})
	if filter.Exchange != "" {
		q = q.Where("exchange = ?", filter.Exchange)
	}
	if filter.Symbol != "" {
		q = q.Where("symbol = ?", filter.Symbol)
	}
	if filter.SyncedOnly {
		q = q.Where("synced = ?", true)
	}
	var rows []GapRow
	err := q.Order("detected_at DESC").Find(&rows).Error
	return rows, err
}

// MarkGapsSynced updates the given gap ids to synced=true and returns the
// number of rows updated. Unknown ids are silently ignored and do not add
// to that count, so len(ids) minus the count is the number of unknown ids.
func (s *Store) MarkGapsSynced(ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.Model(&GapRow{}).Where("id IN ?", ids).
		Updates(map[string]interface{}{"synced": true, "synced_at": time.Now().UnixMilli()})
	return res.RowsAffected, res.Error
}

// --- queue family ---

// Enqueue persists one fallback message for the poller to dispatch later.
func (s *Store) Enqueue(msgType, payloadJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := QueueRow{Type: msgType, PayloadJSON: payloadJSON, Timestamp: time.Now().UnixMilli()}
	return s.db.Create(&row).Error
}

// PollUnprocessed returns up to batchSize rows with ProcessedAt == 0,
// oldest first.
func (s *Store) PollUnprocessed(batchSize int) ([]QueueRow, error) {
	var rows []QueueRow
	err := s.db.Where("processed_at = 0").Order("timestamp ASC").Limit(batchSize).Find(&rows).Error
	return rows, err
}

// MarkProcessed stamps ProcessedAt for the given queue row ids.
func (s *Store) MarkProcessed(ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	return s.db.Model(&QueueRow{}).Where("id IN ?", ids).
		Update("processed_at", time.Now().UnixMilli()).Error
}

// PruneProcessed deletes processed queue rows older than retention.
func (s *Store) PruneProcessed(retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-retention).UnixMilli()
	res := s.db.Where("processed_at > 0 AND processed_at < ?", cutoff).Delete(&QueueRow{})
	return res.RowsAffected, res.Error
}
