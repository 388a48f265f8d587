// Package persistence owns the embedded relational store behind the IPC
// server: latest candle-group state per (exchange,symbol), gap rows, and a
// fallback queue table with retention pruning.
package persistence

// StateRow is the latest persisted CandleGroup snapshot for one symbol.
// The group itself is stored as an opaque JSON string the server never
// interprets.
type StateRow struct {
	Exchange  string `gorm:"primaryKey;size:32"`
	Symbol    string `gorm:"primaryKey;size:32"`
	StateJSON string `gorm:"type:text"`
	UpdatedAt int64
}

func (StateRow) TableName() string { return "candle_group_state" }

// GapRow is one persisted trade-id gap.
type GapRow struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	Exchange    string `gorm:"size:32;index"`
	Symbol      string `gorm:"size:32;index"`
	FromTradeID int64
	ToTradeID   int64
	GapSize     int64
	DetectedAt  int64 `gorm:"index"`
	Synced      bool  `gorm:"index"`
	SyncedAt    int64
}

func (GapRow) TableName() string { return "trade_gaps" }

// QueueRow is one fallback fire-and-forget message, pending dispatch by
// the queue poller.
type QueueRow struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	Type        string `gorm:"size:64"`
	PayloadJSON string `gorm:"type:text"`
	Timestamp   int64
	ProcessedAt int64 `gorm:"index"`
}

func (QueueRow) TableName() string { return "message_queue" }

// schemaVersion records the applied migration generation.
type schemaVersion struct {
	ID      int `gorm:"primaryKey"`
	Version int
}

func (schemaVersion) TableName() string { return "schema_version" }

const currentSchemaVersion = 1
