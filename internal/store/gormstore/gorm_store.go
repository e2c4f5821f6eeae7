package gormstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// EventRecord is one journaled trader envelope.
type EventRecord struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
	TaskID    string
	Symbol    string
}

// GormStore journals trader events in SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens (and migrates) the journal database at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 日志路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&eventLogModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
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

// SQLDB exposes the underlying *sql.DB for health checks.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	return s.db.DB()
}

func (s *GormStore) AppendEvent(ctx context.Context, evt EventRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	model := eventLogModel{
		EventID:       evt.ID,
		Type:          evt.Type,
		TaskID:        evt.TaskID,
		Symbol:        strings.ToUpper(strings.TrimSpace(evt.Symbol)),
		Payload:       datatypes.JSON(evt.Payload),
		CreatedAtUnix: evt.CreatedAt.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// LoadEvents returns up to limit events created at or after since, oldest first.
func (s *GormStore) LoadEvents(ctx context.Context, since time.Time, limit int) ([]EventRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if limit <= 0 {
		limit = 1000
	}
	var models []eventLogModel
	query := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Limit(limit)
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since.UnixMilli())
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	out := make([]EventRecord, 0, len(models))
	for _, m := range models {
		out = append(out, EventRecord{
			ID:        m.EventID,
			Type:      m.Type,
			Payload:   []byte(m.Payload),
			CreatedAt: time.UnixMilli(m.CreatedAtUnix),
			TaskID:    m.TaskID,
			Symbol:    m.Symbol,
		})
	}
	return out, nil
}

// PruneEvents deletes events older than before and returns how many went.
func (s *GormStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("gorm store 未初始化")
	}
	res := s.db.WithContext(ctx).Where("created_at < ?", before.UnixMilli()).Delete(&eventLogModel{})
	return res.RowsAffected, res.Error
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

type eventLogModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	EventID       string         `gorm:"column:event_uuid;index"`
	Type          string         `gorm:"column:type;index"`
	TaskID        string         `gorm:"column:task_id;index"`
	Symbol        string         `gorm:"column:symbol;index"`
	Payload       datatypes.JSON `gorm:"column:payload"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (eventLogModel) TableName() string { return "event_log" }
