// Package sqlite implements a SQLite-backed event log sink using GORM.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MahdiBaghbani/confdesk-go/internal/platform/eventlog"
)

func init() {
	eventlog.Register("sqlite", NewDriver)
}

// FileName is the database file created under the data directory.
const FileName = "eventlog.db"

// Driver implements eventlog.Sink on SQLite via GORM.
type Driver struct {
	dataDir string

	mu sync.RWMutex
	db *gorm.DB
}

// NewDriver creates a new SQLite sink.
func NewDriver(cfg *eventlog.DriverConfig) (eventlog.Sink, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}
	return &Driver{dataDir: cfg.DataDir}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return "sqlite" }

// Init opens the database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.dataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(filepath.Join(d.dataDir, FileName)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	d.mu.Lock()
	d.db = db
	d.mu.Unlock()

	if err := db.WithContext(ctx).AutoMigrate(&eventlog.Entry{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Append inserts e. The database assigns Seq.
func (d *Driver) Append(ctx context.Context, e *eventlog.Entry) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return eventlog.ErrClosed
	}
	e.Seq = 0
	return d.db.WithContext(ctx).Create(e).Error
}

// List returns entries after q.AfterSeq in Seq order.
func (d *Driver) List(ctx context.Context, q eventlog.Query) ([]eventlog.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, eventlog.ErrClosed
	}
	tx := d.db.WithContext(ctx).Where("seq > ?", q.AfterSeq).Order("seq")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var out []eventlog.Entry
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	d.db = nil
	return sqlDB.Close()
}
