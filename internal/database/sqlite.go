package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func sqliteDialector(path string) gorm.Dialector {
	if dir := filepath.Dir(path); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	return sqlite.Open(path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
}

var memorySeq atomic.Int64

// NewInMemory opens a private in-memory SQLite database with the full schema.
// Every call gets its own database; the pool is pinned to one connection so the
// database lives as long as the returned handle.
func NewInMemory() (*GormDB, error) {
	name := fmt.Sprintf("mem%d", memorySeq.Add(1))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	gdb := NewGormDBFromDB(db)
	if err := gdb.InitSchema(); err != nil {
		return nil, err
	}
	return gdb, nil
}
