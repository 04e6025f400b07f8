// Package localdb opens the on-device SQLite database that backs the offline
// event store and the operation queue.
package localdb

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds local database configuration.
type Config struct {
	// Path to the database file. ":memory:" keeps everything in RAM (tests).
	Path string

	// BusyTimeout is how long a writer waits for the lock before failing.
	BusyTimeout time.Duration

	// Debug logs every SQL statement.
	Debug bool
}

// DefaultConfig returns defaults for an agent data file at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		BusyTimeout: 5 * time.Second,
	}
}

// Open opens the database in WAL mode: readers never block the single writer
// and a crash mid-write leaves the last committed state intact.
func Open(cfg Config) (*gorm.DB, error) {
	dsn := cfg.Path
	if dsn != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
			cfg.Path, cfg.BusyTimeout.Milliseconds())
	}

	level := gormlogger.Silent
	if cfg.Debug {
		level = gormlogger.Info
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("local database handle: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" databases
	// from being split across connections.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping local database: %w", err)
	}
	return db, nil
}

// Close releases the database handle.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
