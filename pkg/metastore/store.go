// Package metastore persists FileMeta rows in a relational database via
// GORM. A long-lived Store owns the connection pool; every request opens a
// short-lived Session wrapping one transaction.
package metastore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/avolokita/fileholder/internal/logger"
	"github.com/avolokita/fileholder/pkg/models"
)

// Config contains database configuration.
type Config struct {
	// URL is a PostgreSQL connection URL. When empty the store falls back
	// to SQLite at SQLitePath.
	URL string

	// SQLitePath is the SQLite database file used when no URL is set.
	// ":memory:" is accepted for tests.
	SQLitePath string

	// Retries is the number of connection attempts at startup. Default: 5.
	Retries int

	// RetryDelay is the pause between connection attempts. Default: 2s.
	RetryDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Retries == 0 {
		c.Retries = 5
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.URL == "" && c.SQLitePath == "" {
		c.SQLitePath = "fileholder.db"
	}
}

// Store wraps the shared GORM connection pool.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database, retrying the initial
// connection, and migrates the file_meta schema.
func Open(cfg Config) (*Store, error) {
	cfg.applyDefaults()

	var dialector gorm.Dialector
	if cfg.URL != "" {
		dialector = postgres.Open(cfg.URL)
	} else {
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("%w: creating database directory: %v", models.ErrMetaStore, err)
			}
		}
		// WAL plus busy timeout for concurrent request transactions.
		dsn := cfg.SQLitePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var db *gorm.DB
	var err error
	for attempt := 1; attempt <= cfg.Retries; attempt++ {
		db, err = gorm.Open(dialector, gormConfig)
		if err == nil {
			break
		}
		logger.Warn("database connection failed",
			"attempt", attempt, "retries", cfg.Retries, "error", err)
		if attempt < cfg.Retries {
			time.Sleep(cfg.RetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: connecting after %d attempts: %v", models.ErrMetaStore, cfg.Retries, err)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, fmt.Errorf("%w: migrating schema: %v", models.ErrMetaStore, err)
	}

	return &Store{db: db}, nil
}

// DB returns the underlying GORM handle. Useful for tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isUniqueConstraintError checks if the error is a unique constraint
// violation. SQLite and PostgreSQL word it differently.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
