// Package gorm provides GORM-based database operations for conductor.
package gorm

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store represents the database connection shared by the entity stores.
type Store struct {
	DB    *gorm.DB
	sqlDB *sql.DB

	// nowFunc supplies timestamps for event ordering; overridable in
	// tests. The event log only requires it to be monotonic enough.
	nowFunc func() time.Time
}

// Config holds database configuration.
type Config struct {
	Driver   string // "sqlite" (default) or "postgres"
	Path     string // SQLite database file
	DSN      string // PostgreSQL connection string
	MaxConns int    // Maximum open connections (default: 4)
	LogLevel logger.LogLevel
}

// NewStore opens the database, runs migrations and, for sqlite, enables
// WAL mode and a busy timeout so concurrent writers retry instead of
// failing immediately.
func NewStore(cfg Config) (*Store, error) {
	var (
		db    *gorm.DB
		sqlDB *sql.DB
		err   error
	)

	gormCfg := &gorm.Config{
		Logger:      logger.Default.LogMode(cfg.LogLevel),
		PrepareStmt: true,
	}

	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.Path + "?_foreign_keys=ON"
		sqlDB, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db, err = gorm.Open(sqlite.Dialector{Conn: sqlDB}, gormCfg)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("open gorm: %w", err)
		}
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open gorm: %w", err)
		}
		sqlDB, err = db.DB()
		if err != nil {
			return nil, fmt.Errorf("unwrap sql db: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{
		DB:      db,
		sqlDB:   sqlDB,
		nowFunc: time.Now,
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if cfg.Driver == "" || cfg.Driver == "sqlite" {
		if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
		if _, err := sqlDB.Exec("PRAGMA synchronous=NORMAL"); err != nil {
			return nil, fmt.Errorf("set synchronous mode: %w", err)
		}
		if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	return store, nil
}

// SetNowFunc overrides the clock used for event timestamps (tests).
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.nowFunc = fn
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.sqlDB.Ping()
}

// GetDB returns the GORM DB instance.
func (s *Store) GetDB() *gorm.DB {
	return s.DB
}
