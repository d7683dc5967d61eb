// Package mariadb stores the attendance ledger in MariaDB/MySQL.
package mariadb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	dsn, err := normalizeDSN(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// normalizeDSN parses the DSN and forces the options the ledger relies on.
func normalizeDSN(dsn string) (string, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	// RowsAffected must count inserted rows, not matched rows, for INSERT IGNORE.
	c.ClientFoundRows = false
	c.ParseTime = false
	return c.FormatDSN(), nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Ledger is the MariaDB attendance ledger.
type Ledger struct {
	*sqlstore.Store
	pool *Pool
}

// Open connects, applies migrations and returns the ledger.
func Open(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*Ledger, error) {
	pool, err := NewPool(cfg)
	if err != nil {
		return nil, err
	}

	if err := sqlstore.Migrate(ctx, pool.db, sqlstore.MariaDB, migrationsFS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Ledger{
		Store: sqlstore.NewStore(pool.db, sqlstore.MariaDB, logger),
		pool:  pool,
	}, nil
}

// Close closes the connection pool.
func (l *Ledger) Close() error {
	return l.pool.Close()
}
