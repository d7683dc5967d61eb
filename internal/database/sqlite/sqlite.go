// Package sqlite is the default single-file attendance ledger.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database/sqlstore"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ledger is a SQLite-backed attendance ledger.
type Ledger struct {
	*sqlstore.Store
	db *sql.DB
}

// DSN builds the go-sqlite3 connection string for a database file.
// Foreign key enforcement is a per-connection pragma in SQLite, so it is
// carried in the DSN and applies to every pooled connection.
func DSN(path string, foreignKeys bool) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	fk := "off"
	if foreignKeys {
		fk = "on"
	}
	return fmt.Sprintf("%s%s_foreign_keys=%s&_busy_timeout=5000", path, sep, fk)
}

// Open opens (creating if needed) the database file and applies migrations.
func Open(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*Ledger, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", DSN(cfg.URL, cfg.ForeignKeys))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one connection turns contention into queueing.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := sqlstore.Migrate(ctx, db, sqlstore.SQLite, migrationsFS, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Ledger{
		Store: sqlstore.NewStore(db, sqlstore.SQLite, logger),
		db:    db,
	}, nil
}

// ForeignKeysEnabled reports whether the connection enforces foreign keys.
func (l *Ledger) ForeignKeysEnabled(ctx context.Context) (bool, error) {
	var on int
	if err := l.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
		return false, fmt.Errorf("query foreign_keys pragma: %w", err)
	}
	return on == 1, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	if l.db != nil {
		if err := l.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
