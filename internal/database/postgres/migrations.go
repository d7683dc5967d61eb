package postgres

import (
	"context"
	"embed"
	"log/slog"

	"github.com/kozaktomas/attendance/internal/database/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending migrations automatically on startup
func (p *Pool) Migrate(ctx context.Context, logger *slog.Logger) error {
	return sqlstore.Migrate(ctx, p.db, sqlstore.Postgres, migrationsFS, logger)
}

// MigrationsApplied returns the list of applied migrations
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	return sqlstore.MigrationsApplied(ctx, p.db)
}
