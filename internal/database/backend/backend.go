// Package backend opens the ledger and gallery selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/database/mariadb"
	"github.com/kozaktomas/attendance/internal/database/postgres"
	"github.com/kozaktomas/attendance/internal/database/sqlite"
	"github.com/kozaktomas/attendance/internal/gallery"
)

// ErrUnknownDriver is returned for an unsupported DATABASE_DRIVER.
var ErrUnknownDriver = errors.New("unknown database driver")

// OpenLedger opens the attendance ledger for cfg.Driver. On error the
// returned ledger is a nil interface.
func OpenLedger(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (database.Ledger, error) {
	switch cfg.Driver {
	case "", "sqlite", "sqlite3":
		l, err := sqlite.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "postgres", "postgresql":
		l, err := postgres.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "mariadb", "mysql":
		l, err := mariadb.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// OpenGallery returns the gallery store for cfg.Gallery.Backend. The postgres
// gallery shares the ledger's pool and therefore requires the postgres driver.
func OpenGallery(cfg *config.Config, ledger database.Ledger, logger *slog.Logger) (database.GalleryWriter, error) {
	switch cfg.Gallery.Backend {
	case "", "dir":
		return gallery.NewDirGallery(cfg.Gallery.Dir, cfg.Gallery.CacheTTL, logger), nil
	case "postgres":
		pg, ok := ledger.(*postgres.Ledger)
		if !ok {
			return nil, fmt.Errorf("postgres gallery requires DATABASE_DRIVER=postgres, got %q", cfg.Database.Driver)
		}
		return postgres.NewGalleryRepository(pg.Pool()), nil
	default:
		return nil, fmt.Errorf("unknown gallery backend %q", cfg.Gallery.Backend)
	}
}
