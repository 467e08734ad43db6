package business

import (
	"context"
	"fmt"

	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/pkg/tokenstore/sqlite"
)

// MigrateMain applies the schema migrations of the sqlite storage.
func MigrateMain(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.Type != config.StorageSQLite {
		slogctx.Info(ctx, "Storage has no schema, nothing to migrate", "storage", cfg.Storage.Type)
		return nil
	}

	db, err := sqlite.OpenDB(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		return oops.In("main").Wrapf(err, "opening DB connection")
	}

	defer func() {
		if err := db.Close(); err != nil {
			slogctx.Error(ctx, "failed to close the database", "error", err)
		}
	}()

	if err := sqlite.Migrate(ctx, db); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	slogctx.Info(ctx, "Applied migrations", "path", cfg.Storage.SQLitePath)

	return nil
}
