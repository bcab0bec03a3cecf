package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" //nolint:blank-imports
	"github.com/pressly/goose/v3"

	"github.com/odyssey-erp/odyssey-access/migrations"
)

// Migrate applies all embedded migrations.
func Migrate(ctx context.Context, dsn string, logger *slog.Logger) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("platform/db: open: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("platform/db: dialect: %w", err)
	}

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil && !errors.Is(err, goose.ErrNoNextVersion) {
		return fmt.Errorf("platform/db: migrate: %w", err)
	}
	if logger != nil {
		version, err := goose.GetDBVersionContext(ctx, sqlDB)
		if err == nil {
			logger.Info("migrations applied", slog.Int64("version", version))
		}
	}
	return nil
}
