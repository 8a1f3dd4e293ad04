package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"

	"productimages/internal/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationPath = "migrations"

func runMigrations(db *sql.DB, log *logger.Logger) error {
	const op = "storage.migrations"

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := goose.Up(db, migrationPath)
	if err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			log.Info("no migrations to apply")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("database migrations applied")
	return nil
}
