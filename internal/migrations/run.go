// Package migrations применяет SQL-миграции схемы через golang-migrate.
package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	// Источник миграций из файловой системы.
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// ErrDirty схема осталась в незавершенном состоянии после упавшей миграции, нужен ручной force.
var ErrDirty = errors.New("schema is dirty")

// Run применяет все непримененные миграции из каталога path и логирует итоговую версию схемы.
func Run(db *sql.DB, path string, log *slog.Logger) error {
	const op = "migrations.Run"
	log = log.With(slog.String("op", op), slog.String("path", path))

	driver, err := pgxv5.WithInstance(db, &pgxv5.Config{})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+path, "pgx_v5", driver)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	before, dirty, err := version(m)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if dirty {
		return fmt.Errorf("%s: %w at version %d", op, ErrDirty, before)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}

	after, _, err := version(m)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if after == before {
		log.Debug("schema is up to date", slog.Uint64("version", uint64(after)))
		return nil
	}
	log.Info("migrations applied", slog.Uint64("from", uint64(before)), slog.Uint64("to", uint64(after)))
	return nil
}

// version возвращает 0 для пустой базы.
func version(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
