package migrations

import (
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var FS embed.FS

// Up applies every pending migration against db.
func Up(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	slog.Info("migrations applied", "method", "Up", "version", version, "dirty", dirty)
	return nil
}

// Down rolls back the given number of migrations.
func Down(db *sql.DB, steps int) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Steps(-steps); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	slog.Info("migrations rolled back", "method", "Down", "steps", steps)
	return nil
}

// Force sets the recorded version without running migrations, clearing a dirty state.
func Force(db *sql.DB, version int) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to init migrations: %w", err)
	}
	return m, nil
}
