package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// RunMigrations brings the case schema up to date from the SQL files in
// migrationsPath. Safe to run on every startup; every worker for the shared
// database races to apply the same pending set and golang-migrate's own
// locking lets exactly one win.
func RunMigrations(db *sql.DB, migrationsPath string, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer closeMigrator(m, logger)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("case schema up to date")
			return nil
		}
		return fmt.Errorf("failed to apply case schema migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		logger.Warn("applied migrations but could not read schema version", zap.Error(err))
		return nil
	}
	logger.Info("applied case schema migrations",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
	return nil
}

func closeMigrator(m *migrate.Migrate, logger *zap.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Warn("failed to close migration source", zap.Error(srcErr))
	}
	if dbErr != nil {
		logger.Warn("failed to close migration database handle", zap.Error(dbErr))
	}
}
