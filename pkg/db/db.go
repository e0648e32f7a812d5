package db

import (
	"github.com/caesium-cloud/batch/internal/models"
	"github.com/caesium-cloud/batch/pkg/env"
	"github.com/caesium-cloud/batch/pkg/log"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TypeSqlite   = "sqlite"
	TypePostgres = "postgres"
)

// Open connects to the configured database type. An empty type selects
// sqlite.
func Open(dbType, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch dbType {
	case TypePostgres:
		dialector = postgres.Open(dsn)
	case TypeSqlite, "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, errors.Errorf("unsupported database type %q", dbType)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s database", dbType)
	}

	return gdb, nil
}

// Migrate creates or updates the history tables.
func Migrate(gdb *gorm.DB) error {
	return errors.Wrap(gdb.AutoMigrate(models.All...), "failed to migrate database")
}

// Connection opens and migrates the database described by the environment,
// exiting the process on failure.
func Connection() *gorm.DB {
	vars := env.Variables()

	gdb, err := Open(vars.DatabaseType, vars.DatabaseDSN)
	if err != nil {
		log.Fatal("failed to connect to database", "type", vars.DatabaseType, "error", err)
	}

	if err := Migrate(gdb); err != nil {
		log.Fatal("failed to migrate database", "error", err)
	}

	return gdb
}
