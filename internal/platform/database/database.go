package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/recophone/api/internal/platform/config"
	"github.com/recophone/api/internal/platform/observability"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Open connects with the configured driver and brings the schema up to date.
// Postgres deployments run the embedded SQL migrations when RunMigrations is set;
// everything else falls back to AutoMigrate on models.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger, models ...any) (*gorm.DB, error) {
	dsn := NormalizeDSN(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database: dsn is empty")
	}
	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	gormLogger := logger.New(observability.NewPrintfAdapter(log), logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	if err := Ping(ctx, db); err != nil {
		return nil, err
	}
	if log != nil {
		log.Info("database connected", zap.String("driver", cfg.Driver), zap.String("dsn", MaskDSN(dsn)))
	}

	if cfg.Driver == "postgres" && cfg.RunMigrations {
		if err := runSQLMigrations(ToURLDSN(dsn)); err != nil {
			return nil, fmt.Errorf("database: sql migrations: %w", err)
		}
	} else {
		for _, model := range models {
			if err := db.WithContext(ctx).AutoMigrate(model); err != nil {
				return nil, fmt.Errorf("database: automigrate %T: %w", model, err)
			}
		}
	}

	for _, model := range models {
		if !db.Migrator().HasTable(model) {
			return nil, fmt.Errorf("database: missing table for %T after migration", model)
		}
	}
	return db, nil
}

// Ping checks connectivity.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database: handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: ping: %w", err)
	}
	return nil
}

// Close releases the pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func runSQLMigrations(dsn string) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
