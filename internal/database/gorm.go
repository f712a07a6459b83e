package database

import (
	"context"
	"fmt"
	"time"

	"classifieds-marketplace/internal/config"
	"classifieds-marketplace/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormDB struct {
	db *gorm.DB
}

// NewGormDB opens the database selected by cfg.Type
func NewGormDB(cfg config.DatabaseConfig) (*GormDB, error) {
	var dialector gorm.Dialector
	var err error

	switch cfg.Type {
	case "mysql":
		dialector = mysqlDialector(cfg.MySQL)
	case "postgres":
		dialector, err = postgresDialector(cfg.Postgres)
	case "sqlite":
		dialector = sqliteDialector(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if cfg.LogSQL {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Type, err)
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Type == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Type, err)
	}

	log.Info().Str("component", "database").Str("type", cfg.Type).Msg("database connected")
	return &GormDB{db: db}, nil
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database still answers within ctx
func (gdb *GormDB) Ping(ctx context.Context) error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	// AutoMigrate will create tables if they don't exist
	err := gdb.db.AutoMigrate(
		&models.Ad{},
		&models.PropertyDetails{},
		&models.VehicleDetails{},
		&models.CommercialVehicleDetails{},
		&models.OutboxEvent{},
		&models.IdempotencyRecord{},

		// Collaborator tables are owned elsewhere in production; migrating
		// them keeps local and test databases self-contained.
		&models.User{},
		&models.Showroom{},
		&models.Favorite{},
		&models.ChatRoom{},
		&models.Manufacturer{},
		&models.VehicleModel{},
		&models.Variant{},
		&models.Transmission{},
		&models.FuelType{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
