package infra

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"moniqgw/internal/config"
)

// InitPostgresql opens the gateway's connection pool. Duplicate-key
// violations surface as gorm.ErrDuplicatedKey.
func InitPostgresql(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DB.Dsn == "" {
		return nil, fmt.Errorf("POSTGRES_URL is not set")
	}

	logLevel := logger.Warn
	if cfg.Gateway.Debug {
		logLevel = logger.Info
	}

	connectionPool, err := gorm.Open(postgres.Open(cfg.DB.Dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logLevel),
	})
	if err != nil {
		log.Printf("Error connecting to database: %v", err)
		return nil, err
	}

	return connectionPool, nil
}

func ClosePostgresql(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting database instance: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	} else {
		log.Println("PostgreSQL database connection closed successfully")
	}
}
