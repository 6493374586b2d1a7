package db

import (
	"fmt"

	"github.com/zulandar/linegrade/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Job{},
		&models.GradingSession{},
		&models.BatchCompletion{},
		&models.LineRating{},
		&models.PhraseCacheEntry{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
