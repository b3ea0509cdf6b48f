package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.UserRole{},
		&models.AuditRecord{},
	)
}

// Prepare is the start-up convenience helper: migrate the schema so the policy
// seeder can run against current tables.
func Prepare(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}
