package database

import (
	"gorm.io/gorm"

	"github.com/campuskit/qrattend/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Lecturer{},
		&models.Course{},
		&models.AttendanceRecord{},
		&models.LoginAttempt{},
		&models.VerificationChallenge{},
		&models.Session{},
		&models.CacheEntry{},
	)
}
