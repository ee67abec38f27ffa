package store

import (
	"tunelock/internal/domain"

	"gorm.io/gorm"
)

// Migrate creates or updates the DRM tables. The partial unique index on
// licenses (one active row per user/device/media tuple) rides in the model
// tags and is what makes concurrent issuance resolve to a single winner.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Device{},
		&domain.License{},
		&domain.Transaction{},
		&domain.Download{},
	)
}
