package models

import "gorm.io/gorm"

// AllModels returns all models for migration.
// User must come first since the others reference it.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Bookmark{},
		&APIKey{},
		&OIDCIdentity{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
