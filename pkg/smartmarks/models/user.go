package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an account in the system
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `json:"-"` // empty for Google-only users
	Name         string         `json:"name"`

	// Relationships
	APIKeys        []APIKey       `gorm:"foreignKey:UserID" json:"api_keys,omitempty"`
	OIDCIdentities []OIDCIdentity `gorm:"foreignKey:UserID" json:"oidc_identities,omitempty"`
}
