package models

import (
	"time"

	"gorm.io/gorm"
)

// ProviderGoogle is the only identity provider the service federates with.
const ProviderGoogle = "google"

// OIDCIdentity links a user to an external identity
type OIDCIdentity struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Provider  string         `gorm:"not null;uniqueIndex:idx_oidc_provider_subject" json:"provider"`
	Subject   string         `gorm:"not null;uniqueIndex:idx_oidc_provider_subject" json:"subject"` // sub claim
	Email     string         `json:"email"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

// TableName overrides gorm's split of the OIDC acronym.
func (OIDCIdentity) TableName() string {
	return "oidc_identities"
}
