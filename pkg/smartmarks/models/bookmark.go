package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bookmark is a saved link owned by a single user.
// Active bookmarks are ordered by Position; trashed ones have IsDeleted set.
type Bookmark struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	OwnerID   uint      `gorm:"not null;index:idx_bookmarks_owner_deleted" json:"owner_id"`
	Title     string    `gorm:"not null" json:"title"`
	URL       string    `gorm:"not null" json:"url"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	IsDeleted bool      `gorm:"not null;default:false;index:idx_bookmarks_owner_deleted" json:"is_deleted"`
}

// BeforeCreate assigns the id.
func (b *Bookmark) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}
