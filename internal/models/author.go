package models

import (
	"time"

	"github.com/google/uuid"
)

// Author represents a Twitter account whose posts are being ingested.
// An Author row is created the first time the account is sighted and is
// never overwritten by later sightings of the same external id.
type Author struct {
	ID               uuid.UUID  `json:"id" db:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ExternalID       string     `json:"external_id" db:"external_id" gorm:"uniqueIndex;not null"`
	Username         string     `json:"username" db:"username" gorm:"index;not null"`
	DisplayName      string     `json:"display_name" db:"display_name"`
	Description      string     `json:"description" db:"description"`
	AccountCreatedAt *time.Time `json:"account_created_at" db:"account_created_at"`
	Location         string     `json:"location" db:"location"`

	FollowersCount int `json:"followers_count" db:"followers_count" gorm:"default:0"`
	FollowingCount int `json:"following_count" db:"following_count" gorm:"default:0"`
	PostCount      int `json:"post_count" db:"post_count" gorm:"default:0"`
	ListedCount    int `json:"listed_count" db:"listed_count" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Posts []Post `json:"posts,omitempty" gorm:"foreignKey:AuthorID"`
}

// TableName sets the table name for the Author model
func (Author) TableName() string {
	return "authors"
}
