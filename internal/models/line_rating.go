package models

import (
	"time"

	"gorm.io/datatypes"
)

// LineRating is the merged rating for one rep utterance, keyed by its
// absolute transcript position.
type LineRating struct {
	SessionID    string `gorm:"primaryKey;size:64"`
	LineIndex    int    `gorm:"primaryKey;autoIncrement:false"`
	Text         string `gorm:"type:text"`
	Rating       string `gorm:"size:32"`
	Alternatives datatypes.JSON
	Cached       bool   `gorm:"default:false"`
	Error        string `gorm:"type:text"`
	JobID        string `gorm:"size:36"`
	UpdatedAt    time.Time
}

// PhraseCacheEntry stores a previously computed rating for a normalized
// utterance.
type PhraseCacheEntry struct {
	Key          string `gorm:"primaryKey;size:64"`
	Text         string `gorm:"type:text"`
	Rating       string `gorm:"size:32"`
	Alternatives datatypes.JSON
	Hits         int `gorm:"default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName overrides the default pluralized table name.
func (PhraseCacheEntry) TableName() string {
	return "phrase_cache"
}
