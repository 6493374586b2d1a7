package phrasecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zulandar/linegrade/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCache persists entries in the phrase_cache table.
type GormCache struct {
	db *gorm.DB
}

// NewGormCache returns a cache backed by db.
func NewGormCache(db *gorm.DB) *GormCache {
	return &GormCache{db: db}
}

// Get returns the entry for normalized text and bumps its hit counter.
func (c *GormCache) Get(ctx context.Context, text string) (Entry, bool, error) {
	key := Key(text)
	var row models.PhraseCacheEntry
	if err := c.db.WithContext(ctx).Where(keyIs(key)).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("phrasecache: get: %w", err)
	}

	e := Entry{Rating: row.Rating, Alternatives: []string{}}
	if len(row.Alternatives) > 0 {
		if err := json.Unmarshal(row.Alternatives, &e.Alternatives); err != nil {
			return Entry{}, false, fmt.Errorf("phrasecache: decode alternatives: %w", err)
		}
	}

	if err := c.db.WithContext(ctx).Model(&models.PhraseCacheEntry{}).
		Where(keyIs(key)).
		UpdateColumn("hits", gorm.Expr("hits + 1")).Error; err != nil {
		return Entry{}, false, fmt.Errorf("phrasecache: count hit: %w", err)
	}
	return e, true, nil
}

// keyIs matches the primary key column, which is a reserved word in MySQL
// and must go through the dialect's quoting.
func keyIs(key string) clause.Expression {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: key}
}

// Put upserts the entry for normalized text.
func (c *GormCache) Put(ctx context.Context, text string, e Entry) error {
	alts := e.Alternatives
	if alts == nil {
		alts = []string{}
	}
	raw, err := json.Marshal(alts)
	if err != nil {
		return fmt.Errorf("phrasecache: encode alternatives: %w", err)
	}
	row := models.PhraseCacheEntry{
		Key:          Key(text),
		Text:         text,
		Rating:       e.Rating,
		Alternatives: datatypes.JSON(raw),
	}
	if err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "alternatives", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("phrasecache: put: %w", err)
	}
	return nil
}
