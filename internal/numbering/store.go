package numbering

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/quotient-app/quotient/internal/models"
	"gorm.io/gorm"
)

// GormCounterStore implements CounterStore on the number_counters table with
// a single upsert. The insert either seeds the tuple at 1 or bumps the
// existing row under its row lock, so concurrent allocators serialize on the
// tuple and each read their own value.
type GormCounterStore struct{}

func NewGormCounterStore() *GormCounterStore { return &GormCounterStore{} }

func (s *GormCounterStore) Increment(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, kind models.DocumentKind, year int) (int64, error) {
	var value int64
	err := tx.WithContext(ctx).Raw(
		`INSERT INTO number_counters (owner_id, kind, year, value) VALUES (?, ?, ?, 1)
		 ON CONFLICT (owner_id, kind, year) DO UPDATE SET value = number_counters.value + 1
		 RETURNING value`,
		ownerID, kind, year,
	).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}
