package models

import "github.com/bwmarrin/snowflake"

// NumberCounter backs document numbering: one row per (owner, kind, year)
// tuple, bumped atomically by the allocator. Never updated outside that path.
type NumberCounter struct {
	OwnerID snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Kind    DocumentKind `gorm:"primaryKey"`
	Year    int          `gorm:"primaryKey;autoIncrement:false"`
	Value   int64        `gorm:"not null"`
}
