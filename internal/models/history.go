package models

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EmailEvent records one delivery attempt for a document. Append-only.
type EmailEvent struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	DocumentID snowflake.ID `gorm:"not null;index"`
	Recipient  string       `gorm:"not null"`
	Outcome    string       `gorm:"not null"` // sent, failed
	Detail     string
	CreatedAt  time.Time
}

// ViewEvent records one recipient view of a shared document. Append-only.
type ViewEvent struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	DocumentID snowflake.ID `gorm:"not null;index"`
	RemoteAddr string
	UserAgent  string
	CreatedAt  time.Time
}
