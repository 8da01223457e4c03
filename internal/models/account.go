package models

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Account is a document owner: credentials plus the company identity and
// branding merged into rendered documents.
type Account struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Email        string       `gorm:"uniqueIndex;not null"`
	PasswordHash string       `gorm:"not null"`
	CompanyName  string
	Address      string
	PostalCode   string
	City         string
	Country      string
	VATNumber    string
	BrandColor   string
	BrandFont    string
	// NumberPrefixes overrides the per-kind document number prefixes,
	// e.g. {"quotation": "DEV"}. Missing kinds fall back to the defaults.
	NumberPrefixes datatypes.JSONMap `gorm:"type:json"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
