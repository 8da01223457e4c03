package models

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SectionType tags the schema of a template section's content payload.
type SectionType string

const (
	SectionHeader    SectionType = "header"
	SectionClient    SectionType = "client"
	SectionItems     SectionType = "items"
	SectionTotals    SectionType = "totals"
	SectionText      SectionType = "text"
	SectionSignature SectionType = "signature"
	SectionFooter    SectionType = "footer"
)

// Template is a reusable document layout: ordered sections plus page-level
// settings. Owned by a user; public templates are readable by everyone.
type Template struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	OwnerID      snowflake.ID `gorm:"not null;index"`
	Name         string       `gorm:"not null"`
	IsPublic     bool         `gorm:"not null;default:false"`
	PageSize     string       `gorm:"not null;default:'A4'"`
	Orientation  string       `gorm:"not null;default:'portrait'"`
	MarginTop    int          `gorm:"not null;default:20"`
	MarginRight  int          `gorm:"not null;default:20"`
	MarginBottom int          `gorm:"not null;default:20"`
	MarginLeft   int          `gorm:"not null;default:20"`
	AccentColor  string       `gorm:"not null;default:'#1f2937'"`
	FontFamily   string       `gorm:"not null;default:'Helvetica'"`
	Sections     []TemplateSection `gorm:"foreignKey:TemplateID"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TemplateSection is one layout block. Position determines render order and
// must be unique within a template. Content and Settings carry the payload
// for the section's Type; consumers dispatch on the tag.
type TemplateSection struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	TemplateID snowflake.ID   `gorm:"not null;index"`
	Type       SectionType    `gorm:"not null"`
	Position   int            `gorm:"not null"`
	Content    datatypes.JSON `gorm:"type:json"`
	Settings   datatypes.JSON `gorm:"type:json"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
