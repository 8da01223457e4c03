package models

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// DocumentKind classifies a business document.
type DocumentKind string

const (
	KindQuotation DocumentKind = "quotation"
	KindInvoice   DocumentKind = "invoice"
	KindProposal  DocumentKind = "proposal"
	KindContract  DocumentKind = "contract"
)

// DocumentStatus is the lifecycle state of a document.
type DocumentStatus string

const (
	StatusDraft    DocumentStatus = "draft"
	StatusSent     DocumentStatus = "sent"
	StatusViewed   DocumentStatus = "viewed"
	StatusApproved DocumentStatus = "approved"
	StatusRejected DocumentStatus = "rejected"
	StatusExpired  DocumentStatus = "expired"
	StatusPaid     DocumentStatus = "paid"
)

// ClientInfo is the denormalized client snapshot embedded into a document at
// creation time. The document must stay renderable even if the client record
// is later edited or deleted.
type ClientInfo struct {
	Name       string
	Email      string
	Address    string
	PostalCode string
	City       string
	Country    string
	VATNumber  string
}

// Totals is the persisted aggregate over the document's line items.
type Totals struct {
	Subtotal decimal.Decimal `gorm:"type:numeric"`
	Discount decimal.Decimal `gorm:"type:numeric"`
	Tax      decimal.Decimal `gorm:"type:numeric"`
	Total    decimal.Decimal `gorm:"type:numeric"`
}

type Document struct {
	ID snowflake.ID `gorm:"primaryKey"`
	// Numbers are unique per owner, not globally: every owner runs their own
	// gapless sequence, so two owners both hold a QUO-2025-001.
	DocumentNumber string       `gorm:"not null;uniqueIndex:idx_documents_owner_number"`
	Kind           DocumentKind `gorm:"not null;index:idx_documents_owner_kind"`
	OwnerID        snowflake.ID `gorm:"not null;index:idx_documents_owner_kind;uniqueIndex:idx_documents_owner_number,priority:1"`
	Status         DocumentStatus `gorm:"not null;default:'draft'"`
	Version        int            `gorm:"not null;default:1"`
	Currency       string         `gorm:"not null;default:'EUR'"`
	ClientID       snowflake.ID   `gorm:"index"` // source record, informational only
	Client         ClientInfo     `gorm:"embedded;embeddedPrefix:client_"`
	TemplateID     snowflake.ID   `gorm:"index"` // weak reference, the template evolves independently
	Items          []LineItem     `gorm:"foreignKey:DocumentID"`
	Totals         Totals         `gorm:"embedded;embeddedPrefix:total_"`
	Subject        string
	Notes          string
	ShareToken     string `gorm:"uniqueIndex"`
	ValidUntil     *time.Time
	IssuedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LineItem is one priced row of a document. Discount is a fractional rate
// (0..1) applied to quantity x unit price; Tax is an absolute amount per line.
type LineItem struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	DocumentID  snowflake.ID    `gorm:"not null;index"`
	Position    int             `gorm:"not null"`
	Description string          `gorm:"not null"`
	Quantity    decimal.Decimal `gorm:"type:numeric;not null"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric;not null"`
	Discount    decimal.Decimal `gorm:"type:numeric"`
	Tax         decimal.Decimal `gorm:"type:numeric"`
	Total       decimal.Decimal `gorm:"type:numeric"`
}
