// Package versioning preserves immutable snapshots of documents across
// significant revisions. Whether a revision is significant is the caller's
// call, asserted explicitly; nothing here infers it from the diff.
package versioning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quotient-app/quotient/internal/models"
	"github.com/quotient-app/quotient/internal/render"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Patch is a revision to a live document. Nil fields are left unchanged; a
// non-nil Items slice replaces the whole line item list.
type Patch struct {
	Subject    *string
	Notes      *string
	Currency   *string
	TemplateID *snowflake.ID
	ValidUntil *time.Time
	Client     *models.ClientInfo
	Items      []ItemPatch
}

type ItemPatch struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
}

type Manager struct {
	ids *snowflake.Node
}

func NewManager(ids *snowflake.Node) *Manager { return &Manager{ids: ids} }

// ApplyUpdate applies patch to doc inside tx. When requestsVersioning is set
// it first freezes the current state as a snapshot with its own identity and
// bumps the version by exactly one; the two writes share the transaction, so
// a failed snapshot aborts the whole update and the invariant
// version == snapshots+1 can never be violated. doc must carry its current
// items.
func (m *Manager) ApplyUpdate(ctx context.Context, tx *gorm.DB, doc *models.Document, patch Patch, requestsVersioning bool) (*models.DocumentSnapshot, error) {
	var snap *models.DocumentSnapshot
	if requestsVersioning {
		body, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("freeze document state: %w", err)
		}
		snap = &models.DocumentSnapshot{
			ID:         m.ids.Generate(),
			DocumentID: doc.ID,
			Version:    doc.Version,
			Body:       body,
		}
		if err := tx.WithContext(ctx).Create(snap).Error; err != nil {
			return nil, fmt.Errorf("persist snapshot: %w", err)
		}
		doc.Version++
	}

	applyScalarPatch(doc, patch)

	if patch.Items != nil {
		if err := tx.WithContext(ctx).Where("document_id = ?", doc.ID).Delete(&models.LineItem{}).Error; err != nil {
			return nil, fmt.Errorf("clear line items: %w", err)
		}
		items := make([]models.LineItem, 0, len(patch.Items))
		for i, p := range patch.Items {
			item := models.LineItem{
				ID:          m.ids.Generate(),
				DocumentID:  doc.ID,
				Position:    i + 1,
				Description: p.Description,
				Quantity:    p.Quantity,
				UnitPrice:   p.UnitPrice,
				Discount:    p.Discount,
				Tax:         p.Tax,
			}
			item.Total = render.LineTotal(item, doc.Currency)
			items = append(items, item)
		}
		if len(items) > 0 {
			if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
				return nil, fmt.Errorf("persist line items: %w", err)
			}
		}
		doc.Items = items
		doc.Totals = render.ComputeTotals(items, doc.Currency)
	}

	if err := tx.WithContext(ctx).Omit(clause.Associations).Save(doc).Error; err != nil {
		return nil, fmt.Errorf("persist document: %w", err)
	}
	return snap, nil
}

func applyScalarPatch(doc *models.Document, patch Patch) {
	if patch.Subject != nil {
		doc.Subject = *patch.Subject
	}
	if patch.Notes != nil {
		doc.Notes = *patch.Notes
	}
	if patch.Currency != nil {
		doc.Currency = *patch.Currency
	}
	if patch.TemplateID != nil {
		doc.TemplateID = *patch.TemplateID
	}
	if patch.ValidUntil != nil {
		doc.ValidUntil = patch.ValidUntil
	}
	if patch.Client != nil {
		doc.Client = *patch.Client
	}
}

// Snapshots returns the snapshot references for a document, oldest first.
func Snapshots(ctx context.Context, db *gorm.DB, documentID snowflake.ID) ([]models.DocumentSnapshot, error) {
	var snaps []models.DocumentSnapshot
	err := db.WithContext(ctx).Where("document_id = ?", documentID).Order("version asc").Find(&snaps).Error
	return snaps, err
}
