// Package numbering allocates collision-free, human-readable document numbers
// of the form {PREFIX}-{YEAR}-{SEQ}, with one strictly increasing sequence per
// (owner, kind, year) tuple.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quotient-app/quotient/internal/models"
	"gorm.io/gorm"
)

// ErrConflict reports that allocation retries were exhausted without
// producing a unique number. The caller must abort document creation.
var ErrConflict = errors.New("numbering conflict")

// MaxAttempts bounds the create-retry loop on duplicate numbers.
const MaxAttempts = 3

var defaultPrefixes = map[models.DocumentKind]string{
	models.KindQuotation: "QUO",
	models.KindInvoice:   "INV",
	models.KindProposal:  "PRO",
	models.KindContract:  "CON",
}

// CounterStore is the serialized counter primitive. Increment must atomically
// bump and return the counter for the tuple; deriving the sequence by counting
// existing documents is a race under concurrent writers and is not acceptable
// here.
type CounterStore interface {
	Increment(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, kind models.DocumentKind, year int) (int64, error)
}

type Allocator struct {
	store    CounterStore
	prefixes map[models.DocumentKind]string
}

// New builds an allocator. Entries in prefixes override the built-in defaults
// system wide; keys are the document kind strings.
func New(store CounterStore, prefixes map[string]string) *Allocator {
	merged := make(map[models.DocumentKind]string, len(defaultPrefixes))
	for k, v := range defaultPrefixes {
		merged[k] = v
	}
	for k, v := range prefixes {
		if v != "" {
			merged[models.DocumentKind(k)] = v
		}
	}
	return &Allocator{store: store, prefixes: merged}
}

// Allocate produces the next document number for the owner/kind pair within
// the calendar year of at. A non-empty prefixOverride (per-account setting)
// takes precedence over the configured prefix for the kind. Must run inside
// the same transaction that persists the document so a failed create rolls
// the counter bump back with it.
func (a *Allocator) Allocate(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, kind models.DocumentKind, at time.Time, prefixOverride string) (string, error) {
	year := at.Year()
	seq, err := a.store.Increment(ctx, tx, ownerID, kind, year)
	if err != nil {
		return "", fmt.Errorf("increment counter: %w", err)
	}
	prefix := prefixOverride
	if prefix == "" {
		prefix = a.prefixes[kind]
	}
	if prefix == "" {
		return "", fmt.Errorf("no prefix configured for kind %q", kind)
	}
	return fmt.Sprintf("%s-%d-%03d", prefix, year, seq), nil
}
