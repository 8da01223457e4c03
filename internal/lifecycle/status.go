// Package lifecycle owns the document status machine and the service that
// orchestrates numbering, versioning, template resolution and rendering.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/quotient-app/quotient/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAccessDenied      = errors.New("access denied")
	ErrInvalidTransition = errors.New("invalid transition")
)

// Trigger is an action that may move a document through its lifecycle.
type Trigger string

const (
	TriggerEdit    Trigger = "edit"    // manual edit while undelivered
	TriggerSend    Trigger = "send"    // owner sends (or re-sends) the document
	TriggerView    Trigger = "view"    // recipient opened the shared document
	TriggerApprove Trigger = "approve" // recipient signs or approves
	TriggerReject  Trigger = "reject"  // recipient rejects
	TriggerExpire  Trigger = "expire"  // validity window elapsed
	TriggerPay     Trigger = "pay"     // payment recorded, invoices only
)

// Effect is a follow-up the orchestration layer must perform after a legal
// transition. The machine enumerates effects but never executes them.
type Effect string

const (
	EffectRecordEmail Effect = "record_email" // append an email history entry
	EffectRecordView  Effect = "record_view"  // append a view history entry
)

type rule struct {
	from        []models.DocumentStatus
	to          models.DocumentStatus
	invoiceOnly bool
	effects     []Effect
}

var transitions = map[Trigger]rule{
	TriggerEdit:    {from: []models.DocumentStatus{models.StatusDraft}, to: models.StatusDraft},
	TriggerSend:    {from: []models.DocumentStatus{models.StatusDraft, models.StatusSent}, to: models.StatusSent, effects: []Effect{EffectRecordEmail}},
	TriggerView:    {from: []models.DocumentStatus{models.StatusSent}, to: models.StatusViewed, effects: []Effect{EffectRecordView}},
	TriggerApprove: {from: []models.DocumentStatus{models.StatusSent, models.StatusViewed}, to: models.StatusApproved},
	TriggerReject:  {from: []models.DocumentStatus{models.StatusSent, models.StatusViewed}, to: models.StatusRejected},
	TriggerExpire:  {from: []models.DocumentStatus{models.StatusSent, models.StatusViewed}, to: models.StatusExpired},
	TriggerPay:     {from: []models.DocumentStatus{models.StatusApproved, models.StatusSent, models.StatusViewed}, to: models.StatusPaid, invoiceOnly: true},
}

// Apply validates the trigger against the current state and returns the
// resulting status plus the effects to perform. Illegal transitions return
// ErrInvalidTransition and the caller must leave the document untouched.
func Apply(kind models.DocumentKind, current models.DocumentStatus, trigger Trigger) (models.DocumentStatus, []Effect, error) {
	r, ok := transitions[trigger]
	if !ok {
		return current, nil, fmt.Errorf("%w: unknown trigger %q", ErrInvalidTransition, trigger)
	}
	if r.invoiceOnly && kind != models.KindInvoice {
		return current, nil, fmt.Errorf("%w: %s applies to invoices only", ErrInvalidTransition, trigger)
	}
	for _, from := range r.from {
		if from == current {
			return r.to, r.effects, nil
		}
	}
	return current, nil, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, current)
}
