package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/quotient-app/quotient/internal/models"
	"github.com/quotient-app/quotient/internal/numbering"
	"github.com/quotient-app/quotient/internal/render"
	"github.com/quotient-app/quotient/internal/templates"
	"github.com/quotient-app/quotient/internal/versioning"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service sequences the lifecycle components behind create, revise,
// transition and render-for-output. It owns no invariants of its own: every
// rule lives in the component responsible for it, and the first failure
// aborts the operation.
type Service struct {
	db        *gorm.DB
	ids       *snowflake.Node
	allocator *numbering.Allocator
	resolver  *templates.Resolver
	versions  *versioning.Manager
	log       zerolog.Logger
}

func NewService(db *gorm.DB, ids *snowflake.Node, allocator *numbering.Allocator, resolver *templates.Resolver, versions *versioning.Manager, log zerolog.Logger) *Service {
	return &Service{db: db, ids: ids, allocator: allocator, resolver: resolver, versions: versions, log: log}
}

// CreateInput describes a new document.
type CreateInput struct {
	OwnerID    snowflake.ID
	Kind       models.DocumentKind
	ClientID   snowflake.ID
	TemplateID snowflake.ID
	Currency   string
	Subject    string
	Notes      string
	ValidUntil *time.Time
	Items      []versioning.ItemPatch
}

// Create allocates a number and persists the document atomically: either the
// counter bump, the number and the document all commit, or none do. A number
// collision rolls the transaction back and retries with a fresh sequence;
// exhausting the attempts fails with numbering.ErrConflict.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Document, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, "id = ?", in.OwnerID).Error; err != nil {
		return nil, translateNotFound(err, "account")
	}
	var client models.Client
	if err := s.db.WithContext(ctx).First(&client, "id = ?", in.ClientID).Error; err != nil {
		return nil, translateNotFound(err, "client")
	}
	if client.OwnerID != in.OwnerID {
		return nil, ErrAccessDenied
	}

	prefixOverride := ""
	if v, ok := account.NumberPrefixes[string(in.Kind)]; ok {
		if str, ok := v.(string); ok {
			prefixOverride = str
		}
	}
	currency := in.Currency
	if currency == "" {
		currency = "EUR"
	}

	var doc *models.Document
	var lastErr error
	for attempt := 1; attempt <= numbering.MaxAttempts; attempt++ {
		doc = nil
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, err := s.allocator.Allocate(ctx, tx, in.OwnerID, in.Kind, time.Now(), prefixOverride)
			if err != nil {
				return err
			}
			d := &models.Document{
				ID:             s.ids.Generate(),
				DocumentNumber: number,
				Kind:           in.Kind,
				OwnerID:        in.OwnerID,
				Status:         models.StatusDraft,
				Version:        1,
				Currency:       currency,
				ClientID:       client.ID,
				Client:         client.Info(),
				TemplateID:     in.TemplateID,
				Subject:        in.Subject,
				Notes:          in.Notes,
				ShareToken:     uuid.NewString(),
				ValidUntil:     in.ValidUntil,
			}
			if err := tx.Omit(clause.Associations).Create(d).Error; err != nil {
				return err
			}
			if _, err := s.versions.ApplyUpdate(ctx, tx, d, versioning.Patch{Items: in.Items}, false); err != nil {
				return err
			}
			doc = d
			return nil
		})
		if err == nil {
			s.log.Info().Str("number", doc.DocumentNumber).Str("kind", string(in.Kind)).Msg("document created")
			return doc, nil
		}
		lastErr = err
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		s.log.Warn().Int("attempt", attempt).Msg("document number collision, retrying")
	}
	return nil, fmt.Errorf("%w: %v", numbering.ErrConflict, lastErr)
}

// Revise applies a patch to a document. Manual edits are only legal while the
// document is still a draft; the status machine is the authority on that.
// When requestsVersioning is set the prior state is preserved as a snapshot
// and the version bumps by one, atomically with the patch.
func (s *Service) Revise(ctx context.Context, ownerID, docID snowflake.ID, patch versioning.Patch, requestsVersioning bool) (*models.Document, error) {
	var doc *models.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.lockDocument(ctx, tx, docID)
		if err != nil {
			return err
		}
		if d.OwnerID != ownerID {
			return ErrAccessDenied
		}
		if _, _, err := Apply(d.Kind, d.Status, TriggerEdit); err != nil {
			return err
		}
		if _, err := s.versions.ApplyUpdate(ctx, tx, d, patch, requestsVersioning); err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// TransitionMeta carries the history payload for the transition's effects.
type TransitionMeta struct {
	Recipient  string
	Outcome    string // email outcome, defaults to "sent"
	Detail     string
	RemoteAddr string
	UserAgent  string
}

// Transition validates and applies a lifecycle trigger, then executes the
// effects the machine returned (history appends). Illegal transitions leave
// the document and its history untouched.
func (s *Service) Transition(ctx context.Context, docID snowflake.ID, trigger Trigger, meta TransitionMeta) (*models.Document, []Effect, error) {
	var doc *models.Document
	var effects []Effect
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.lockDocument(ctx, tx, docID)
		if err != nil {
			return err
		}
		next, fx, err := Apply(d.Kind, d.Status, trigger)
		if err != nil {
			return err
		}
		d.Status = next
		if trigger == TriggerSend && d.IssuedAt == nil {
			now := time.Now()
			d.IssuedAt = &now
		}
		if err := tx.Omit(clause.Associations).Save(d).Error; err != nil {
			return err
		}
		if err := s.runEffects(ctx, tx, d, fx, meta); err != nil {
			return err
		}
		doc = d
		effects = fx
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info().Str("number", doc.DocumentNumber).Str("trigger", string(trigger)).Str("status", string(doc.Status)).Msg("document transitioned")
	return doc, effects, nil
}

func (s *Service) runEffects(ctx context.Context, tx *gorm.DB, doc *models.Document, effects []Effect, meta TransitionMeta) error {
	for _, effect := range effects {
		switch effect {
		case EffectRecordEmail:
			outcome := meta.Outcome
			if outcome == "" {
				outcome = "sent"
			}
			recipient := meta.Recipient
			if recipient == "" {
				recipient = doc.Client.Email
			}
			event := models.EmailEvent{ID: s.ids.Generate(), DocumentID: doc.ID, Recipient: recipient, Outcome: outcome, Detail: meta.Detail}
			if err := tx.WithContext(ctx).Create(&event).Error; err != nil {
				return fmt.Errorf("append email history: %w", err)
			}
		case EffectRecordView:
			event := models.ViewEvent{ID: s.ids.Generate(), DocumentID: doc.ID, RemoteAddr: meta.RemoteAddr, UserAgent: meta.UserAgent}
			if err := tx.WithContext(ctx).Create(&event).Error; err != nil {
				return fmt.Errorf("append view history: %w", err)
			}
		}
	}
	return nil
}

// RecordEmailFailure appends a failed delivery attempt to the email history
// without touching document status.
func (s *Service) RecordEmailFailure(ctx context.Context, docID snowflake.ID, recipient, detail string) error {
	event := models.EmailEvent{ID: s.ids.Generate(), DocumentID: docID, Recipient: recipient, Outcome: "failed", Detail: detail}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("append email history: %w", err)
	}
	return nil
}

// RenderForOutput resolves the document's template and renders the artifact.
// Pure aside from the two reads; retries and deadlines belong to the caller.
func (s *Service) RenderForOutput(ctx context.Context, requesterID, docID snowflake.ID) (*render.Node, []render.Warning, error) {
	doc, err := s.Get(ctx, requesterID, docID)
	if err != nil {
		return nil, nil, err
	}
	return s.renderDocument(ctx, doc)
}

func (s *Service) renderDocument(ctx context.Context, doc *models.Document) (*render.Node, []render.Warning, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, "id = ?", doc.OwnerID).Error; err != nil {
		return nil, nil, translateNotFound(err, "account")
	}
	// The owner picked this template for the document; resolve with the
	// owner's identity so shared recipients can render private templates.
	resolved, err := s.resolver.Resolve(ctx, doc.TemplateID, doc.OwnerID)
	if err != nil {
		return nil, nil, err
	}
	artifact, warnings, err := render.Render(render.Input{
		Company: render.Company{
			Name:       account.CompanyName,
			Address:    account.Address,
			PostalCode: account.PostalCode,
			City:       account.City,
			Country:    account.Country,
			VATNumber:  account.VATNumber,
			BrandColor: account.BrandColor,
			BrandFont:  account.BrandFont,
		},
		Document: doc,
		Template: resolved,
	})
	if err != nil {
		return nil, nil, err
	}
	for _, w := range warnings {
		s.log.Warn().Str("number", doc.DocumentNumber).Str("code", w.Code).
			Stringer("computed", w.Computed).Stringer("persisted", w.Persisted).Msg("render warning")
	}
	return artifact, warnings, nil
}

// Get loads a document with its items for its owner.
func (s *Service) Get(ctx context.Context, requesterID, docID snowflake.ID) (*models.Document, error) {
	doc, err := s.load(ctx, s.db, "id = ?", docID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != requesterID {
		return nil, ErrAccessDenied
	}
	return doc, nil
}

// GetByToken loads a document through its public share token.
func (s *Service) GetByToken(ctx context.Context, token string) (*models.Document, error) {
	return s.load(ctx, s.db, "share_token = ?", token)
}

// RenderByToken renders a shared document for its recipient.
func (s *Service) RenderByToken(ctx context.Context, token string) (*models.Document, *render.Node, []render.Warning, error) {
	doc, err := s.GetByToken(ctx, token)
	if err != nil {
		return nil, nil, nil, err
	}
	artifact, warnings, err := s.renderDocument(ctx, doc)
	if err != nil {
		return nil, nil, nil, err
	}
	return doc, artifact, warnings, nil
}

// ExpireDue applies the expiry trigger to every sent or viewed document whose
// validity elapsed before now. Returns the number of documents expired.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	var due []models.Document
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.DocumentStatus{models.StatusSent, models.StatusViewed}).
		Where("valid_until IS NOT NULL AND valid_until < ?", now).
		Find(&due).Error
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, doc := range due {
		if _, _, err := s.Transition(ctx, doc.ID, TriggerExpire, TransitionMeta{}); err != nil {
			// A concurrent transition may have beaten the sweep; skip it.
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, query string, arg any) (*models.Document, error) {
	var doc models.Document
	err := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		First(&doc, query, arg).Error
	if err != nil {
		return nil, translateNotFound(err, "document")
	}
	return &doc, nil
}

// lockDocument loads the document for update inside tx. Postgres takes a row
// lock; sqlite serializes writers on its own.
func (s *Service) lockDocument(ctx context.Context, tx *gorm.DB, docID snowflake.ID) (*models.Document, error) {
	if tx.Dialector.Name() == "postgres" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "documents"}})
	}
	return s.load(ctx, tx, "id = ?", docID)
}

func translateNotFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}
