package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quotient-app/quotient/internal/auth"
	"github.com/quotient-app/quotient/internal/delivery"
	"github.com/quotient-app/quotient/internal/httpx"
	"github.com/quotient-app/quotient/internal/lifecycle"
	"github.com/quotient-app/quotient/internal/models"
	"github.com/quotient-app/quotient/internal/validation"
	"github.com/quotient-app/quotient/internal/versioning"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Converter is the fixed-layout conversion collaborator.
type Converter interface {
	Convert(ctx context.Context, htmlPage string, landscape bool) ([]byte, error)
}

type DocumentHandler struct {
	DB   *gorm.DB
	Svc  *lifecycle.Service
	PDF  Converter
	Mail delivery.Mailer
	Log  zerolog.Logger
}

func NewDocumentHandler(db *gorm.DB, svc *lifecycle.Service, pdf Converter, mail delivery.Mailer, log zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{DB: db, Svc: svc, PDF: pdf, Mail: mail, Log: log}
}

type itemReq struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
}

func (ir itemReq) patch() versioning.ItemPatch {
	return versioning.ItemPatch{
		Description: ir.Description,
		Quantity:    ir.Quantity,
		UnitPrice:   ir.UnitPrice,
		Discount:    ir.Discount,
		Tax:         ir.Tax,
	}
}

func validateItems(items []itemReq, v validation.Violations) {
	for i, it := range items {
		prefix := fmt.Sprintf("items[%d].", i)
		validation.Required(prefix+"description", it.Description, v)
		validation.Positive(prefix+"quantity", it.Quantity, v)
		validation.NonNegative(prefix+"unit_price", it.UnitPrice, v)
		validation.FractionalRate(prefix+"discount", it.Discount, v)
		validation.NonNegative(prefix+"tax", it.Tax, v)
	}
}

// List: GET /documents
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			offset = (n - 1) * limit
		}
	}
	filters := func(db *gorm.DB) *gorm.DB {
		db = db.Where("owner_id = ?", ownerID)
		if kind := strings.TrimSpace(r.URL.Query().Get("kind")); kind != "" {
			db = db.Where("kind = ?", kind)
		}
		if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
			db = db.Where("status = ?", status)
		}
		return db
	}
	var total int64
	if err := filters(h.DB.Model(&models.Document{})).Count(&total).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_documents", nil)
		return
	}
	var docs []models.Document
	if err := filters(h.DB).Preload("Items").Order("id desc").Limit(limit).Offset(offset).Find(&docs).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_documents", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": docs, "total": total, "limit": limit, "offset": offset})
}

// Create: POST /documents
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	var req struct {
		Kind       string     `json:"kind"`
		ClientID   string     `json:"client_id"`
		TemplateID string     `json:"template_id"`
		Currency   string     `json:"currency"`
		Subject    string     `json:"subject"`
		Notes      string     `json:"notes"`
		ValidUntil *time.Time `json:"valid_until"`
		Items      []itemReq  `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("kind", req.Kind, v)
	validation.Required("client_id", req.ClientID, v)
	validation.Required("template_id", req.TemplateID, v)
	if len(req.Items) == 0 {
		v["items"] = "required"
	}
	validateItems(req.Items, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	clientID, err := snowflake.ParseString(req.ClientID)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_client_id", nil)
		return
	}
	templateID, err := snowflake.ParseString(req.TemplateID)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_template_id", nil)
		return
	}
	items := make([]versioning.ItemPatch, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, it.patch())
	}
	doc, err := h.Svc.Create(r.Context(), lifecycle.CreateInput{
		OwnerID:    ownerID,
		Kind:       models.DocumentKind(req.Kind),
		ClientID:   clientID,
		TemplateID: templateID,
		Currency:   req.Currency,
		Subject:    req.Subject,
		Notes:      req.Notes,
		ValidUntil: req.ValidUntil,
		Items:      items,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

// Get: GET /documents/get?id=...
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.Svc.Get(r.Context(), ownerID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

// Revise: POST /documents/revise?id=...
func (h *DocumentHandler) Revise(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Subject    *string    `json:"subject"`
		Notes      *string    `json:"notes"`
		Currency   *string    `json:"currency"`
		ValidUntil *time.Time `json:"valid_until"`
		Items      []itemReq  `json:"items"`
		Versioned  bool       `json:"versioned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	patch := versioning.Patch{Subject: req.Subject, Notes: req.Notes, Currency: req.Currency, ValidUntil: req.ValidUntil}
	if req.Items != nil {
		v := validation.Violations{}
		validateItems(req.Items, v)
		if !v.Empty() {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
			return
		}
		patch.Items = make([]versioning.ItemPatch, 0, len(req.Items))
		for _, it := range req.Items {
			patch.Items = append(patch.Items, it.patch())
		}
	}
	doc, err := h.Svc.Revise(r.Context(), ownerID, id, patch, req.Versioned)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

// Transition: POST /documents/transition?id=... with {"trigger": "pay"}
func (h *DocumentHandler) Transition(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Trigger string `json:"trigger"`
		Detail  string `json:"detail"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	trigger := lifecycle.Trigger(req.Trigger)
	switch trigger {
	case lifecycle.TriggerApprove, lifecycle.TriggerReject, lifecycle.TriggerExpire, lifecycle.TriggerPay:
	default:
		httpx.JSONError(w, http.StatusBadRequest, "invalid_trigger", nil)
		return
	}
	if _, err := h.Svc.Get(r.Context(), ownerID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	doc, _, err := h.Svc.Transition(r.Context(), id, trigger, lifecycle.TransitionMeta{Detail: req.Detail})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": doc.ID, "status": doc.Status})
}

// Render: GET /documents/render?id=... returns the artifact tree.
func (h *DocumentHandler) Render(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	artifact, warnings, err := h.Svc.RenderForOutput(r.Context(), ownerID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"artifact": artifact, "warnings": warnings})
}

// PDF: GET /documents/pdf?id=...
func (h *DocumentHandler) PDFExport(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.Svc.Get(r.Context(), ownerID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	data, err := h.exportPDF(r.Context(), ownerID, doc)
	if err != nil {
		h.Log.Error().Err(err).Str("number", doc.DocumentNumber).Msg("pdf export failed")
		httpx.JSONError(w, http.StatusBadGateway, "pdf_generation_failed", nil)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.DocumentNumber+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Send: POST /documents/send?id=... emails the PDF and transitions to sent.
func (h *DocumentHandler) Send(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Recipient string `json:"recipient"`
		Message   string `json:"message"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	doc, err := h.Svc.Get(r.Context(), ownerID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// Validate the transition before doing the expensive conversion.
	if _, _, err := lifecycle.Apply(doc.Kind, doc.Status, lifecycle.TriggerSend); err != nil {
		writeServiceError(w, err)
		return
	}
	recipient := req.Recipient
	if recipient == "" {
		recipient = doc.Client.Email
	}
	if recipient == "" {
		httpx.JSONError(w, http.StatusBadRequest, "no_recipient", nil)
		return
	}
	data, err := h.exportPDF(r.Context(), ownerID, doc)
	if err != nil {
		h.Log.Error().Err(err).Str("number", doc.DocumentNumber).Msg("pdf generation failed")
		httpx.JSONError(w, http.StatusBadGateway, "pdf_generation_failed", nil)
		return
	}
	subject := doc.Subject
	if subject == "" {
		subject = fmt.Sprintf("%s %s", strings.ToUpper(string(doc.Kind)[:1])+string(doc.Kind)[1:], doc.DocumentNumber)
	}
	msg := delivery.Message{To: recipient, Subject: subject, Body: req.Message, Attachment: data, AttachmentName: doc.DocumentNumber + ".pdf"}
	if err := h.Mail.Send(r.Context(), msg); err != nil {
		if recErr := h.Svc.RecordEmailFailure(r.Context(), doc.ID, recipient, err.Error()); recErr != nil {
			h.Log.Error().Err(recErr).Msg("failed to record email failure")
		}
		httpx.JSONError(w, http.StatusBadGateway, "mail_delivery_failed", nil)
		return
	}
	updated, _, err := h.Svc.Transition(r.Context(), doc.ID, lifecycle.TriggerSend, lifecycle.TransitionMeta{Recipient: recipient})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": updated.ID, "status": updated.Status, "recipient": recipient})
}

// History: GET /documents/history?id=...
func (h *DocumentHandler) History(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if _, err := h.Svc.Get(r.Context(), ownerID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	var emails []models.EmailEvent
	var views []models.ViewEvent
	if err := h.DB.Where("document_id = ?", id).Order("id asc").Find(&emails).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	if err := h.DB.Where("document_id = ?", id).Order("id asc").Find(&views).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"email_history": emails, "view_history": views})
}

// Versions: GET /documents/versions?id=...
func (h *DocumentHandler) Versions(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.Svc.Get(r.Context(), ownerID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	snaps, err := versioning.Snapshots(r.Context(), h.DB, id)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"version": doc.Version, "snapshots": snaps})
}

func (h *DocumentHandler) exportPDF(ctx context.Context, ownerID snowflake.ID, doc *models.Document) ([]byte, error) {
	artifact, _, err := h.Svc.RenderForOutput(ctx, ownerID, doc.ID)
	if err != nil {
		return nil, err
	}
	page, err := delivery.EncodeHTML(artifact)
	if err != nil {
		return nil, err
	}
	landscape := artifact.Attrs["orientation"] == "landscape"
	return h.PDF.Convert(ctx, page, landscape)
}

func parseID(w http.ResponseWriter, r *http.Request) (snowflake.ID, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("id"))
	if raw == "" {
		httpx.JSONError(w, http.StatusBadRequest, "missing_id", nil)
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return 0, false
	}
	return id, true
}
