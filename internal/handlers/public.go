package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/quotient-app/quotient/internal/delivery"
	"github.com/quotient-app/quotient/internal/httpx"
	"github.com/quotient-app/quotient/internal/lifecycle"
	"github.com/rs/zerolog"
)

// PublicHandler serves the unauthenticated share-token surface: recipients
// view documents and record their decision without an account.
type PublicHandler struct {
	Svc *lifecycle.Service
	Log zerolog.Logger
}

func NewPublicHandler(svc *lifecycle.Service, log zerolog.Logger) *PublicHandler {
	return &PublicHandler{Svc: svc, Log: log}
}

// View: GET /p/view?token=... renders the document as HTML and records the
// visit. A repeat visit after the first one is not a state change.
func (h *PublicHandler) View(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		httpx.JSONError(w, http.StatusBadRequest, "missing_token", nil)
		return
	}
	doc, artifact, warnings, err := h.Svc.RenderByToken(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	meta := lifecycle.TransitionMeta{RemoteAddr: remoteAddr(r), UserAgent: r.UserAgent()}
	if _, _, err := h.Svc.Transition(r.Context(), doc.ID, lifecycle.TriggerView, meta); err != nil {
		if !errors.Is(err, lifecycle.ErrInvalidTransition) {
			h.Log.Error().Err(err).Str("number", doc.DocumentNumber).Msg("failed to record view")
		}
	}
	for _, warn := range warnings {
		h.Log.Warn().Str("number", doc.DocumentNumber).Str("code", warn.Code).Msg(warn.Message)
	}
	page, err := delivery.EncodeHTML(artifact)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "render_failed", nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page))
}

// Decision: POST /p/decision with {"token": "...", "decision": "approve"}.
func (h *PublicHandler) Decision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Decision string `json:"decision"`
		Comment  string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	var trigger lifecycle.Trigger
	switch req.Decision {
	case "approve":
		trigger = lifecycle.TriggerApprove
	case "reject":
		trigger = lifecycle.TriggerReject
	default:
		httpx.JSONError(w, http.StatusBadRequest, "invalid_decision", nil)
		return
	}
	doc, err := h.Svc.GetByToken(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	meta := lifecycle.TransitionMeta{Detail: req.Comment, RemoteAddr: remoteAddr(r), UserAgent: r.UserAgent()}
	updated, _, err := h.Svc.Transition(r.Context(), doc.ID, trigger, meta)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"number": updated.DocumentNumber, "status": updated.Status})
}

func remoteAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}
