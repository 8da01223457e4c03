package handlers

import (
	"errors"
	"net/http"

	"github.com/quotient-app/quotient/internal/httpx"
	"github.com/quotient-app/quotient/internal/lifecycle"
	"github.com/quotient-app/quotient/internal/numbering"
	"github.com/quotient-app/quotient/internal/templates"
)

// writeServiceError maps domain errors onto the JSON error surface. Anything
// unrecognized is a persistence or programming failure and surfaces as 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, templates.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	case errors.Is(err, lifecycle.ErrAccessDenied), errors.Is(err, templates.ErrAccessDenied):
		httpx.JSONError(w, http.StatusForbidden, "access_denied", nil)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		httpx.JSONError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, numbering.ErrConflict):
		httpx.JSONError(w, http.StatusConflict, "numbering_conflict", nil)
	case errors.Is(err, templates.ErrDuplicatePosition):
		httpx.JSONError(w, http.StatusUnprocessableEntity, "duplicate_section_position", nil)
	default:
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}
