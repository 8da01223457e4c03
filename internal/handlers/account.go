package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/quotient-app/quotient/internal/auth"
	"github.com/quotient-app/quotient/internal/httpx"
	"github.com/quotient-app/quotient/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AccountHandler struct {
	DB *gorm.DB
}

func NewAccountHandler(db *gorm.DB) *AccountHandler {
	return &AccountHandler{DB: db}
}

// Profile: GET /account
func (h *AccountHandler) Profile(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	var acct models.Account
	if err := h.DB.First(&acct, "id = ?", accountID).Error; err != nil {
		httpx.JSONError(w, http.StatusNotFound, "account_not_found", nil)
		return
	}
	acct.PasswordHash = ""
	httpx.JSON(w, http.StatusOK, acct)
}

// Update: POST /account updates company identity, branding and numbering
// prefixes. Credentials are not touched here.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	var req struct {
		CompanyName    *string           `json:"company_name"`
		Address        *string           `json:"address"`
		PostalCode     *string           `json:"postal_code"`
		City           *string           `json:"city"`
		Country        *string           `json:"country"`
		VATNumber      *string           `json:"vat_number"`
		BrandColor     *string           `json:"brand_color"`
		BrandFont      *string           `json:"brand_font"`
		NumberPrefixes map[string]string `json:"number_prefixes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	var acct models.Account
	if err := h.DB.First(&acct, "id = ?", accountID).Error; err != nil {
		httpx.JSONError(w, http.StatusNotFound, "account_not_found", nil)
		return
	}
	setIf(&acct.CompanyName, req.CompanyName)
	setIf(&acct.Address, req.Address)
	setIf(&acct.PostalCode, req.PostalCode)
	setIf(&acct.City, req.City)
	setIf(&acct.Country, req.Country)
	setIf(&acct.VATNumber, req.VATNumber)
	setIf(&acct.BrandColor, req.BrandColor)
	setIf(&acct.BrandFont, req.BrandFont)
	if req.NumberPrefixes != nil {
		prefixes := datatypes.JSONMap{}
		for kind, prefix := range req.NumberPrefixes {
			prefixes[kind] = prefix
		}
		acct.NumberPrefixes = prefixes
	}
	if err := h.DB.Save(&acct).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_update_account", nil)
		return
	}
	acct.PasswordHash = ""
	httpx.JSON(w, http.StatusOK, acct)
}

func setIf(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
