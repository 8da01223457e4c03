package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/quotient-app/quotient/internal/auth"
	"github.com/quotient-app/quotient/internal/httpx"
	"github.com/quotient-app/quotient/internal/models"
	"github.com/quotient-app/quotient/internal/validation"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB  *gorm.DB
	IDs *snowflake.Node
}

func NewAuthHandler(db *gorm.DB, ids *snowflake.Node) *AuthHandler {
	return &AuthHandler{DB: db, IDs: ids}
}

// Register: POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		CompanyName string `json:"company_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("email", req.Email, v)
	validation.Required("password", req.Password, v)
	if len(req.Password) > 0 && len(req.Password) < 8 {
		v["password"] = "too_short"
	}
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	account := models.Account{ID: h.IDs.Generate(), Email: req.Email, PasswordHash: hash, CompanyName: req.CompanyName}
	if err := h.DB.Create(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			httpx.JSONError(w, http.StatusConflict, "email_taken", nil)
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	auth.CreateSession(w, account.ID)
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": account.ID, "email": account.Email})
}

// Login: POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	var account models.Account
	if err := h.DB.First(&account, "email = ?", req.Email).Error; err != nil {
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials", nil)
		return
	}
	if !auth.CheckPassword(account.PasswordHash, req.Password) {
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials", nil)
		return
	}
	auth.CreateSession(w, account.ID)
	httpx.JSON(w, http.StatusOK, map[string]any{"id": account.ID, "email": account.Email})
}

// Logout: POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	auth.ClearSession(w)
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
