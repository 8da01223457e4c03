package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/quotient-app/quotient/internal/auth"
	"github.com/quotient-app/quotient/internal/httpx"
	"github.com/quotient-app/quotient/internal/models"
	"github.com/quotient-app/quotient/internal/validation"
	"gorm.io/gorm"
)

type ClientHandler struct {
	DB  *gorm.DB
	IDs *snowflake.Node
}

func NewClientHandler(db *gorm.DB, ids *snowflake.Node) *ClientHandler {
	return &ClientHandler{DB: db, IDs: ids}
}

type clientReq struct {
	Name       string `json:"name"`
	Contact    string `json:"contact"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	Country    string `json:"country"`
	VATNumber  string `json:"vat_number"`
	Notes      string `json:"notes"`
}

func (req *clientReq) assign(c *models.Client) {
	c.Name = req.Name
	c.Contact = req.Contact
	c.Email = req.Email
	c.Phone = req.Phone
	c.Address = req.Address
	c.PostalCode = req.PostalCode
	c.City = req.City
	c.Country = req.Country
	c.VATNumber = req.VATNumber
	c.Notes = req.Notes
}

// List: GET /clients with optional ?q= name search.
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	dbq := h.DB.Where("owner_id = ?", ownerID)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		dbq = dbq.Where("name LIKE ?", "%"+q+"%")
	}
	var clients []models.Client
	if err := dbq.Order("name asc").Find(&clients).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_clients", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": clients})
}

// Create: POST /clients
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	var req clientReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("name", req.Name, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	client := models.Client{ID: h.IDs.Generate(), OwnerID: ownerID}
	req.assign(&client)
	if err := h.DB.Create(&client).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_create_client", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, client)
}

// Get: GET /clients/get?id=...
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	client, ok := h.fetch(w, id, ownerID)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

// Update: POST /clients/update?id=...
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req clientReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("name", req.Name, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	client, ok := h.fetch(w, id, ownerID)
	if !ok {
		return
	}
	req.assign(client)
	if err := h.DB.Save(client).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_update_client", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

func (h *ClientHandler) fetch(w http.ResponseWriter, id, ownerID snowflake.ID) (*models.Client, bool) {
	var client models.Client
	if err := h.DB.First(&client, "id = ?", id).Error; err != nil {
		httpx.JSONError(w, http.StatusNotFound, "client_not_found", nil)
		return nil, false
	}
	if client.OwnerID != ownerID {
		httpx.JSONError(w, http.StatusForbidden, "access_denied", nil)
		return nil, false
	}
	return &client, true
}
