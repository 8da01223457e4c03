package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/quotient-app/quotient/internal/auth"
	"github.com/quotient-app/quotient/internal/httpx"
	"github.com/quotient-app/quotient/internal/models"
	"github.com/quotient-app/quotient/internal/validation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TemplateHandler struct {
	DB  *gorm.DB
	IDs *snowflake.Node
}

func NewTemplateHandler(db *gorm.DB, ids *snowflake.Node) *TemplateHandler {
	return &TemplateHandler{DB: db, IDs: ids}
}

type sectionReq struct {
	Type     string          `json:"type"`
	Position int             `json:"position"`
	Content  json.RawMessage `json:"content"`
	Settings json.RawMessage `json:"settings"`
}

type templateReq struct {
	Name         string       `json:"name"`
	IsPublic     bool         `json:"is_public"`
	PageSize     string       `json:"page_size"`
	Orientation  string       `json:"orientation"`
	MarginTop    int          `json:"margin_top"`
	MarginRight  int          `json:"margin_right"`
	MarginBottom int          `json:"margin_bottom"`
	MarginLeft   int          `json:"margin_left"`
	AccentColor  string       `json:"accent_color"`
	FontFamily   string       `json:"font_family"`
	Sections     []sectionReq `json:"sections"`
}

func (req *templateReq) validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("name", req.Name, v)
	if req.Orientation != "" && req.Orientation != "portrait" && req.Orientation != "landscape" {
		v["orientation"] = "must be portrait or landscape"
	}
	seen := map[int]bool{}
	for _, s := range req.Sections {
		switch models.SectionType(s.Type) {
		case models.SectionHeader, models.SectionClient, models.SectionItems,
			models.SectionTotals, models.SectionText, models.SectionSignature, models.SectionFooter:
		default:
			v["sections"] = "unknown section type: " + s.Type
		}
		if seen[s.Position] {
			v["sections"] = "duplicate position"
		}
		seen[s.Position] = true
	}
	return v
}

// List: GET /templates returns the caller's templates plus public ones.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	var tpls []models.Template
	err := h.DB.Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Where("owner_id = ? OR is_public = ?", ownerID, true).
		Order("id desc").Find(&tpls).Error
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_templates", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": tpls})
}

// Create: POST /templates
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	var req templateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if v := req.validate(); !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	tpl := h.apply(&models.Template{ID: h.IDs.Generate(), OwnerID: ownerID}, &req)
	if err := h.DB.Create(tpl).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_create_template", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, tpl)
}

// Get: GET /templates/get?id=...
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	tpl, ok := h.fetch(w, id, ownerID, false)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, tpl)
}

// Update: POST /templates/update?id=... replaces settings and sections.
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req templateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if v := req.validate(); !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	tpl, ok := h.fetch(w, id, ownerID, true)
	if !ok {
		return
	}
	updated := h.apply(tpl, &req)
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("template_id = ?", tpl.ID).Delete(&models.TemplateSection{}).Error; err != nil {
			return err
		}
		return tx.Save(updated).Error
	})
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_update_template", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

// Delete: POST /templates/delete?id=...
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.AccountIDFromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	tpl, ok := h.fetch(w, id, ownerID, true)
	if !ok {
		return
	}
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("template_id = ?", tpl.ID).Delete(&models.TemplateSection{}).Error; err != nil {
			return err
		}
		return tx.Delete(tpl).Error
	})
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_delete_template", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// fetch loads a template and enforces visibility. mustOwn additionally
// rejects public templates the caller does not own.
func (h *TemplateHandler) fetch(w http.ResponseWriter, id, ownerID snowflake.ID, mustOwn bool) (*models.Template, bool) {
	var tpl models.Template
	err := h.DB.Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		First(&tpl, "id = ?", id).Error
	if err != nil {
		httpx.JSONError(w, http.StatusNotFound, "template_not_found", nil)
		return nil, false
	}
	if tpl.OwnerID != ownerID && (mustOwn || !tpl.IsPublic) {
		httpx.JSONError(w, http.StatusForbidden, "access_denied", nil)
		return nil, false
	}
	return &tpl, true
}

func (h *TemplateHandler) apply(tpl *models.Template, req *templateReq) *models.Template {
	tpl.Name = req.Name
	tpl.IsPublic = req.IsPublic
	if req.PageSize != "" {
		tpl.PageSize = req.PageSize
	}
	if req.Orientation != "" {
		tpl.Orientation = req.Orientation
	}
	if req.MarginTop > 0 {
		tpl.MarginTop = req.MarginTop
	}
	if req.MarginRight > 0 {
		tpl.MarginRight = req.MarginRight
	}
	if req.MarginBottom > 0 {
		tpl.MarginBottom = req.MarginBottom
	}
	if req.MarginLeft > 0 {
		tpl.MarginLeft = req.MarginLeft
	}
	if req.AccentColor != "" {
		tpl.AccentColor = req.AccentColor
	}
	if req.FontFamily != "" {
		tpl.FontFamily = req.FontFamily
	}
	sections := make([]models.TemplateSection, 0, len(req.Sections))
	for _, s := range req.Sections {
		sections = append(sections, models.TemplateSection{
			ID:         h.IDs.Generate(),
			TemplateID: tpl.ID,
			Type:       models.SectionType(s.Type),
			Position:   s.Position,
			Content:    datatypes.JSON(s.Content),
			Settings:   datatypes.JSON(s.Settings),
		})
	}
	tpl.Sections = sections
	return tpl
}
