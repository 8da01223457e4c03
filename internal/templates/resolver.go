// Package templates resolves a template reference into its final render
// order: sections sorted by position plus the page-level settings.
package templates

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/quotient-app/quotient/internal/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("template not found")
	ErrAccessDenied      = errors.New("template access denied")
	ErrDuplicatePosition = errors.New("duplicate section position")
)

// PageSettings are the layout settings merged into a rendered document.
// Template values always win over document branding for layout.
type PageSettings struct {
	PageSize     string
	Orientation  string
	MarginTop    int
	MarginRight  int
	MarginBottom int
	MarginLeft   int
	AccentColor  string
	FontFamily   string
}

// Resolved is a template ready for rendering: sections in final order, page
// settings extracted.
type Resolved struct {
	ID       snowflake.ID
	Name     string
	Page     PageSettings
	Sections []models.TemplateSection
}

type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver { return &Resolver{db: db} }

// Resolve fetches the template and returns it in render order. A template is
// resolvable by its owner unconditionally and by anyone when public.
// Duplicate section positions are a data defect and are rejected rather than
// silently renumbered; gaps are fine.
func (r *Resolver) Resolve(ctx context.Context, templateID, requesterID snowflake.ID) (*Resolved, error) {
	var tpl models.Template
	err := r.db.WithContext(ctx).Preload("Sections").First(&tpl, "id = ?", templateID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tpl.OwnerID != requesterID && !tpl.IsPublic {
		return nil, ErrAccessDenied
	}
	return resolve(&tpl)
}

func resolve(tpl *models.Template) (*Resolved, error) {
	seen := make(map[int]bool, len(tpl.Sections))
	for _, s := range tpl.Sections {
		if seen[s.Position] {
			return nil, fmt.Errorf("%w: position %d in template %d", ErrDuplicatePosition, s.Position, tpl.ID)
		}
		seen[s.Position] = true
	}
	sections := make([]models.TemplateSection, len(tpl.Sections))
	copy(sections, tpl.Sections)
	// Stable keeps insertion order for equal positions; positions are unique
	// here but the rendering contract wants determinism regardless.
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Position < sections[j].Position })
	return &Resolved{
		ID:   tpl.ID,
		Name: tpl.Name,
		Page: PageSettings{
			PageSize:     tpl.PageSize,
			Orientation:  tpl.Orientation,
			MarginTop:    tpl.MarginTop,
			MarginRight:  tpl.MarginRight,
			MarginBottom: tpl.MarginBottom,
			MarginLeft:   tpl.MarginLeft,
			AccentColor:  tpl.AccentColor,
			FontFamily:   tpl.FontFamily,
		},
		Sections: sections,
	}, nil
}
