package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quotient-app/quotient/internal/models"
	"github.com/quotient-app/quotient/internal/templates"
	"github.com/shopspring/decimal"
)

// Company carries the owner identity and branding merged into the artifact.
type Company struct {
	Name       string
	Address    string
	PostalCode string
	City       string
	Country    string
	VATNumber  string
	BrandColor string
	BrandFont  string
}

// Input is everything Render reads. Items must already be in document order.
type Input struct {
	Company  Company
	Document *models.Document
	Template *templates.Resolved
}

// Warning is a non-fatal render finding surfaced to the caller.
type Warning struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Computed  decimal.Decimal `json:"computed"`
	Persisted decimal.Decimal `json:"persisted"`
}

const WarnTotalsMismatch = "totals_mismatch"

// Section content payloads, keyed by the section type tag.
type headerContent struct {
	Title string `json:"title"`
}

type textContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type signatureContent struct {
	Label string `json:"label"`
}

type footerContent struct {
	Text string `json:"text"`
}

// Render merges the document with the resolved template into an artifact
// tree. Template settings win for layout, document data wins for content, and
// the output depends on nothing but the inputs. A persisted totals aggregate
// that disagrees with the recomputed line totals produces a TotalsMismatch
// warning; the render still returns a result.
func Render(in Input) (*Node, []Warning, error) {
	if in.Document == nil || in.Template == nil {
		return nil, nil, fmt.Errorf("render: document and template are required")
	}
	doc := in.Document

	root := El("document").
		Attr("kind", string(doc.Kind)).
		Attr("number", doc.DocumentNumber).
		Attr("currency", doc.Currency)
	applyPage(root, in)

	var warnings []Warning
	computed := ComputeTotals(doc.Items, doc.Currency)
	if !totalsAgree(computed.Total, doc.Totals.Total, doc.Currency) {
		warnings = append(warnings, Warning{
			Code:      WarnTotalsMismatch,
			Message:   "persisted totals diverge from recomputed line totals",
			Computed:  computed.Total,
			Persisted: doc.Totals.Total,
		})
	}

	for _, section := range in.Template.Sections {
		node, err := renderSection(section, in, computed)
		if err != nil {
			return nil, warnings, err
		}
		root.Append(node)
	}
	return root, warnings, nil
}

// applyPage merges page settings: template values take precedence, company
// branding fills the gaps.
func applyPage(root *Node, in Input) {
	page := in.Template.Page
	accent := page.AccentColor
	if accent == "" {
		accent = in.Company.BrandColor
	}
	font := page.FontFamily
	if font == "" {
		font = in.Company.BrandFont
	}
	root.Attr("page-size", page.PageSize).
		Attr("orientation", page.Orientation).
		Attr("margins", fmt.Sprintf("%d %d %d %d", page.MarginTop, page.MarginRight, page.MarginBottom, page.MarginLeft)).
		Attr("accent-color", accent).
		Attr("font-family", font)
}

func renderSection(section models.TemplateSection, in Input, computed models.Totals) (*Node, error) {
	switch section.Type {
	case models.SectionHeader:
		return renderHeader(section, in)
	case models.SectionClient:
		return renderClient(in.Document.Client), nil
	case models.SectionItems:
		return renderItems(in.Document), nil
	case models.SectionTotals:
		return renderTotals(computed, in.Document.Currency), nil
	case models.SectionText:
		return renderText(section)
	case models.SectionSignature:
		return renderSignature(section, in)
	case models.SectionFooter:
		return renderFooter(section, in)
	default:
		// Unknown tags render as nothing rather than failing the document.
		return nil, nil
	}
}

func renderHeader(section models.TemplateSection, in Input) (*Node, error) {
	var content headerContent
	if err := decodeContent(section.Content, &content); err != nil {
		return nil, err
	}
	title := content.Title
	if title == "" {
		title = strings.ToUpper(string(in.Document.Kind))
	}
	header := El("header").Append(
		Text("title", title),
		Text("number", in.Document.DocumentNumber),
	)
	if in.Document.IssuedAt != nil {
		header.Append(Text("issued", in.Document.IssuedAt.Format("2006-01-02")))
	}
	if in.Document.ValidUntil != nil {
		header.Append(Text("valid-until", in.Document.ValidUntil.Format("2006-01-02")))
	}
	company := El("company").Append(
		textOrNil("name", in.Company.Name),
		textOrNil("address", in.Company.Address),
		textOrNil("locality", joinNonEmpty(" ", in.Company.PostalCode, in.Company.City)),
		textOrNil("country", in.Company.Country),
		textOrNil("vat", in.Company.VATNumber),
	)
	header.Append(company)
	return header, nil
}

func renderClient(c models.ClientInfo) *Node {
	return El("client").Append(
		textOrNil("name", c.Name),
		textOrNil("email", c.Email),
		textOrNil("address", c.Address),
		textOrNil("locality", joinNonEmpty(" ", c.PostalCode, c.City)),
		textOrNil("country", c.Country),
		textOrNil("vat", c.VATNumber),
	)
}

func renderItems(doc *models.Document) *Node {
	table := El("items")
	for _, it := range doc.Items {
		row := El("row").Attr("position", fmt.Sprintf("%d", it.Position)).Append(
			Text("description", it.Description),
			Text("quantity", it.Quantity.String()),
			Text("unit-price", amount(it.UnitPrice, doc.Currency)),
		)
		if !it.Discount.IsZero() {
			row.Append(Text("discount", it.Discount.Mul(decimal.NewFromInt(100)).String()+"%"))
		}
		if !it.Tax.IsZero() {
			row.Append(Text("tax", amount(it.Tax, doc.Currency)))
		}
		row.Append(Text("total", amount(LineTotal(it, doc.Currency), doc.Currency)))
		table.Append(row)
	}
	return table
}

func renderTotals(t models.Totals, currency string) *Node {
	return El("totals").Append(
		Text("subtotal", amount(t.Subtotal, currency)),
		Text("discount", amount(t.Discount, currency)),
		Text("tax", amount(t.Tax, currency)),
		Text("total", amount(t.Total, currency)),
	)
}

func renderText(section models.TemplateSection) (*Node, error) {
	var content textContent
	if err := decodeContent(section.Content, &content); err != nil {
		return nil, err
	}
	return El("text").Append(
		textOrNil("title", content.Title),
		textOrNil("body", content.Body),
	), nil
}

func renderSignature(section models.TemplateSection, in Input) (*Node, error) {
	var content signatureContent
	if err := decodeContent(section.Content, &content); err != nil {
		return nil, err
	}
	label := content.Label
	if label == "" {
		label = "Signature"
	}
	return El("signature").Append(
		Text("label", label),
		textOrNil("signatory", in.Document.Client.Name),
	), nil
}

func renderFooter(section models.TemplateSection, in Input) (*Node, error) {
	var content footerContent
	if err := decodeContent(section.Content, &content); err != nil {
		return nil, err
	}
	return El("footer").Append(
		textOrNil("text", content.Text),
		textOrNil("company", in.Company.Name),
	), nil
}

func decodeContent(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode section content: %w", err)
	}
	return nil
}

func amount(d decimal.Decimal, currency string) string {
	return d.StringFixed(MinorUnit(currency))
}

func textOrNil(tag, text string) *Node {
	if text == "" {
		return nil
	}
	return Text(tag, text)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
