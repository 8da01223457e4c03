// Package delivery converts rendered artifacts into deliverable bytes and
// moves them to recipients. Everything here sits behind the lifecycle
// engine's output boundary: artifacts in, PDFs and emails out.
package delivery

import (
	"fmt"
	"html"
	"strings"

	"github.com/quotient-app/quotient/internal/render"
)

const htmlShell = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>%s</title>
  <style>
    :root { --accent: %s; --font: %s; }
    * { box-sizing: border-box; }
    body { margin: 0; padding: 32px; font-family: var(--font), "Helvetica Neue", Arial, sans-serif; color: #111827; background: #ffffff; }
    .doc { max-width: 820px; margin: 0 auto; }
    .doc-header { display: flex; justify-content: space-between; border-bottom: 2px solid var(--accent); padding-bottom: 16px; margin-bottom: 24px; }
    .doc-header .title { font-size: 22px; font-weight: 600; color: var(--accent); }
    .doc-client, .doc-text, .doc-signature { margin-bottom: 24px; }
    table { width: 100%%; border-collapse: collapse; font-size: 14px; }
    th, td { padding: 10px; border-bottom: 1px solid #e5e7eb; text-align: left; }
    .doc-totals { margin-top: 12px; display: flex; flex-direction: column; align-items: flex-end; font-size: 15px; gap: 4px; }
    .doc-footer { border-top: 1px solid #e5e7eb; padding-top: 16px; margin-top: 24px; font-size: 12px; color: #6b7280; }
  </style>
</head>
<body>
  <div class="doc">
%s  </div>
</body>
</html>
`

// EncodeHTML serializes an artifact tree into a standalone HTML page suitable
// for fixed-layout conversion. The encoding itself stays deterministic; only
// the shell (styles, page title) is added around the artifact content.
func EncodeHTML(artifact *render.Node) (string, error) {
	if artifact == nil || artifact.Tag != "document" {
		return "", fmt.Errorf("encode html: expected a document artifact")
	}
	var body strings.Builder
	for _, child := range artifact.Children {
		encodeNode(&body, child, 2)
	}
	title := artifact.Attrs["number"]
	accent := attrOr(artifact, "accent-color", "#1f2937")
	font := attrOr(artifact, "font-family", "Helvetica")
	return fmt.Sprintf(htmlShell, html.EscapeString(title), html.EscapeString(accent), html.EscapeString(font), body.String()), nil
}

func encodeNode(b *strings.Builder, n *render.Node, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	switch n.Tag {
	case "items":
		b.WriteString(indent + "<table class=\"doc-items\">\n")
		b.WriteString(indent + "  <thead><tr><th>Description</th><th>Qty</th><th>Unit price</th><th>Discount</th><th>Tax</th><th>Total</th></tr></thead>\n")
		b.WriteString(indent + "  <tbody>\n")
		for _, row := range n.Children {
			encodeRow(b, row, depth+2)
		}
		b.WriteString(indent + "  </tbody>\n")
		b.WriteString(indent + "</table>\n")
	default:
		class := "doc-" + n.Tag
		if len(n.Children) == 0 {
			fmt.Fprintf(b, "%s<div class=%q>%s</div>\n", indent, class, html.EscapeString(n.Text))
			return
		}
		fmt.Fprintf(b, "%s<div class=%q>\n", indent, class)
		if n.Text != "" {
			fmt.Fprintf(b, "%s  <span>%s</span>\n", indent, html.EscapeString(n.Text))
		}
		for _, child := range n.Children {
			encodeNode(b, child, depth+1)
		}
		b.WriteString(indent + "</div>\n")
	}
}

// encodeRow writes one line item row with the column order the table header
// declares; absent cells render empty.
func encodeRow(b *strings.Builder, row *render.Node, depth int) {
	cells := map[string]string{}
	for _, c := range row.Children {
		cells[c.Tag] = c.Text
	}
	indent := strings.Repeat("  ", depth)
	b.WriteString(indent + "<tr>")
	for _, col := range []string{"description", "quantity", "unit-price", "discount", "tax", "total"} {
		fmt.Fprintf(b, "<td>%s</td>", html.EscapeString(cells[col]))
	}
	b.WriteString("</tr>\n")
}

func attrOr(n *render.Node, key, fallback string) string {
	if v := n.Attrs[key]; v != "" {
		return v
	}
	return fallback
}
