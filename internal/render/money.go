package render

import (
	"strings"

	"github.com/quotient-app/quotient/internal/models"
	"github.com/shopspring/decimal"
)

// MinorUnit returns the number of decimal places for a currency.
func MinorUnit(currency string) int32 {
	switch strings.ToUpper(currency) {
	case "JPY", "KRW", "VND":
		return 0
	case "BHD", "KWD", "OMR", "TND":
		return 3
	default:
		return 2
	}
}

// round applies the fixed rounding policy: half up to the currency's minor
// unit. Amounts in this domain are non-negative, where decimal.Round (half
// away from zero) and half-up coincide.
func round(d decimal.Decimal, currency string) decimal.Decimal {
	return d.Round(MinorUnit(currency))
}

// LineTotal computes quantity x unitPrice x (1 - discount) + tax, rounded.
func LineTotal(item models.LineItem, currency string) decimal.Decimal {
	one := decimal.NewFromInt(1)
	gross := item.Quantity.Mul(item.UnitPrice)
	return round(gross.Mul(one.Sub(item.Discount)).Add(item.Tax), currency)
}

// ComputeTotals derives the totals aggregate as a pure function of the line
// items. Total is the sum of the rounded per-line totals, which is the figure
// the persisted aggregate is checked against at render time.
func ComputeTotals(items []models.LineItem, currency string) models.Totals {
	subtotal := decimal.Zero
	discount := decimal.Zero
	tax := decimal.Zero
	total := decimal.Zero
	for _, it := range items {
		gross := it.Quantity.Mul(it.UnitPrice)
		subtotal = subtotal.Add(gross)
		discount = discount.Add(gross.Mul(it.Discount))
		tax = tax.Add(it.Tax)
		total = total.Add(LineTotal(it, currency))
	}
	return models.Totals{
		Subtotal: round(subtotal, currency),
		Discount: round(discount, currency),
		Tax:      round(tax, currency),
		Total:    total,
	}
}

// totalsAgree reports whether the persisted total matches the computed one
// within one minor unit of the currency.
func totalsAgree(computed, persisted decimal.Decimal, currency string) bool {
	tolerance := decimal.New(1, -MinorUnit(currency))
	return computed.Sub(persisted).Abs().LessThanOrEqual(tolerance)
}
