// Package validation collects per-field request violations for the JSON
// error surface.
package validation

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Violations maps a field name to the rule it broke.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Required flags blank strings.
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

// Positive flags amounts that must be strictly greater than zero, such as
// line item quantities.
func Positive(field string, val decimal.Decimal, v Violations) {
	if !val.IsPositive() {
		v[field] = "must_be_positive"
	}
}

// NonNegative flags amounts that may be zero but never below it.
func NonNegative(field string, val decimal.Decimal, v Violations) {
	if val.IsNegative() {
		v[field] = "must_not_be_negative"
	}
}

var one = decimal.NewFromInt(1)

// FractionalRate flags rates outside [0, 1]. Discounts are fractions of the
// line amount; 1 makes the line free, anything past that is a data error.
func FractionalRate(field string, val decimal.Decimal, v Violations) {
	if val.IsNegative() || val.GreaterThan(one) {
		v[field] = "out_of_range"
	}
}
