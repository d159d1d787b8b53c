package reconcile

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/billrecon/internal/currency"
	"github.com/zombor/billrecon/internal/extraction"
)

// DateLayouts are tried in order and the first that parses wins. Day-first
// numeric forms precede month-first ones.
var DateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	time.RFC3339,
	"2/1/2006",
	"1/2/2006",
	"2-1-2006",
	"1-2-2006",
	"2.1.2006",
	"2/1/06",
	"1/2/06",
	"2 Jan 2006",
	"2 January 2006",
	"2-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"January 2 2006",
}

// TimeLayouts are tried in order against the uppercased input.
var TimeLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
	"3:04 PM",
	"3:04PM",
}

const timeLayout = "15:04:05"

var placeholders = map[string]bool{
	"null":    true,
	"none":    true,
	"n/a":     true,
	"na":      true,
	"unknown": true,
	"-":       true,
}

var (
	// amountForm allows comma separators between digits, or single spaces
	// between groups of three.
	amountForm = regexp.MustCompile(`^-?\d+(,\d+)*(\.\d+)?$|^-?\d{1,3}( \d{3})+(\.\d+)?$`)
	separators = strings.NewReplacer(",", "", " ", "")
)

// ParseText accepts a trimmed, non-empty string that is not a placeholder.
func ParseText(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" || placeholders[strings.ToLower(s)] {
		return "", false
	}
	return s, true
}

// ParseInvoice accepts text or an integral number.
func ParseInvoice(v any) (string, bool) {
	if s, ok := ParseText(v); ok {
		return s, true
	}
	switch v.(type) {
	case string, nil:
		return "", false
	}
	d, ok := ParseNumber(v)
	if !ok || !d.IsInteger() {
		return "", false
	}
	return d.String(), true
}

// ParseNumber reduces v to a finite decimal. Strings may carry one currency
// marker and thousands separators; anything else makes them unparseable.
func ParseNumber(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		return parseNumericString(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		return ParseNumber(float64(n))
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case decimal.Decimal:
		return n, true
	default:
		return decimal.Decimal{}, false
	}
}

func parseNumericString(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s, _ = currency.StripMarker(strings.TrimPrefix(s, "-"))
	if neg {
		s = "-" + s
	}
	if !amountForm.MatchString(s) {
		return decimal.Decimal{}, false
	}
	s = separators.Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseDate returns the calendar date, at UTC midnight, of the first layout
// that parses.
func ParseDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range DateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// ParseTime returns the time of day as HH:MM:SS.
func ParseTime(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	for _, layout := range TimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.Format(timeLayout), true
		}
	}
	return "", false
}

// ParseCurrency resolves a currency signal to a three-letter code.
func ParseCurrency(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return currency.Normalize(s)
}

// itemList returns the line item maps in v. Entries that are not objects are nil.
func itemList(v any) ([]map[string]any, bool) {
	switch items := v.(type) {
	case []any:
		out := make([]map[string]any, len(items))
		for i, it := range items {
			out[i], _ = it.(map[string]any)
		}
		return out, true
	case []map[string]any:
		return items, true
	default:
		return nil, false
	}
}

func usableItem(m map[string]any) bool {
	if m == nil {
		return false
	}
	if _, ok := ParseText(m[extraction.ItemDescription]); ok {
		return true
	}
	_, ok := ParseNumber(m[extraction.ItemTotalPrice])
	return ok
}

// shapeValid is the per-field acceptance predicate the merger applies to each tier.
func shapeValid(field string, v any) bool {
	switch field {
	case extraction.FieldVendorName, extraction.FieldPaymentMethod:
		_, ok := ParseText(v)
		return ok
	case extraction.FieldInvoiceNumber:
		_, ok := ParseInvoice(v)
		return ok
	case extraction.FieldPurchaseDate:
		_, ok := ParseDate(v)
		return ok
	case extraction.FieldPurchaseTime:
		_, ok := ParseTime(v)
		return ok
	case extraction.FieldCurrency:
		_, ok := ParseCurrency(v)
		return ok
	case extraction.FieldSubtotal, extraction.FieldTotalAmount:
		d, ok := ParseNumber(v)
		return ok && d.IsPositive()
	case extraction.FieldTaxAmount:
		d, ok := ParseNumber(v)
		return ok && !d.IsNegative()
	case extraction.FieldLineItems:
		items, ok := itemList(v)
		if !ok || len(items) == 0 {
			return false
		}
		for _, m := range items {
			if usableItem(m) {
				return true
			}
		}
		return false
	default:
		return v != nil
	}
}
