package extraction

import (
	"fmt"
	"strings"
)

// Tier identifies which extraction source produced a value. Lower tiers win.
type Tier int

const (
	TierAI Tier = iota
	TierTemplate
	TierRegex
	TierNER
)

func (t Tier) String() string {
	switch t {
	case TierAI:
		return "ai"
	case TierTemplate:
		return "template"
	case TierRegex:
		return "regex"
	case TierNER:
		return "ner"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// MarshalText renders the tier name in JSON output.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	for _, v := range []Tier{TierAI, TierTemplate, TierRegex, TierNER} {
		if strings.EqualFold(v.String(), string(text)) {
			*t = v
			return nil
		}
	}
	return fmt.Errorf("unknown tier %q", text)
}

// Canonical field names shared by every tier.
const (
	FieldVendorName    = "vendor_name"
	FieldInvoiceNumber = "invoice_number"
	FieldPurchaseDate  = "purchase_date"
	FieldPurchaseTime  = "purchase_time"
	FieldCurrency      = "currency"
	FieldPaymentMethod = "payment_method"
	FieldSubtotal      = "subtotal"
	FieldTaxAmount     = "tax_amount"
	FieldTotalAmount   = "total_amount"
	FieldLineItems     = "line_items"
)

// Line item keys.
const (
	ItemDescription = "description"
	ItemQuantity    = "quantity"
	ItemUnitPrice   = "unit_price"
	ItemTotalPrice  = "total_price"
)

// FieldNames lists the canonical fields in resolution order.
var FieldNames = []string{
	FieldVendorName,
	FieldInvoiceNumber,
	FieldPurchaseDate,
	FieldPurchaseTime,
	FieldCurrency,
	FieldPaymentMethod,
	FieldSubtotal,
	FieldTaxAmount,
	FieldTotalAmount,
	FieldLineItems,
}

var fieldAliases = map[string]string{
	"vendor":        FieldVendorName,
	"merchant":      FieldVendorName,
	"merchant_name": FieldVendorName,
	"store_name":    FieldVendorName,
	"invoice_no":    FieldInvoiceNumber,
	"receipt_no":    FieldInvoiceNumber,
	"bill_number":   FieldInvoiceNumber,
	"date":          FieldPurchaseDate,
	"tx_date":       FieldPurchaseDate,
	"time":          FieldPurchaseTime,
	"currency_code": FieldCurrency,
	"tax":           FieldTaxAmount,
	"total":         FieldTotalAmount,
	"amount":        FieldTotalAmount,
	"items":         FieldLineItems,
}

var itemAliases = map[string]string{
	"item_name":  ItemDescription,
	"name":       ItemDescription,
	"qty":        ItemQuantity,
	"price":      ItemUnitPrice,
	"item_total": ItemTotalPrice,
	"total":      ItemTotalPrice,
	"amount":     ItemTotalPrice,
}

// Fields is the loosely typed field map one tier produces. Values may be strings,
// numbers, json.Number, lists of item maps, or nil.
type Fields map[string]any

// Candidate is a single field value offered by a tier.
type Candidate struct {
	Field string `json:"field"`
	Raw   any    `json:"raw"`
	Tier  Tier   `json:"tier"`
}

// Canonical returns a copy of f with known aliases renamed to canonical keys.
// An alias never overwrites a canonical key that is already set.
func (f Fields) Canonical() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		key := strings.ToLower(strings.TrimSpace(k))
		if canon, ok := fieldAliases[key]; ok {
			if _, exists := f[canon]; exists {
				continue
			}
			key = canon
		}
		if key == FieldLineItems {
			v = canonicalItems(v)
		}
		out[key] = v
	}
	return out
}

// Candidate returns the value the tier offers for field. Missing keys, nil and
// blank strings mean the tier offered nothing.
func (f Fields) Candidate(field string, tier Tier) (Candidate, bool) {
	v, ok := f[field]
	if !ok || v == nil {
		return Candidate{}, false
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return Candidate{}, false
	}
	return Candidate{Field: field, Raw: v, Tier: tier}, true
}

func canonicalItems(v any) any {
	var list []map[string]any
	switch items := v.(type) {
	case []any:
		for _, it := range items {
			if m, ok := it.(map[string]any); ok {
				list = append(list, m)
			} else {
				list = append(list, nil)
			}
		}
	case []map[string]any:
		list = items
	default:
		return v
	}

	out := make([]any, 0, len(list))
	for _, m := range list {
		if m == nil {
			out = append(out, nil)
			continue
		}
		item := make(map[string]any, len(m))
		for k, val := range m {
			key := strings.ToLower(strings.TrimSpace(k))
			if canon, ok := itemAliases[key]; ok {
				if _, exists := m[canon]; exists {
					continue
				}
				key = canon
			}
			item[key] = val
		}
		out = append(out, item)
	}
	return out
}
