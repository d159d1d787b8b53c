package reconcile

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/billrecon/internal/bill"
	"github.com/zombor/billrecon/internal/currency"
	"github.com/zombor/billrecon/internal/extraction"
)

// IssueKind classifies a normalization finding.
type IssueKind int

const (
	// IssueParse means a supplied value could not be parsed and was dropped.
	IssueParse IssueKind = iota
	// IssueItemArithmetic means a line item's quantity × unit price disagrees
	// with its total. Values are left as extracted.
	IssueItemArithmetic
)

// Issue is a non-fatal normalization finding.
type Issue struct {
	Kind    IssueKind
	Field   string
	Message string
}

// Normalizer turns a merged field map into a typed bill. Fields that are not
// Valid come out absent; it never guesses dates or defaults them to today.
type Normalizer struct{}

func (Normalizer) Normalize(m Merged) (bill.NormalizedBill, []Issue) {
	var (
		b      bill.NormalizedBill
		issues []Issue
	)
	parseFailed := func(field string, raw any) {
		issues = append(issues, Issue{
			Kind:    IssueParse,
			Field:   field,
			Message: fmt.Sprintf("could not parse %s from %s; treated as absent", field, describe(raw)),
		})
	}

	for _, field := range extraction.FieldNames {
		r := m.Field(field)
		if r.State == Invalid {
			parseFailed(field, r.Raw)
		}
		if r.State != Valid {
			continue
		}

		switch field {
		case extraction.FieldVendorName:
			b.VendorName, _ = ParseText(r.Raw)
			b.VendorKey = bill.CanonicalKey(b.VendorName)
		case extraction.FieldInvoiceNumber:
			s, _ := ParseInvoice(r.Raw)
			b.InvoiceNumber = &s
		case extraction.FieldPaymentMethod:
			s, _ := ParseText(r.Raw)
			s = strings.ToUpper(s)
			b.PaymentMethod = &s
		case extraction.FieldPurchaseDate:
			d, _ := ParseDate(r.Raw)
			b.PurchaseDate = &d
		case extraction.FieldPurchaseTime:
			t, _ := ParseTime(r.Raw)
			b.PurchaseTime = &t
		case extraction.FieldCurrency:
			b.Currency, _ = ParseCurrency(r.Raw)
		case extraction.FieldSubtotal:
			b.Subtotal = number(r.Raw)
		case extraction.FieldTaxAmount:
			b.TaxAmount = number(r.Raw)
		case extraction.FieldTotalAmount:
			b.TotalAmount = number(r.Raw)
		case extraction.FieldLineItems:
			var itemIssues []Issue
			b.LineItems, itemIssues = normalizeItems(r.Raw)
			issues = append(issues, itemIssues...)
		}
	}

	// USD is assumed only when no tier offered any currency at all.
	if m.Field(extraction.FieldCurrency).State == Absent {
		b.Currency = currency.USD
	}

	return b, issues
}

func number(v any) decimal.NullDecimal {
	d, ok := ParseNumber(v)
	if !ok {
		return decimal.NullDecimal{}
	}
	return bill.Some(d)
}

func normalizeItems(v any) ([]bill.LineItem, []Issue) {
	raw, _ := itemList(v)

	var (
		items  []bill.LineItem
		issues []Issue
	)
	for i, m := range raw {
		field := fmt.Sprintf("%s[%d]", extraction.FieldLineItems, i)
		if m == nil {
			issues = append(issues, Issue{Kind: IssueParse, Field: field, Message: "line item is not an object; dropped"})
			continue
		}

		var item bill.LineItem
		item.Description, _ = ParseText(m[extraction.ItemDescription])

		if q, ok := m[extraction.ItemQuantity]; ok && q != nil {
			if d, ok := ParseNumber(q); ok {
				item.Quantity = int(d.IntPart())
			} else {
				issues = append(issues, Issue{Kind: IssueParse, Field: field + "." + extraction.ItemQuantity,
					Message: fmt.Sprintf("could not parse quantity from %s; defaulted to 0", describe(q))})
			}
		}

		for _, p := range []struct {
			key string
			dst *decimal.NullDecimal
		}{
			{extraction.ItemUnitPrice, &item.UnitPrice},
			{extraction.ItemTotalPrice, &item.TotalPrice},
		} {
			val, ok := m[p.key]
			if !ok || val == nil {
				continue
			}
			if *p.dst = number(val); !p.dst.Valid {
				issues = append(issues, Issue{Kind: IssueParse, Field: field + "." + p.key,
					Message: fmt.Sprintf("could not parse %s from %s; treated as absent", p.key, describe(val))})
			}
		}

		if item.Description == "" && !item.UnitPrice.Valid && !item.TotalPrice.Valid {
			issues = append(issues, Issue{Kind: IssueParse, Field: field, Message: "line item has no description or price; dropped"})
			continue
		}

		if item.Quantity > 0 && item.UnitPrice.Valid && item.TotalPrice.Valid {
			expected := item.UnitPrice.Decimal.Mul(decimal.NewFromInt(int64(item.Quantity)))
			if !bill.Within(expected, item.TotalPrice.Decimal) {
				issues = append(issues, Issue{Kind: IssueItemArithmetic, Field: field,
					Message: fmt.Sprintf("quantity %d × unit price %s = %s but total price is %s",
						item.Quantity, item.UnitPrice.Decimal, expected, item.TotalPrice.Decimal)})
			}
		}

		items = append(items, item)
	}
	return items, issues
}

func describe(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case []any, []map[string]any, map[string]any:
		return fmt.Sprintf("a %T value", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
