package bill

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar-date form used for keys and display.
const DateLayout = "2006-01-02"

var tolerance = decimal.RequireFromString("0.02")

// Tolerance returns the absolute USD slack applied to every monetary equality
// check. It is fixed at 0.02.
func Tolerance() decimal.Decimal {
	return tolerance
}

// LineItem is one row of a bill. Prices are USD once the bill has been converted.
type LineItem struct {
	Description string              `json:"description"`
	Quantity    int                 `json:"quantity"`
	UnitPrice   decimal.NullDecimal `json:"unit_price"`
	TotalPrice  decimal.NullDecimal `json:"total_price"`
}

// NormalizedBill is the strictly typed, reconciled record for one document.
// Money fields are USD after conversion; the Original* fields are the audit trail
// written once by the currency converter.
type NormalizedBill struct {
	VendorName          string              `json:"vendor_name"`
	VendorKey           string              `json:"vendor_key"`
	InvoiceNumber       *string             `json:"invoice_number"`
	PurchaseDate        *time.Time          `json:"purchase_date"`
	PurchaseTime        *string             `json:"purchase_time"`
	Subtotal            decimal.NullDecimal `json:"subtotal"`
	TaxAmount           decimal.NullDecimal `json:"tax_amount"`
	TotalAmount         decimal.NullDecimal `json:"total_amount"`
	Currency            string              `json:"currency"`
	OriginalCurrency    string              `json:"original_currency"`
	OriginalTotalAmount decimal.NullDecimal `json:"original_total_amount"`
	ExchangeRateUsed    decimal.NullDecimal `json:"exchange_rate_used"`
	PaymentMethod       *string             `json:"payment_method"`
	LineItems           []LineItem          `json:"line_items"`
}

// Summary is the slice of a stored bill the duplicate detector needs.
type Summary struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	VendorName    string          `json:"vendor_name"`
	VendorKey     string          `json:"vendor_key"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// CanonicalKey returns the comparison form of a text field. It is never displayed.
func CanonicalKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// DateKey formats a calendar date for index keys.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Within reports whether a and b differ by no more than Tolerance.
func Within(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// Invoice returns the trimmed invoice number, or "" when absent.
func (b NormalizedBill) Invoice() string {
	if b.InvoiceNumber == nil {
		return ""
	}
	return strings.TrimSpace(*b.InvoiceNumber)
}

// ItemsTotal sums the row totals that are present.
func (b NormalizedBill) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range b.LineItems {
		if item.TotalPrice.Valid {
			sum = sum.Add(item.TotalPrice.Decimal)
		}
	}
	return sum
}

// Clone returns a copy whose line items can be modified without touching b.
func (b NormalizedBill) Clone() NormalizedBill {
	out := b
	if b.LineItems != nil {
		out.LineItems = make([]LineItem, len(b.LineItems))
		copy(out.LineItems, b.LineItems)
	}
	return out
}

// Summarize builds the duplicate-detection view of b under the given id.
func (b NormalizedBill) Summarize(id string) Summary {
	s := Summary{
		ID:            id,
		InvoiceNumber: b.Invoice(),
		VendorName:    b.VendorName,
		VendorKey:     b.VendorKey,
		TotalAmount:   b.TotalAmount.Decimal,
	}
	if b.PurchaseDate != nil {
		s.PurchaseDate = *b.PurchaseDate
	}
	return s
}

// Some wraps a decimal as a present NullDecimal.
func Some(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
