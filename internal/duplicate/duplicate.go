package duplicate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zombor/billrecon/internal/bill"
)

// Classification is the strength of a duplicate match.
type Classification string

const (
	None Classification = "none"
	// Soft is advisory: same vendor, date and total, no invoice number to tell them apart.
	Soft Classification = "soft"
	// Hard means the same invoice number was already stored for the same vendor, date and total.
	Hard Classification = "hard"
)

// Verdict is the detector's finding for one candidate bill.
type Verdict struct {
	Classification Classification `json:"classification"`
	MatchedID      string         `json:"matched_id,omitempty"`
	Reason         string         `json:"reason"`
}

// RecordQuery reads stored bills. Implementations must not write.
type RecordQuery interface {
	FindByVendorDate(ctx context.Context, vendorKey string, date time.Time) ([]bill.Summary, error)
}

// Detector screens a candidate against stored bills. It performs no writes and
// is safe to call speculatively.
type Detector struct {
	records RecordQuery
}

func NewDetector(records RecordQuery) *Detector {
	return &Detector{records: records}
}

// Check classifies b. A candidate with an invoice number is only ever compared
// for a hard match; a soft check runs only when the invoice number is empty.
func (d *Detector) Check(ctx context.Context, b bill.NormalizedBill) (Verdict, error) {
	if b.VendorKey == "" || b.PurchaseDate == nil || !b.TotalAmount.Valid {
		return Verdict{Classification: None, Reason: "insufficient data for comparison"}, nil
	}

	stored, err := d.records.FindByVendorDate(ctx, b.VendorKey, *b.PurchaseDate)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to query stored bills: %w", err)
	}

	date := bill.DateKey(*b.PurchaseDate)
	invoice := b.Invoice()

	for _, s := range stored {
		if s.VendorKey != b.VendorKey || bill.DateKey(s.PurchaseDate) != date {
			continue
		}
		if !bill.Within(s.TotalAmount, b.TotalAmount.Decimal) {
			continue
		}

		if invoice != "" {
			other := strings.TrimSpace(s.InvoiceNumber)
			if other != "" && other == invoice {
				return Verdict{
					Classification: Hard,
					MatchedID:      s.ID,
					Reason:         fmt.Sprintf("Invoice #%s from %s on %s already exists", invoice, b.VendorName, date),
				}, nil
			}
			continue
		}

		return Verdict{
			Classification: Soft,
			MatchedID:      s.ID,
			Reason: fmt.Sprintf("Similar bill from %s on %s with amount $%s already exists (soft match)",
				b.VendorName, date, b.TotalAmount.Decimal.StringFixed(2)),
		}, nil
	}

	return Verdict{Classification: None, Reason: "No duplicate detected"}, nil
}
