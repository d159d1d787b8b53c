package validation

import (
	"github.com/shopspring/decimal"

	"github.com/zombor/billrecon/internal/bill"
)

// Model names the pricing convention a bill satisfied.
type Model string

const (
	TaxInclusive Model = "tax_inclusive"
	TaxExclusive Model = "tax_exclusive"
	Ambiguous    Model = "ambiguous"
	None         Model = "none"
)

// Basis names the amount compared against the total.
type Basis string

const (
	BasisLineItems Basis = "line_items"
	BasisSubtotal  Basis = "subtotal"
	// BasisNone means there was nothing to compare: no total, or neither line
	// items nor a subtotal.
	BasisNone Basis = "none"
)

// Result is the advisory outcome of checking a USD bill's arithmetic.
type Result struct {
	IsValid     bool            `json:"is_valid"`
	ModelUsed   Model           `json:"model_used"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
	Tolerance   decimal.Decimal `json:"tolerance"`
	ItemsSum    decimal.Decimal `json:"items_sum"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Basis       Basis           `json:"basis"`
}

// Comparable reports whether the bill had both a total and something to compare
// it against.
func (r Result) Comparable() bool {
	return r.Basis != BasisNone
}

// Validator checks a bill against the tax-inclusive and tax-exclusive models.
// It never blocks; callers decide what to do with an invalid result.
type Validator struct{}

// Validate compares Σ line item totals against the total, with and without tax.
// Absent tax counts as zero.
//
// When both models pass, the one with the smaller discrepancy is reported. Equal
// discrepancies mean the models cannot be told apart: with zero tax that is
// reported as tax_inclusive, otherwise as ambiguous.
//
// Without line items only subtotal + tax is compared against the total. A pass
// is tax_exclusive, or ambiguous when the tax is within tolerance of zero.
//
// When there is nothing to compare the result is invalid with a zero
// discrepancy.
func (Validator) Validate(b bill.NormalizedBill) Result {
	tax := decimal.Zero
	if b.TaxAmount.Valid {
		tax = b.TaxAmount.Decimal
	}

	res := Result{
		ModelUsed: None,
		Tolerance: bill.Tolerance(),
		TaxAmount: tax,
		Basis:     BasisNone,
	}

	switch {
	case len(b.LineItems) > 0:
		res.Basis = BasisLineItems
		res.ItemsSum = b.ItemsTotal()
	case b.Subtotal.Valid:
		res.Basis = BasisSubtotal
		res.ItemsSum = b.Subtotal.Decimal
	}

	if b.TotalAmount.Valid {
		res.TotalAmount = b.TotalAmount.Decimal
	} else {
		res.Basis = BasisNone
	}
	if !res.Comparable() {
		return res
	}
	total := res.TotalAmount

	exclusive := res.ItemsSum.Add(tax).Sub(total).Abs()
	excOK := bill.Within(res.ItemsSum.Add(tax), total)

	if res.Basis == BasisSubtotal {
		res.Discrepancy = exclusive
		if excOK {
			res.IsValid = true
			res.ModelUsed = TaxExclusive
			if bill.Within(tax, decimal.Zero) {
				res.ModelUsed = Ambiguous
			}
		}
		return res
	}

	inclusive := res.ItemsSum.Sub(total).Abs()
	incOK := bill.Within(res.ItemsSum, total)

	switch {
	case incOK && excOK:
		res.IsValid = true
		switch inclusive.Cmp(exclusive) {
		case -1:
			res.ModelUsed = TaxInclusive
		case 1:
			res.ModelUsed = TaxExclusive
		default:
			if tax.IsZero() {
				res.ModelUsed = TaxInclusive
			} else {
				res.ModelUsed = Ambiguous
			}
		}
		res.Discrepancy = decimal.Min(inclusive, exclusive)
	case incOK:
		res.IsValid = true
		res.ModelUsed = TaxInclusive
		res.Discrepancy = inclusive
	case excOK:
		res.IsValid = true
		res.ModelUsed = TaxExclusive
		res.Discrepancy = exclusive
	default:
		res.Discrepancy = decimal.Min(inclusive, exclusive)
	}
	return res
}
