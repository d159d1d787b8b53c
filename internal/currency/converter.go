package currency

import (
	"github.com/shopspring/decimal"

	"github.com/zombor/billrecon/internal/bill"
)

// Converter rewrites a bill's money fields into USD. It is safe for concurrent use.
type Converter struct {
	rates RateTable
}

func NewConverter(rates RateTable) *Converter {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Converter{rates: rates}
}

// ConvertAmount returns amount × rate and the rate used. No rounding is applied.
func (c *Converter) ConvertAmount(amount decimal.Decimal, code string) (decimal.Decimal, decimal.Decimal, error) {
	rate, err := c.rates.Rate(code)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	return amount.Mul(rate), rate, nil
}

// Convert returns a copy of b with subtotal, tax, total and every line item
// price expressed in USD. The original currency, original total and rate are
// recorded on the copy. A bill that already carries an original currency is
// returned unchanged.
func (c *Converter) Convert(b bill.NormalizedBill) (bill.NormalizedBill, error) {
	if b.OriginalCurrency != "" {
		return b, nil
	}

	rate, err := c.rates.Rate(b.Currency)
	if err != nil {
		return b, err
	}

	out := b.Clone()
	out.OriginalCurrency = b.Currency
	out.OriginalTotalAmount = b.TotalAmount
	out.ExchangeRateUsed = bill.Some(rate)
	out.Currency = USD

	out.Subtotal = scale(b.Subtotal, rate)
	out.TaxAmount = scale(b.TaxAmount, rate)
	out.TotalAmount = scale(b.TotalAmount, rate)
	for i := range out.LineItems {
		out.LineItems[i].UnitPrice = scale(out.LineItems[i].UnitPrice, rate)
		out.LineItems[i].TotalPrice = scale(out.LineItems[i].TotalPrice, rate)
	}
	return out, nil
}

func scale(d decimal.NullDecimal, rate decimal.Decimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return bill.Some(d.Decimal.Mul(rate))
}
