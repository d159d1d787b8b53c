package extraction

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountPattern accepts grouped thousands ("1,500.00") as well as plain digits ("1500.00").
const amountPattern = `(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`

// currencyMarker is an optional currency token between a label and its amount.
const currencyMarker = `(?:(?:USD|INR|MYR|EUR|GBP|RM|Rs\.?)\s*|[$₹€£¥]\s*)?`

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
		regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4})\b`),
		regexp.MustCompile(`\b(\d{1,2}-\d{1,2}-\d{4})\b`),
		regexp.MustCompile(`\b(\d{1,2}\.\d{1,2}\.\d{4})\b`),
	}

	timePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}:\d{2}(?:\s*[AP]M)?)\b`),
		regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}(?:\s*[AP]M)?)\b`),
	}

	invoicePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:invoice|bill|receipt)\s*(?:no\.?|number|num|#)?\s*[:#\-]?\s*([A-Z0-9][A-Z0-9\-/]*)`),
		regexp.MustCompile(`(?i)\b((?:INV|BILL)[\-/]?\d[A-Z0-9\-/]*)`),
	}

	currencyPatterns = []struct {
		code string
		re   *regexp.Regexp
	}{
		{"USD", regexp.MustCompile(`\bUSD\b|\$`)},
		{"INR", regexp.MustCompile(`\bINR\b|₹`)},
		{"MYR", regexp.MustCompile(`\bMYR\b|\bRM\b`)},
		{"EUR", regexp.MustCompile(`\bEUR\b|€`)},
		{"GBP", regexp.MustCompile(`\bGBP\b|£`)},
	}

	paymentPatterns = []struct {
		method string
		re     *regexp.Regexp
	}{
		{"CASH", regexp.MustCompile(`(?i)\bCASH\b`)},
		{"CARD", regexp.MustCompile(`(?i)\b(?:CARD|CREDIT|DEBIT|VISA|MASTERCARD)\b`)},
		{"UPI", regexp.MustCompile(`(?i)\bUPI\b`)},
		{"NET BANKING", regexp.MustCompile(`(?i)\b(?:NET\s*BANKING|ONLINE)\b`)},
		{"WALLET", regexp.MustCompile(`(?i)\b(?:WALLET|PAYTM|PHONEPE|GPAY)\b`)},
	}

	taxLabels      = labelPatterns(`(?:TAX|GST|VAT|CGST|SGST|IGST)`)
	subtotalLabels = labelPatterns(`(?:SUB\s*TOTAL)`)
	totalLabels    = labelPatterns(`GRAND\s*TOTAL`, `AMOUNT\s*DUE`, `TOTAL`)

	subPrefix = regexp.MustCompile(`(?i)SUB\s*$`)

	lineItemPattern = regexp.MustCompile(`(?m)^[ \t]*(\d+)[ \t]+([A-Za-z][A-Za-z0-9 \-\.]*?)[ \t]+(\d+(?:\.\d+)?)[ \t]+(\d+(?:\.\d+)?)[ \t]*$`)
)

func labelPatterns(labels ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(labels))
	for _, l := range labels {
		out = append(out, regexp.MustCompile(`(?i)\b`+l+`\b\s*[:\-]?\s*`+currencyMarker+amountPattern))
	}
	return out
}

// ExtractGeneric runs the vendor-agnostic patterns over raw OCR text. It never
// sets vendor_name, and fields it cannot find are left out rather than zeroed.
func ExtractGeneric(text string) Fields {
	f := Fields{}
	if strings.TrimSpace(text) == "" {
		return f
	}

	if v := firstGroup(datePatterns, text); v != "" {
		f[FieldPurchaseDate] = v
	}
	if v := firstGroup(timePatterns, text); v != "" {
		f[FieldPurchaseTime] = v
	}
	if v := findInvoice(text); v != "" {
		f[FieldInvoiceNumber] = v
	}
	for _, c := range currencyPatterns {
		if c.re.MatchString(text) {
			f[FieldCurrency] = c.code
			break
		}
	}
	for _, p := range paymentPatterns {
		if p.re.MatchString(text) {
			f[FieldPaymentMethod] = p.method
			break
		}
	}
	if v := amountAfterLabel(subtotalLabels, text, false); v != "" {
		f[FieldSubtotal] = v
	}
	if v := amountAfterLabel(taxLabels, text, false); v != "" {
		f[FieldTaxAmount] = v
	}
	if v := amountAfterLabel(totalLabels, text, true); v != "" {
		f[FieldTotalAmount] = v
	}
	if items := genericLineItems(text); len(items) > 0 {
		f[FieldLineItems] = items
	}
	return f
}

func firstGroup(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// findInvoice returns the first labelled token that carries at least one digit,
// so words following "RECEIPT" are not mistaken for numbers.
func findInvoice(text string) string {
	for _, re := range invoicePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if strings.ContainsAny(m[1], "0123456789") {
				return m[1]
			}
		}
	}
	return ""
}

// amountAfterLabel returns the amount following the first matching label.
// With skipSub set, labels directly preceded by "SUB" are ignored.
func amountAfterLabel(labels []*regexp.Regexp, text string, skipSub bool) string {
	for _, re := range labels {
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			if skipSub && subPrefix.MatchString(text[:idx[0]]) {
				continue
			}
			return text[idx[2]:idx[3]]
		}
	}
	return ""
}

func genericLineItems(text string) []any {
	var items []any
	for _, m := range lineItemPattern.FindAllStringSubmatch(text, -1) {
		qty, err := decimal.NewFromString(m[3])
		if err != nil {
			continue
		}
		price, err := decimal.NewFromString(m[4])
		if err != nil {
			continue
		}
		items = append(items, map[string]any{
			ItemDescription: strings.TrimSpace(m[2]),
			ItemQuantity:    m[3],
			ItemUnitPrice:   m[4],
			ItemTotalPrice:  qty.Mul(price).String(),
		})
	}
	return items
}
