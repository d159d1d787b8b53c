package extraction

import (
	"regexp"
	"strings"
	"unicode"
)

// VendorGuesser produces the named-entity vendor guess for raw OCR text.
// An empty result means no guess.
type VendorGuesser interface {
	GuessVendor(rawText string) string
}

// HeaderGuesser guesses the vendor from the receipt header, where store names
// are printed. Among the qualifying lines the shortest wins.
type HeaderGuesser struct {
	// MaxLines bounds how many non-empty lines are inspected. Zero means 8.
	MaxLines int
}

var (
	phonePattern   = regexp.MustCompile(`\d{3}[\s\-).]*\d{3}[\s\-.]*\d{4}`)
	boilerplate    = regexp.MustCompile(`(?i)\b(?:RECEIPT|INVOICE|WELCOME|THANK|TEL|PHONE|GSTIN|GST|VAT|STORE\s*#|ADDRESS|CASHIER|DATE|TIME|BILL|ORDER|TABLE)\b`)
	amountOnlyLine = regexp.MustCompile(`^[\s$₹€£¥.,:\-0-9]*$`)
)

func (g HeaderGuesser) GuessVendor(rawText string) string {
	limit := g.MaxLines
	if limit <= 0 {
		limit = 8
	}

	var best string
	seen := 0
	for _, line := range strings.Split(rawText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if seen++; seen > limit {
			break
		}
		c := cleanHeaderLine(line)
		if !isVendorCandidate(c) {
			continue
		}
		if best == "" || len(c) < len(best) {
			best = c
		}
	}
	return best
}

func cleanHeaderLine(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&' && r != ')' && r != '('
	})
}

func isVendorCandidate(s string) bool {
	if s == "" || amountOnlyLine.MatchString(s) {
		return false
	}
	if unicode.IsDigit([]rune(s)[0]) {
		return false
	}
	if phonePattern.MatchString(s) || boilerplate.MatchString(s) {
		return false
	}
	for _, re := range datePatterns {
		if re.MatchString(s) {
			return false
		}
	}

	letters, digits := 0, 0
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		}
	}
	if letters <= 2 {
		return false
	}
	return digits*10 <= (letters+digits)*3
}
