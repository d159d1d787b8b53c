package currency

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

// USD is the reporting currency.
const USD = "USD"

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// UnsupportedCurrencyError reports a currency code that has no rate.
type UnsupportedCurrencyError struct {
	Code string
}

func (e *UnsupportedCurrencyError) Error() string {
	if e.Code == "" {
		return "unsupported currency: no currency code"
	}
	return fmt.Sprintf("unsupported currency: %s", e.Code)
}

func (e *UnsupportedCurrencyError) Unwrap() error {
	return ErrUnsupportedCurrency
}

// RateTable maps a currency code to its rate to USD.
type RateTable map[string]decimal.Decimal

// DefaultRates returns the built-in rate table.
func DefaultRates() RateTable {
	return RateTable{
		"USD": decimal.NewFromInt(1),
		"INR": decimal.RequireFromString("0.012"),
		"MYR": decimal.RequireFromString("0.21"),
		"EUR": decimal.RequireFromString("1.08"),
		"GBP": decimal.RequireFromString("1.27"),
	}
}

// Rate returns the rate for code. USD is always exactly 1.
func (t RateTable) Rate(code string) (decimal.Decimal, error) {
	if code == USD {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := t[code]
	if !ok {
		return decimal.Decimal{}, &UnsupportedCurrencyError{Code: code}
	}
	return rate, nil
}

// Merge returns a new table with other's rates layered over t.
func (t RateTable) Merge(other RateTable) RateTable {
	out := make(RateTable, len(t)+len(other))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Codes returns the supported codes in sorted order.
func (t RateTable) Codes() []string {
	codes := make([]string, 0, len(t))
	for k := range t {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	return codes
}

//go:embed rates.schema.json
var ratesSchemaJSON []byte

var ratesSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rates.schema.json", bytes.NewReader(ratesSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("rates.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// ParseRates decodes a rates document of the form {"rates": {"INR": 0.012}}.
// Rates keep the exact decimal written in the file.
func ParseRates(data []byte) (RateTable, error) {
	schema, err := ratesSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal rates: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("rates do not match schema: %w", err)
	}

	var file struct {
		Rates map[string]json.Number `json:"rates"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}

	table := make(RateTable, len(file.Rates))
	for code, n := range file.Rates {
		rate, err := decimal.NewFromString(n.String())
		if err != nil {
			return nil, fmt.Errorf("rate for %s: %w", code, err)
		}
		table[code] = rate
	}
	return table, nil
}

// LoadRates returns the default table extended by the rates file at path.
// An empty path returns the defaults.
func LoadRates(path string) (RateTable, error) {
	if path == "" {
		return DefaultRates(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rates file: %w", err)
	}
	file, err := ParseRates(data)
	if err != nil {
		return nil, err
	}
	return DefaultRates().Merge(file), nil
}

var symbols = map[string]string{
	"$":   "USD",
	"US$": "USD",
	"₹":   "INR",
	"RS":  "INR",
	"RS.": "INR",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
	"RM":  "MYR",
}

var isoCode = regexp.MustCompile(`^[A-Z]{3}$`)

// markers are the symbol keys longest first, so "US$" wins over "$".
var markers = func() []string {
	out := make([]string, 0, len(symbols))
	for m := range symbols {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

var (
	leadingCode  = regexp.MustCompile(`^([A-Za-z]{3})(\s*\d.*)$`)
	trailingCode = regexp.MustCompile(`^(.*\d\s*)([A-Za-z]{3})$`)
)

// StripMarker removes one leading or trailing currency marker (an ISO code,
// a symbol or a local alias) from an amount and returns the rest trimmed,
// along with the code the marker named. Text without a marker comes back
// trimmed with an empty code.
func StripMarker(amount string) (string, string) {
	s := strings.TrimSpace(amount)
	if m := leadingCode.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[2]), strings.ToUpper(m[1])
	}
	if m := trailingCode.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), strings.ToUpper(m[2])
	}
	for _, m := range markers {
		if len(s) < len(m) {
			continue
		}
		if strings.EqualFold(s[:len(m)], m) {
			return strings.TrimSpace(s[len(m):]), symbols[m]
		}
		if strings.EqualFold(s[len(s)-len(m):], m) {
			return strings.TrimSpace(s[:len(s)-len(m)]), symbols[m]
		}
	}
	return s, ""
}

// Normalize resolves a currency signal (ISO code, symbol or local alias) to a
// three-letter code. It does not check that a rate exists.
func Normalize(signal string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(signal))
	if code, ok := symbols[s]; ok {
		return code, true
	}
	if isoCode.MatchString(s) {
		return s, true
	}
	return "", false
}
