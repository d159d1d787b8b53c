package extraction

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.json
var builtinTemplates embed.FS

//go:embed template.schema.json
var templateSchemaJSON []byte

var templateSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("template.schema.json", bytes.NewReader(templateSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("template.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// VendorLookupKey strips non-alphanumerics and uppercases, so "WAL-MART" and
// "Walmart" resolve to the same template.
func VendorLookupKey(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToUpper(s), "")
}

type fieldRule struct {
	Patterns      []string `json:"patterns"`
	LabelPatterns []string `json:"label_patterns"`
}

type lineItemRule struct {
	LinePattern  string         `json:"line_pattern"`
	StartMarkers []string       `json:"start_markers"`
	EndMarkers   []string       `json:"end_markers"`
	LineGroups   map[string]int `json:"line_groups"`
}

type templateFile struct {
	VendorKey    string               `json:"vendor_key"`
	Aliases      []string             `json:"aliases"`
	Keywords     []string             `json:"keywords"`
	StaticFields map[string]any       `json:"static_fields"`
	Fields       map[string]fieldRule `json:"fields"`
	LineItems    *lineItemRule        `json:"line_items"`
}

type compiledField struct {
	name     string
	patterns []*regexp.Regexp
	labels   []*regexp.Regexp
}

// Template is a compiled vendor template.
type Template struct {
	VendorKey string
	Aliases   []string
	Keywords  []string

	static       map[string]any
	fields       []compiledField
	linePattern  *regexp.Regexp
	lineGroups   map[string]int
	startMarkers []*regexp.Regexp
	endMarkers   []*regexp.Regexp
}

// ParseTemplate validates data against the template schema and compiles its patterns.
func ParseTemplate(data []byte) (*Template, error) {
	schema, err := templateSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("template does not match schema: %w", err)
	}

	var tf templateFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}

	t := &Template{
		VendorKey: tf.VendorKey,
		Aliases:   tf.Aliases,
		Keywords:  tf.Keywords,
		static:    Fields(tf.StaticFields).Canonical(),
	}

	names := make([]string, 0, len(tf.Fields))
	for name := range tf.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rule := tf.Fields[name]
		cf := compiledField{name: name}
		if cf.patterns, err = compileAll(rule.Patterns, ""); err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		if cf.labels, err = compileAll(rule.LabelPatterns, `\s*[:\-]?\s*`+currencyMarker+amountPattern); err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		t.fields = append(t.fields, cf)
	}

	if li := tf.LineItems; li != nil {
		if t.linePattern, err = regexp.Compile("(?i)" + li.LinePattern); err != nil {
			return nil, fmt.Errorf("line_pattern: %w", err)
		}
		if t.startMarkers, err = compileAll(li.StartMarkers, ""); err != nil {
			return nil, fmt.Errorf("start_markers: %w", err)
		}
		if t.endMarkers, err = compileAll(li.EndMarkers, ""); err != nil {
			return nil, fmt.Errorf("end_markers: %w", err)
		}
		t.lineGroups = li.LineGroups
	}

	return t, nil
}

func compileAll(patterns []string, suffix string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p + suffix)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// Apply runs the template over text. Only fields the template detects are returned.
func (t *Template) Apply(text string) Fields {
	out := Fields{}
	for k, v := range t.static {
		out[k] = v
	}

	for _, f := range t.fields {
		var v string
		if len(f.patterns) > 0 {
			v = firstGroup(f.patterns, text)
		} else {
			v = amountAfterLabel(f.labels, text, false)
		}
		if v != "" {
			out[f.name] = v
		}
	}

	if t.linePattern != nil {
		if items := t.lineItems(text); len(items) > 0 {
			out[FieldLineItems] = items
		}
	}
	return out.Canonical()
}

func (t *Template) lineItems(text string) []any {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	start, end := 0, len(lines)
	if len(t.startMarkers) > 0 {
		for i, l := range lines {
			if matchesAny(t.startMarkers, l) {
				start = i + 1
				break
			}
		}
	}
	if len(t.endMarkers) > 0 {
		for i := start; i < len(lines); i++ {
			if matchesAny(t.endMarkers, lines[i]) {
				end = i
				break
			}
		}
	}

	var items []any
	for _, l := range lines[start:end] {
		m := t.linePattern.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		item := map[string]any{}
		for i, name := range t.linePattern.SubexpNames() {
			if name != "" && m[i] != "" {
				item[name] = strings.TrimSpace(m[i])
			}
		}
		for name, idx := range t.lineGroups {
			if idx < len(m) && m[idx] != "" {
				item[name] = strings.TrimSpace(m[idx])
			}
		}
		item = canonicalItems([]any{item}).([]any)[0].(map[string]any)
		if _, ok := item[ItemDescription]; !ok {
			continue
		}
		if _, ok := item[ItemTotalPrice]; !ok {
			if total, ok := rowTotal(item); ok {
				item[ItemTotalPrice] = total
			}
		}
		items = append(items, item)
	}
	return items
}

func rowTotal(item map[string]any) (string, bool) {
	q, qok := item[ItemQuantity].(string)
	p, pok := item[ItemUnitPrice].(string)
	if !qok || !pok {
		return "", false
	}
	qty, err := decimal.NewFromString(q)
	if err != nil {
		return "", false
	}
	price, err := decimal.NewFromString(p)
	if err != nil {
		return "", false
	}
	return qty.Mul(price).String(), true
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Templates is a set of vendor templates indexed by alias.
type Templates struct {
	byKey   map[string]*Template
	aliases map[string]string
	keys    []string
}

// LoadTemplates loads the built-in templates and then any *.json files in dir.
// A file in dir replaces a built-in template with the same vendor_key. An empty
// dir loads only the built-ins.
func LoadTemplates(dir string) (*Templates, error) {
	ts := &Templates{byKey: map[string]*Template{}, aliases: map[string]string{}}

	builtin, err := fs.Glob(builtinTemplates, "templates/*.json")
	if err != nil {
		return nil, err
	}
	for _, name := range builtin {
		data, err := builtinTemplates.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := ts.add(data); err != nil {
			return nil, fmt.Errorf("built-in template %s: %w", name, err)
		}
	}

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read templates dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, err
			}
			if err := ts.add(data); err != nil {
				return nil, fmt.Errorf("template %s: %w", e.Name(), err)
			}
		}
	}

	for key := range ts.byKey {
		ts.keys = append(ts.keys, key)
	}
	sort.Strings(ts.keys)
	return ts, nil
}

func (ts *Templates) add(data []byte) error {
	t, err := ParseTemplate(data)
	if err != nil {
		return err
	}
	ts.byKey[t.VendorKey] = t
	for _, alias := range append([]string{t.VendorKey}, t.Aliases...) {
		if k := VendorLookupKey(alias); k != "" {
			ts.aliases[k] = t.VendorKey
		}
	}
	return nil
}

// Len returns the number of loaded templates.
func (ts *Templates) Len() int {
	return len(ts.byKey)
}

// Find returns the template whose key or alias matches vendor, or nil.
func (ts *Templates) Find(vendor string) *Template {
	k := VendorLookupKey(vendor)
	if k == "" {
		return nil
	}
	return ts.byKey[ts.aliases[k]]
}

// Match picks a template for a document: the vendor hint first, then the first
// template (by key) whose keyword or alias appears in rawText.
func (ts *Templates) Match(rawText, vendorHint string) *Template {
	if t := ts.Find(vendorHint); t != nil {
		return t
	}
	upper := strings.ToUpper(rawText)
	for _, key := range ts.keys {
		t := ts.byKey[key]
		for _, kw := range append(append([]string{}, t.Keywords...), t.Aliases...) {
			if kw != "" && strings.Contains(upper, strings.ToUpper(kw)) {
				return t
			}
		}
	}
	return nil
}

// Extract matches a template and applies it. It returns nil fields when no
// template matches.
func (ts *Templates) Extract(rawText, vendorHint string) (Fields, *Template) {
	t := ts.Match(rawText, vendorHint)
	if t == nil {
		return nil, nil
	}
	return t.Apply(rawText), t
}
