package reconcile

import (
	"fmt"

	"github.com/zombor/billrecon/internal/extraction"
)

// State is the tagged optional state of one field.
type State int

const (
	// Absent means no tier supplied a value.
	Absent State = iota
	// Invalid means at least one tier supplied a value and none passed its shape check.
	Invalid
	// Valid means a tier supplied a shape-valid value.
	Valid
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Invalid:
		return "invalid"
	case Valid:
		return "valid"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, v := range []State{Absent, Invalid, Valid} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown field state %q", text)
}

// Attempt records what one tier offered for a field.
type Attempt struct {
	Tier  extraction.Tier `json:"tier"`
	State State           `json:"state"`
}

// Resolved is the outcome of merging one field across tiers.
type Resolved struct {
	Field string `json:"field"`
	State State  `json:"state"`
	// Tier is the winning tier. Only meaningful when State is Valid.
	Tier extraction.Tier `json:"tier"`
	// Raw is the winning value, or the highest-ranked rejected value when State is Invalid.
	Raw      any       `json:"raw,omitempty"`
	Attempts []Attempt `json:"attempts"`
}

// Merged holds one resolution per canonical field.
type Merged struct {
	Fields map[string]Resolved `json:"fields"`
}

// Field returns the resolution for name. Unknown names resolve to Absent.
func (m Merged) Field(name string) Resolved {
	if r, ok := m.Fields[name]; ok {
		return r
	}
	return Resolved{Field: name, State: Absent}
}

// Sources are the per-tier inputs for one document.
type Sources struct {
	AI       extraction.Fields `json:"ai"`
	Template extraction.Fields `json:"template"`
	Regex    extraction.Fields `json:"regex"`
	// NERVendor is the named-entity vendor guess. Empty means none.
	NERVendor string `json:"ner_vendor"`
}

// Merger resolves one field map from ranked tiers. A shape-valid value from a
// higher tier always wins; there is no scoring.
type Merger struct{}

func (Merger) Merge(src Sources) Merged {
	ai := src.AI.Canonical()
	tmpl := src.Template.Canonical()
	rgx := src.Regex.Canonical()

	var ner extraction.Fields
	if src.NERVendor != "" {
		ner = extraction.Fields{extraction.FieldVendorName: src.NERVendor}
	}

	tiers := []struct {
		tier   extraction.Tier
		fields extraction.Fields
	}{
		{extraction.TierAI, ai},
		{extraction.TierTemplate, tmpl},
		{extraction.TierRegex, rgx},
		{extraction.TierNER, ner},
	}

	out := Merged{Fields: make(map[string]Resolved, len(extraction.FieldNames))}
	for _, field := range extraction.FieldNames {
		r := Resolved{Field: field, State: Absent}
		for _, t := range tiers {
			if t.tier == extraction.TierNER && field != extraction.FieldVendorName {
				continue
			}
			c, ok := t.fields.Candidate(field, t.tier)
			if !ok {
				r.Attempts = append(r.Attempts, Attempt{Tier: t.tier, State: Absent})
				continue
			}
			if !shapeValid(field, c.Raw) {
				r.Attempts = append(r.Attempts, Attempt{Tier: t.tier, State: Invalid})
				if r.State == Absent {
					r.State = Invalid
					r.Raw = c.Raw
				}
				continue
			}
			r.Attempts = append(r.Attempts, Attempt{Tier: t.tier, State: Valid})
			if r.State != Valid {
				r.State = Valid
				r.Tier = c.Tier
				r.Raw = c.Raw
			}
		}
		out.Fields[field] = r
	}
	return out
}
