package pipeline

import (
	"encoding/json"
	"fmt"
)

// Kind enumerates every way a pipeline run can report a problem.
type Kind string

const (
	ParseFailure        Kind = "parse_failure"
	ValidationMismatch  Kind = "validation_mismatch"
	DuplicateFound      Kind = "duplicate_found"
	UnsupportedCurrency Kind = "unsupported_currency"
	StorageFailure      Kind = "storage_failure"
)

// Warning is a non-fatal finding. Warnings are kept in stage order.
type Warning struct {
	Kind    Kind   `json:"kind"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// FatalError halts the stages after the one that produced it.
type FatalError struct {
	Kind Kind
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func (e *FatalError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
	}{e.Kind, e.Err.Error()})
}
