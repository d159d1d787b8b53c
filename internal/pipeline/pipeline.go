package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zombor/billrecon/internal/bill"
	"github.com/zombor/billrecon/internal/currency"
	"github.com/zombor/billrecon/internal/duplicate"
	"github.com/zombor/billrecon/internal/reconcile"
	"github.com/zombor/billrecon/internal/validation"
)

// Input carries every tier's extraction for one document.
type Input = reconcile.Sources

// Result is everything one run produced. Validation and Duplicate are nil when
// a fatal error stopped the run before those stages.
type Result struct {
	Record     bill.NormalizedBill           `json:"record"`
	Provenance map[string]reconcile.Resolved `json:"provenance"`
	Validation *validation.Result            `json:"validation,omitempty"`
	Duplicate  *duplicate.Verdict            `json:"duplicate,omitempty"`
	Warnings   []Warning                     `json:"warnings"`
	Fatal      *FatalError                   `json:"fatal_error,omitempty"`
}

// Err returns the fatal error, or nil.
func (r Result) Err() error {
	if r.Fatal == nil {
		return nil
	}
	return r.Fatal
}

// Pipeline runs merge, normalize, convert, validate and duplicate detection in
// that order. Only an unsupported currency or a failed record query stops it
// early. A Pipeline holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	merger     reconcile.Merger
	normalizer reconcile.Normalizer
	converter  *currency.Converter
	validator  validation.Validator
	detector   *duplicate.Detector
	logger     *slog.Logger
}

func New(converter *currency.Converter, records duplicate.RecordQuery, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		converter: converter,
		detector:  duplicate.NewDetector(records),
		logger:    logger,
	}
}

func (p *Pipeline) Run(ctx context.Context, in Input) Result {
	var res Result

	merged := p.merger.Merge(in)
	res.Provenance = merged.Fields

	normalized, issues := p.normalizer.Normalize(merged)
	for _, is := range issues {
		kind := ParseFailure
		if is.Kind == reconcile.IssueItemArithmetic {
			kind = ValidationMismatch
		}
		res.Warnings = append(res.Warnings, Warning{Kind: kind, Field: is.Field, Message: is.Message})
	}
	res.Record = normalized

	converted, err := p.converter.Convert(normalized)
	if err != nil {
		res.Fatal = &FatalError{Kind: UnsupportedCurrency, Err: err}
		p.logger.Warn("pipeline stopped", "kind", UnsupportedCurrency, "currency", normalized.Currency)
		return res
	}
	res.Record = converted

	v := p.validator.Validate(converted)
	res.Validation = &v
	switch {
	case !v.Comparable():
		res.Warnings = append(res.Warnings, Warning{
			Kind:    ValidationMismatch,
			Field:   "total_amount",
			Message: "nothing to compare: total or line items/subtotal missing",
		})
	case !v.IsValid:
		res.Warnings = append(res.Warnings, Warning{
			Kind:  ValidationMismatch,
			Field: "total_amount",
			Message: fmt.Sprintf("%s total does not match under either pricing model: discrepancy %s exceeds tolerance %s",
				v.Basis, v.Discrepancy.StringFixed(2), v.Tolerance.StringFixed(2)),
		})
	}

	verdict, err := p.detector.Check(ctx, converted)
	if err != nil {
		res.Fatal = &FatalError{Kind: StorageFailure, Err: err}
		p.logger.Error("duplicate check failed", "error", err)
		return res
	}
	res.Duplicate = &verdict
	if verdict.Classification != duplicate.None {
		res.Warnings = append(res.Warnings, Warning{
			Kind:    DuplicateFound,
			Message: fmt.Sprintf("%s duplicate of %s: %s", verdict.Classification, verdict.MatchedID, verdict.Reason),
		})
	}

	p.logger.Debug("pipeline finished",
		"vendor", converted.VendorName,
		"model", v.ModelUsed,
		"duplicate", verdict.Classification,
		"warnings", len(res.Warnings),
	)
	return res
}
