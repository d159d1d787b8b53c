package receipt

import (
	"time"

	"github.com/zombor/billrecon/internal/bill"
	"github.com/zombor/billrecon/internal/duplicate"
	"github.com/zombor/billrecon/internal/pipeline"
	"github.com/zombor/billrecon/internal/validation"
)

// Bill is a reconciled bill as stored, together with the document it came from.
type Bill struct {
	ID string `json:"id"`
	bill.NormalizedBill
	Filename     string `json:"filename"`
	ContentType  string `json:"content_type"`
	DocumentHash string `json:"document_hash"`
	// DuplicateClass is the detector's verdict when the bill was saved. Only
	// none and soft are ever stored.
	DuplicateClass duplicate.Classification `json:"duplicate_class"`
	DuplicateOf    string                   `json:"duplicate_of,omitempty"`
	Validation     *validation.Result       `json:"validation,omitempty"`
	Warnings       []pipeline.Warning       `json:"warnings"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

// Summary returns the view of b the duplicate detector compares against.
func (b *Bill) Summary() bill.Summary {
	return b.NormalizedBill.Summarize(b.ID)
}
