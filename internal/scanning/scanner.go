package scanning

import (
	"context"

	"github.com/zombor/billrecon/internal/extraction"
)

// Extraction is the AI tier's output for one document.
type Extraction struct {
	// Fields holds the structured guess, keyed by canonical field name. It is
	// empty when the model's JSON could not be parsed.
	Fields extraction.Fields
	// RawText is the model's transcription of the document, used by the
	// template, regex and vendor-guess tiers.
	RawText string
	// Recovered is set when the JSON was malformed and only RawText was salvaged.
	Recovered bool
}

// Scanner sends a document to a vision model and returns its extraction.
type Scanner interface {
	Scan(ctx context.Context, data []byte, contentType string) (*Extraction, error)
	// Close releases any client resources.
	Close() error
}
