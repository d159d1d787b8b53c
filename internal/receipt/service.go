package receipt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/billrecon/internal/currency"
	"github.com/zombor/billrecon/internal/duplicate"
	"github.com/zombor/billrecon/internal/extraction"
	"github.com/zombor/billrecon/internal/pipeline"
	"github.com/zombor/billrecon/internal/scanning"
)

// ErrHardDuplicate is returned when an upload repeats an invoice that is already stored.
var ErrHardDuplicate = errors.New("hard duplicate")

// Status describes what ProcessUpload did with a document.
type Status string

const (
	Saved            Status = "saved"
	AlreadyProcessed Status = "already_processed"
	Rejected         Status = "rejected"
)

// Outcome is the result of one upload. Result is nil for documents that were
// already processed.
type Outcome struct {
	Status Status           `json:"status"`
	Bill   *Bill            `json:"bill,omitempty"`
	Result *pipeline.Result `json:"result,omitempty"`
}

// IDGenerator generates unique IDs for bills
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Config holds the extraction and conversion collaborators of a Service.
// Zero values fall back to the built-in templates, default rates and the
// header vendor guesser.
type Config struct {
	Templates *extraction.Templates
	Converter *currency.Converter
	Guesser   extraction.VendorGuesser
	Logger    *slog.Logger
}

// Service turns uploaded documents into stored bills.
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	templates   *extraction.Templates
	guesser     extraction.VendorGuesser
	pipeline    *pipeline.Pipeline
	logger      *slog.Logger
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with uuid IDs and the wall clock
func NewService(db DB, scanner scanning.Scanner, storage Storage, cfg Config) (*Service, error) {
	return NewServiceWithDeps(db, scanner, storage, cfg, uuidGenerator{}, defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, cfg Config, idGen IDGenerator, timeSrc TimeSource) (*Service, error) {
	if cfg.Templates == nil {
		t, err := extraction.LoadTemplates("")
		if err != nil {
			return nil, fmt.Errorf("loading templates: %w", err)
		}
		cfg.Templates = t
	}
	if cfg.Converter == nil {
		cfg.Converter = currency.NewConverter(nil)
	}
	if cfg.Guesser == nil {
		cfg.Guesser = extraction.HeaderGuesser{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		templates:   cfg.Templates,
		guesser:     cfg.Guesser,
		pipeline:    pipeline.New(cfg.Converter, db, cfg.Logger),
		logger:      cfg.Logger,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}, nil
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "bill"
	}
	return base + ext
}

// DocumentHash is the hex SHA-256 of a document.
func DocumentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ProcessUpload reconciles an uploaded document and stores the bill.
//
// A document whose hash is already stored returns that bill untouched. A run
// that ends with a fatal pipeline error or a hard duplicate is not stored: the
// outcome is still returned, alongside the error. Soft duplicates are stored
// and flagged.
func (s *Service) ProcessUpload(ctx context.Context, filename string, data []byte, contentType string) (*Outcome, error) {
	hash := DocumentHash(data)
	existing, err := s.db.FindByHash(hash)
	switch {
	case err == nil:
		s.logger.Info("Document already processed", "filename", filename, "bill_id", existing.ID)
		return &Outcome{Status: AlreadyProcessed, Bill: existing}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("looking up document: %w", err)
	}

	key, err := s.storage.Save(hash+"_"+sanitizeFilename(filename), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	scanned, err := s.scanner.Scan(ctx, data, contentType)
	if err != nil {
		s.logger.Error("Failed to scan bill",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.discard(key)
		return nil, fmt.Errorf("scanning bill: %w", err)
	}

	res := s.pipeline.Run(ctx, s.tiers(scanned))
	out := &Outcome{Status: Rejected, Result: &res}

	if res.Fatal != nil {
		s.discard(key)
		return out, fmt.Errorf("reconciling bill: %w", res.Fatal)
	}
	if res.Duplicate.Classification == duplicate.Hard {
		s.discard(key)
		return out, fmt.Errorf("%w of %s: %s", ErrHardDuplicate, res.Duplicate.MatchedID, res.Duplicate.Reason)
	}

	now := s.timeSource.Now()
	rec := &Bill{
		ID:             s.idGenerator.Generate(),
		NormalizedBill: res.Record,
		Filename:       key,
		ContentType:    contentType,
		DocumentHash:   hash,
		DuplicateClass: res.Duplicate.Classification,
		DuplicateOf:    res.Duplicate.MatchedID,
		Validation:     res.Validation,
		Warnings:       res.Warnings,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.SaveBill(rec); err != nil {
		s.discard(key)
		return nil, fmt.Errorf("saving bill to database: %w", err)
	}

	s.logger.Info("Bill saved",
		"bill_id", rec.ID,
		"vendor", rec.VendorName,
		"total_usd", rec.TotalAmount.Decimal.StringFixed(2),
		"duplicate", rec.DuplicateClass,
		"warnings", len(rec.Warnings),
	)
	out.Status = Saved
	out.Bill = rec
	return out, nil
}

// tiers derives the template, regex and vendor-guess tiers from the model's
// transcription.
func (s *Service) tiers(scanned *scanning.Extraction) pipeline.Input {
	in := pipeline.Input{AI: scanned.Fields}
	if scanned.Recovered {
		s.logger.Warn("Model returned malformed JSON, using transcription only")
	}
	if strings.TrimSpace(scanned.RawText) == "" {
		return in
	}

	in.NERVendor = s.guesser.GuessVendor(scanned.RawText)

	hint, _ := scanned.Fields[extraction.FieldVendorName].(string)
	if strings.TrimSpace(hint) == "" {
		hint = in.NERVendor
	}
	if fields, t := s.templates.Extract(scanned.RawText, hint); t != nil {
		s.logger.Debug("Vendor template matched", "vendor_key", t.VendorKey)
		in.Template = fields
	}

	in.Regex = extraction.ExtractGeneric(scanned.RawText)
	return in
}

func (s *Service) discard(key string) {
	if err := s.storage.Delete(key); err != nil {
		s.logger.Warn("Failed to delete file", "filename", key, "error", err)
	}
}

// Reconcile runs the pipeline over caller-supplied tiers without storing anything.
func (s *Service) Reconcile(ctx context.Context, in pipeline.Input) pipeline.Result {
	return s.pipeline.Run(ctx, in)
}

// GetBill retrieves a bill by ID
func (s *Service) GetBill(id string) (*Bill, error) {
	rec, err := s.db.GetBill(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}
	return rec, nil
}

// ListBills returns all bills
func (s *Service) ListBills() ([]*Bill, error) {
	bills, err := s.db.ListBills()
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	return bills, nil
}

// DeleteBill removes a bill and its file
func (s *Service) DeleteBill(id string) error {
	rec, err := s.db.GetBill(id)
	if err != nil {
		return fmt.Errorf("getting bill for deletion: %w", err)
	}

	if err := s.db.DeleteBill(id); err != nil {
		return fmt.Errorf("deleting bill from database: %w", err)
	}
	s.discard(rec.Filename)
	return nil
}

// GetBillFile retrieves the original document for a bill
func (s *Service) GetBillFile(id string) ([]byte, string, error) {
	rec, err := s.db.GetBill(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill: %w", err)
	}

	data, err := s.storage.Get(rec.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill file: %w", err)
	}

	return data, rec.ContentType, nil
}
