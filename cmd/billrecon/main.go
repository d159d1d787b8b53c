package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/billrecon/internal/currency"
	"github.com/zombor/billrecon/internal/extraction"
	"github.com/zombor/billrecon/internal/receipt"
	"github.com/zombor/billrecon/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (text or json)", format)
	}
}

func main() {
	// Check version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("billrecon")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "billrecon.db", "Database file path")
		storagePath  = fs.StringLong("storage", "./bills", "Document storage directory")
		scannerType  = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		templatesDir = fs.StringLong("templates-dir", "", "Directory of vendor template JSON files (overrides built-ins)")
		ratesFile    = fs.StringLong("rates-file", "", "JSON file of USD exchange rates merged over the defaults")
		logLevel     = fs.StringLong("log-level", "info", "Log level: debug, info, warn, error")
		logFormat    = fs.StringLong("log-format", "text", "Log format: text or json")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILLRECON"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config{
		port:         *port,
		dbPath:       *dbPath,
		storagePath:  *storagePath,
		scannerType:  *scannerType,
		geminiKey:    *geminiKey,
		geminiModel:  *geminiModel,
		ollamaURL:    *ollamaURL,
		ollamaModel:  *ollamaModel,
		templatesDir: *templatesDir,
		ratesFile:    *ratesFile,
	}); err != nil {
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

type config struct {
	port         int
	dbPath       string
	storagePath  string
	scannerType  string
	geminiKey    string
	geminiModel  string
	ollamaURL    string
	ollamaModel  string
	templatesDir string
	ratesFile    string
}

func newScanner(ctx context.Context, cfg config) (scanning.Scanner, error) {
	switch cfg.scannerType {
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.geminiModel)
		return scanning.NewGemini(ctx, apiKey, cfg.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	default:
		return nil, fmt.Errorf("invalid scanner type %q (gemini or ollama)", cfg.scannerType)
	}
}

func run(ctx context.Context, cfg config) error {
	slog.Info("Initializing database...", "path", cfg.dbPath)
	db, err := receipt.NewBoltDB(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	scanner, err := newScanner(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing scanner: %w", err)
	}
	defer scanner.Close()

	store, err := receipt.NewLocalStorage(cfg.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	templates, err := extraction.LoadTemplates(cfg.templatesDir)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}
	rates, err := currency.LoadRates(cfg.ratesFile)
	if err != nil {
		return fmt.Errorf("loading rates: %w", err)
	}
	slog.Info("Reconciliation configured", "templates", templates.Len(), "currencies", strings.Join(rates.Codes(), ","))

	service, err := receipt.NewService(db, scanner, store, receipt.Config{
		Templates: templates,
		Converter: currency.NewConverter(rates),
	})
	if err != nil {
		return err
	}

	server := receipt.NewServer(service, version)
	addr := fmt.Sprintf(":%d", cfg.port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)

	if err := server.Start(ctx, addr); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("Shutting down...")
	return nil
}
