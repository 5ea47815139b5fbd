package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/insightdelivered/statement-ledger/internal/alerts"
	"github.com/insightdelivered/statement-ledger/internal/api"
	"github.com/insightdelivered/statement-ledger/internal/config"
	"github.com/insightdelivered/statement-ledger/internal/extractor"
	"github.com/insightdelivered/statement-ledger/internal/ledger"
	"github.com/insightdelivered/statement-ledger/internal/logger"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/parser"
	"github.com/insightdelivered/statement-ledger/internal/store"
	"github.com/insightdelivered/statement-ledger/internal/writer"
)

const version = "2.0.0"

func main() {
	// CLI flags
	templateFlag := flag.String("template", "", "Statement template: simplii (auto-detected if omitted)")
	outputFlag := flag.String("output", "", "Output file path (defaults to input filename with .csv or .json extension)")
	formatFlag := flag.String("format", "csv", "Output format: csv or json")
	headerFlag := flag.Bool("header", true, "Include template and statement period header rows in CSV")
	debugFlag := flag.Bool("debug", false, "Print every reconstructed line and whether it parsed")
	serveFlag := flag.Bool("serve", false, "Run the HTTP API instead of converting files")
	tokenFlag := flag.String("issue-token", "", "Print a bearer token for the given user id and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Show usage help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Statement Ledger
by Insight Delivered (QEA AutoLens)

Turns credit card statement PDFs into reviewable transactions, and runs
the ledger API that finalizes them and tracks budget alerts.

Usage:
  statement-ledger [flags] <statement.pdf|statement.txt> [...]
  statement-ledger -serve
  statement-ledger -issue-token <user-id>

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Parse a statement to CSV
  statement-ledger statement.pdf

  # JSON output with per-line debug information
  statement-ledger -format=json -debug statement.pdf

  # Start the API (configured from the environment or .env)
  statement-ledger -serve

Supported Templates:
  simplii   - Simplii Financial credit card ("Dec 31 Jan 03 MERCHANT Category 12.34")
`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("statement-ledger v%s\n", version)
		os.Exit(0)
	}

	log := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	logger.SetDefault(log)
	cfg := config.Load(log)
	log = logger.New(cfg.LogLevel, cfg.LogFormat)
	logger.SetDefault(log)

	if *tokenFlag != "" {
		token, err := api.NewAuthService(cfg.JWTSecret).GenerateToken(*tokenFlag, 24*time.Hour)
		if err != nil {
			fatalf("Failed to issue token: %v\n", err)
		}
		fmt.Println(token)
		return
	}

	if *serveFlag {
		if err := serve(cfg); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
		return
	}

	if *helpFlag || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	format := strings.ToLower(*formatFlag)
	if format != "csv" && format != "json" {
		fatalf("Unknown format %q. Supported: csv, json\n", *formatFlag)
	}

	template := models.Template(strings.ToLower(*templateFlag))

	parserCfg := parser.DefaultConfig().WithCategories(cfg.Categories)

	inputFiles := flag.Args()
	if *outputFlag != "" && len(inputFiles) > 1 {
		fatalf("--output can only be used with a single input file\n")
	}

	// Process each input file
	for _, inputPath := range inputFiles {
		opts := fileOptions{
			template: template,
			parser:   parserCfg,
			output:   *outputFlag,
			format:   format,
			header:   *headerFlag,
			debug:    *debugFlag,
		}
		if err := processFile(inputPath, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", inputPath, err)
			os.Exit(1)
		}
	}
}

type fileOptions struct {
	template models.Template
	parser   parser.Config
	output   string
	format   string
	header   bool
	debug    bool
}

func processFile(inputPath string, opts fileOptions) error {
	// Validate input file
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}

	fmt.Printf("Processing: %s\n", inputPath)

	var text string
	switch ext := strings.ToLower(filepath.Ext(inputPath)); ext {
	case ".pdf":
		extracted, err := extractor.ExtractFile(inputPath)
		if err != nil {
			return fmt.Errorf("PDF extraction failed: %w", err)
		}
		text = extracted
	case ".txt":
		data, err := os.ReadFile(inputPath)
		if err != nil {
			return err
		}
		text = string(data)
	default:
		return fmt.Errorf("expected .pdf or .txt file, got %q", ext)
	}

	fmt.Printf("  Extracted %d characters of text\n", len(text))

	// Auto-detect template if not specified
	template := opts.template
	if template == "" {
		detected, err := parser.AutoDetect(text)
		if err != nil {
			return err
		}
		template = detected
		fmt.Printf("  Auto-detected template: %s\n", template)
	}

	p, err := parser.New(template, opts.parser)
	if err != nil {
		return err
	}

	fmt.Printf("  Using %s parser\n", p.Name())

	result := p.Parse(context.Background(), text)

	fmt.Printf("  Found %d transaction(s)\n", len(result.Transactions))

	if len(result.Transactions) == 0 {
		fmt.Println("  Warning: No transactions found. The PDF format may not match expected patterns.")
		fmt.Println("  Re-run with --debug to see how each line was read.")
	}

	if opts.debug {
		for _, dl := range result.DebugLines {
			fmt.Printf("  [%3d] %-8s %s\n", dl.LineNum, dl.Result, dl.Text)
		}
	}

	outPath := opts.output
	if outPath == "" {
		outPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + "." + opts.format
	}

	if opts.format == "json" {
		if err := writeJSON(outPath, result); err != nil {
			return fmt.Errorf("JSON write failed: %w", err)
		}
	} else {
		w := &writer.CSVWriter{IncludeHeader: opts.header}
		if err := w.WriteCandidatesToFile(outPath, result); err != nil {
			return fmt.Errorf("CSV write failed: %w", err)
		}
	}

	fmt.Printf("  Output: %s\n", outPath)

	if result.Period != nil {
		fmt.Printf("  Period: %s to %s\n", result.Period.StartDate, result.Period.EndDate)
	}

	fmt.Println("  Done.")
	return nil
}

func writeJSON(path string, result *models.ParseResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer f.Close()

	out := struct {
		*models.ParseResult
		Period *models.StatementPeriod `json:"statementPeriod,omitempty"`
	}{result, result.Period}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func serve(cfg *config.AppConfig) error {
	log := logger.Default()

	var st store.Store
	if cfg.DatabasePath != "" {
		sqlite, err := store.OpenSQLite(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		log.Info().Str("path", cfg.DatabasePath).Msg("using SQLite store")
		st = sqlite
	} else {
		log.Warn().Msg("DATABASE_PATH not set, using in-memory store")
		st = store.NewMemoryStore()
	}
	defer st.Close()

	engine := alerts.NewEngine(st, cfg.AlertThreshold)
	handler := api.NewHandler(api.Deps{
		Store:         st,
		Finalizer:     ledger.NewFinalizer(st, engine, ledger.Options{FallbackYear: cfg.FallbackYear}),
		Engine:        engine,
		Drafts:        api.NewDraftCache(cfg.DraftTTL),
		Parser:        parser.DefaultConfig().WithCategories(cfg.Categories),
		Template:      models.Template(cfg.StatementTemplate),
		MaxUploadSize: cfg.MaxUploadSizeBytes,
	})
	app := api.NewApp(handler, api.NewAuthService(cfg.JWTSecret), log)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("version", version).Msg("starting server")
	return app.Listen(":" + cfg.Port)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
