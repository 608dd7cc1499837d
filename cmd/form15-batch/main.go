package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/taxforms-extractor/constants"
	"github.com/joseph-ayodele/taxforms-extractor/internal/common"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/classify"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/match"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/ocr"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/ocr/documentai"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/reconcile"
	"github.com/joseph-ayodele/taxforms-extractor/internal/export"
	"github.com/joseph-ayodele/taxforms-extractor/internal/ingest"
	repo "github.com/joseph-ayodele/taxforms-extractor/internal/repository"
	"github.com/joseph-ayodele/taxforms-extractor/internal/schema"
)

type options struct {
	input  string
	out    string
	runID  string
	cfg    *common.Config
	logger *slog.Logger
}

func main() {
	opts := &options{cfg: common.LoadConfig()}
	if err := newRootCommand(opts).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(opts *options) *cobra.Command {
	cfg := opts.cfg
	root := &cobra.Command{
		Use:   "form15-batch",
		Short: "Extract Form 15G/15H declarations from an archive into a spreadsheet",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			slog.SetDefault(logger)
			return nil
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.Schema.File, "schema", cfg.Schema.File, "schema YAML replacing the built-in 15G/15H field lists")
	pf.StringVar(&cfg.Database.DSN, "db", cfg.Database.DSN, "job ledger DSN: a SQLite path or a postgres:// URL (optional)")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	run := &cobra.Command{
		Use:   "run",
		Short: "Process every document of a .zip, .rar or directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd.Context(), opts)
		},
	}
	f := run.Flags()
	f.StringVar(&opts.input, "input", "", "input .zip, .rar or directory (required)")
	f.StringVar(&opts.out, "out", "", "output XLSX path (defaults to <input>.xlsx)")
	f.Float32Var(&cfg.Reconcile.NameConfidence, "name-confidence", cfg.Reconcile.NameConfidence, "minimum OCR confidence of a field name")
	f.Float32Var(&cfg.Reconcile.ValueConfidence, "value-confidence", cfg.Reconcile.ValueConfidence, "minimum OCR confidence of a field value")
	f.IntVar(&cfg.Reconcile.MatchThreshold, "match-threshold", cfg.Reconcile.MatchThreshold, "fuzzy score a label must exceed")
	f.StringVar(&cfg.Reconcile.KeyPrefixStrip, "prefix-strip", cfg.Reconcile.KeyPrefixStrip, "enumeration prefix stripping: anywhere, leading or off")
	f.StringVar(&cfg.OCR.ArtifactCacheDir, "artifacts", cfg.OCR.ArtifactCacheDir, "directory receiving raw Document AI responses")
	_ = run.MarkFlagRequired("input")

	fields := &cobra.Command{
		Use:   "fields [variant]",
		Short: "Print the spreadsheet header of a form variant",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printFields(cmd, opts, args)
		},
	}

	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "Print the ledger rows of a run as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJobs(cmd, opts)
		},
	}
	jobs.Flags().StringVar(&opts.runID, "run", "", "run id printed by a previous batch (required)")
	_ = jobs.MarkFlagRequired("run")

	root.AddCommand(run, fields, jobs)
	return root
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("log level %q", level), common.ErrInvalidInput)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})), nil
}

func loadRegistry(cfg *common.Config) (*schema.Registry, error) {
	if cfg.Schema.File != "" {
		return schema.LoadFile(cfg.Schema.File)
	}
	return schema.Default()
}

func runBatch(ctx context.Context, opts *options) error {
	cfg, logger := opts.cfg, opts.logger
	if err := cfg.Validate(true); err != nil {
		logger.Error("invalid configuration", "err", err)
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	registry, err := loadRegistry(cfg)
	if err != nil {
		logger.Error("failed to load schema", "file", cfg.Schema.File, "err", err)
		return err
	}

	src, err := ingest.Open(opts.input)
	if err != nil {
		logger.Error("failed to open input", "input", opts.input, "err", err)
		return err
	}
	defer src.Close()

	out := opts.out
	if out == "" {
		out = strings.TrimSuffix(opts.input, filepath.Ext(opts.input)) + ".xlsx"
	}
	sheet, err := export.NewSheetWriter(registry, logger)
	if err != nil {
		logger.Error("failed to create workbook", "err", err)
		return err
	}
	defer sheet.Close()

	client, err := documentai.NewClient(ctx, documentai.Config{
		ProjectID:        cfg.OCR.ProjectID,
		Location:         cfg.OCR.Location,
		ProcessorID:      cfg.OCR.ProcessorID,
		Endpoint:         cfg.OCR.Endpoint,
		Timeout:          cfg.OCR.Timeout,
		ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
	}, logger)
	if err != nil {
		logger.Error("failed to create OCR client", "err", err)
		return err
	}
	defer client.Close()

	var jobsRepo repo.ExtractJobRepository
	if cfg.Database.DSN != "" {
		db, err := openLedger(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close(logger)
		jobsRepo = repo.NewExtractJobRepository(db, logger)
	}

	reconciler := reconcile.New(
		client,
		registry,
		match.NewMatcher(registry, cfg.Reconcile.MatchThreshold, logger),
		classify.New(registry),
		ocr.NewNormalizer(cfg.Reconcile.KeyPrefixStrip),
		reconcile.Config{
			NameConfidence:  cfg.Reconcile.NameConfidence,
			ValueConfidence: cfg.Reconcile.ValueConfidence,
			PageCap:         cfg.Reconcile.PageCap,
			VariantPageCap:  cfg.Reconcile.VariantPageCap,
		},
		logger,
	)
	processor := core.NewProcessor(logger, reconciler, sheet, jobsRepo)

	runID, stats, err := processor.ProcessSource(ctx, src)
	if err := saveWorkbook(logger, sheet, out, runID, err); err != nil {
		return err
	}

	fmt.Printf("run %s: scanned=%d processed=%d failed=%d skipped=%d -> %s\n",
		runID, stats.Scanned, stats.Processed, stats.Failed, stats.Skipped, out)
	return nil
}

// saveWorkbook writes the rows reconciled so far, including when the walk
// stopped early, and hands back walkErr.
func saveWorkbook(logger *slog.Logger, sheet *export.SheetWriter, out string, runID uuid.UUID, walkErr error) error {
	if walkErr != nil {
		logger.Error("batch aborted", "run_id", runID, "rows", sheet.Rows(), "err", walkErr)
		if sheet.Rows() == 0 {
			return walkErr
		}
	}
	if err := sheet.SaveAs(out); err != nil {
		logger.Error("failed to save workbook", "path", out, "err", err)
		return errors.Join(walkErr, err)
	}
	if walkErr != nil {
		logger.Warn("partial workbook saved", "run_id", runID, "path", out, "rows", sheet.Rows())
	}
	return walkErr
}

func openLedger(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*repo.DB, error) {
	db, err := repo.Open(ctx, repo.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open job ledger", "err", err)
		return nil, err
	}
	return db, nil
}

func printFields(cmd *cobra.Command, opts *options, args []string) error {
	registry, err := loadRegistry(opts.cfg)
	if err != nil {
		return err
	}
	variants := registry.Variants()
	if len(args) == 1 {
		v, ok := constants.ParseVariant(args[0])
		if !ok {
			v = constants.FormVariant(args[0])
		}
		variants = []constants.FormVariant{v}
	}
	w := cmd.OutOrStdout()
	for _, v := range variants {
		names, err := registry.AllFieldNames(v)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "# %s\n", v)
		for i, n := range names {
			fmt.Fprintf(w, "%d\t%s\n", i+1, n)
		}
	}
	return nil
}

func printJobs(cmd *cobra.Command, opts *options) error {
	if opts.cfg.Database.DSN == "" {
		return common.NewAppError("CONFIG_ERROR", "--db or DB_URL is required", common.ErrInvalidInput)
	}
	runID, err := uuid.Parse(opts.runID)
	if err != nil {
		return common.NewAppError("INVALID_INPUT", "run id", err)
	}
	db, err := openLedger(cmd.Context(), opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer db.Close(opts.logger)

	jobs, err := repo.NewExtractJobRepository(db, opts.logger).ListByRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(jobs)
}
