package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/dvloznov/banking-analytics/internal/config"
	"github.com/dvloznov/banking-analytics/internal/currency"
	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/gcsuploader"
	"github.com/dvloznov/banking-analytics/internal/generator"
	infraBQ "github.com/dvloznov/banking-analytics/internal/infra/bigquery"
	"github.com/dvloznov/banking-analytics/internal/infra/postgres"
	"github.com/dvloznov/banking-analytics/internal/logger"
	"github.com/dvloznov/banking-analytics/internal/metrics"
	"github.com/dvloznov/banking-analytics/internal/migrate"
	"github.com/dvloznov/banking-analytics/internal/pipeline"
	"github.com/dvloznov/banking-analytics/internal/staging"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
	"github.com/dvloznov/banking-analytics/internal/warehouse/memory"
	"github.com/dvloznov/banking-analytics/migrations"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runPipeline(log, os.Args[2:])
	case "migrate":
		err = runMigrate(log, os.Args[2:])
	case "rates":
		err = runRates(log, os.Args[2:])
	case "summary":
		err = runSummary(log, os.Args[2:])
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	code := exitCode(err)
	if code == 1 {
		log.Error().Err(err).Str("command", os.Args[1]).Msg("Command failed")
	}
	os.Exit(code)
}

// exitCode maps a command's error to the process status: 0 on success or
// -h, 2 for bad flags, 1 otherwise.
func exitCode(err error) int {
	var usage usageError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, &usage):
		return 2
	default:
		return 1
	}
}

// usageError marks a flag parsing failure; the flag set has already printed it.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{err}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Banking Analytics ETL")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  cli <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  run       Generate or import data and load the warehouse")
	fmt.Fprintln(w, "  migrate   Apply pending schema migrations")
	fmt.Fprintln(w, "  rates     Fetch and print today's exchange rates")
	fmt.Fprintln(w, "  summary   Print the fact table summary")
	fmt.Fprintln(w, "  help      Show this help message")
	fmt.Fprintln(w, "\nRun 'cli <command> -h' for more information on a command.")
}

// runFlags are the overrides accepted by the run command.
type runFlags struct {
	configPath  string
	dryRun      bool
	seed        uint64
	source      string
	csvURI      string
	timeout     time.Duration
	metricsAddr string
}

func parseRunFlags(args []string) (runFlags, map[string]bool, error) {
	var f runFlags
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to config.yaml")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Use an in-memory warehouse instead of Postgres")
	fs.Uint64Var(&f.seed, "seed", 0, "Generator seed (overrides config)")
	fs.StringVar(&f.source, "source", "", "Dataset source: generate or csv (overrides config)")
	fs.StringVar(&f.csvURI, "csv-uri", "", "Directory or gs:// prefix holding the CSV dataset")
	fs.DurationVar(&f.timeout, "timeout", 30*time.Minute, "Overall run timeout")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics on this address while the run lasts (e.g. :9090)")
	if err := parseFlags(fs, args); err != nil {
		return f, nil, err
	}
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// applyOverrides copies explicitly set flags onto cfg.
func applyOverrides(cfg *config.Config, f runFlags, set map[string]bool) error {
	if set["seed"] {
		cfg.Generator.Seed = f.seed
	}
	if set["source"] {
		cfg.Source.Kind = f.source
	}
	if set["csv-uri"] {
		cfg.Source.CSVURI = f.csvURI
		if !set["source"] {
			cfg.Source.Kind = config.SourceCSV
		}
	}
	return cfg.Validate()
}

func runPipeline(log zerolog.Logger, args []string) error {
	f, set, err := parseRunFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := applyOverrides(cfg, f, set); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	log = logger.WithFields(logger.NewWithLevel(cfg.Log.Level), map[string]interface{}{
		"app": cfg.App.Name,
		"env": cfg.App.Env,
	})

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	now := time.Now()
	dateStart, err := cfg.DateDimension.StartDate()
	if err != nil {
		return fmt.Errorf("date dimension start: %w", err)
	}
	dateEnd, err := cfg.DateDimension.EndDate(now)
	if err != nil {
		return fmt.Errorf("date dimension end: %w", err)
	}

	store, err := openStore(ctx, cfg, f.dryRun)
	if err != nil {
		return fmt.Errorf("opening warehouse: %w", err)
	}
	defer store.Close()

	reg := metrics.NewRegistry()
	if f.metricsAddr != "" {
		stop := serveMetrics(ctx, f.metricsAddr, reg)
		defer stop()
	}

	gcs := gcsuploader.NewGCSStorageService()
	source, err := datasetSource(cfg, gcs, now)
	if err != nil {
		return fmt.Errorf("configuring dataset source: %w", err)
	}

	rates := currency.NewClient(cfg.Rates.URL, cfg.Rates.Timeout)
	rates.OnFallback = func(error) { reg.RateFallback.Inc() }

	opts := pipeline.Options{
		Source:    source,
		Rates:     rates,
		Store:     store,
		Metrics:   reg,
		PushURL:   cfg.Metrics.PushgatewayURL,
		PushJob:   cfg.Metrics.Job,
		DateStart: dateStart,
		DateEnd:   dateEnd,
		Rand:      rand.New(rand.NewPCG(cfg.Generator.Seed, uint64(now.UnixNano()))),
	}
	if cfg.Archive.Bucket != "" {
		opts.Archiver = &staging.Archiver{Uploader: gcs, Bucket: cfg.Archive.Bucket, Prefix: cfg.Archive.Prefix}
	}
	if cfg.BigQuery.Enabled {
		exporter, err := infraBQ.NewExporter(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset)
		if err != nil {
			return fmt.Errorf("creating BigQuery exporter: %w", err)
		}
		defer exporter.Close()
		opts.Exporter = exporter
	}

	log.Info().
		Str("version", cfg.App.Version).
		Str("source", cfg.Source.Kind).
		Bool("dry_run", f.dryRun).
		Msg("Starting ETL pipeline")

	state, err := pipeline.NewRunner(opts).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s completed.\n", state.RunID)
	printSummary(os.Stdout, state.Summary)
	return nil
}

// metricsMux exposes the registry at /metrics.
func metricsMux(reg *metrics.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	return mux
}

// serveMetrics serves /metrics on addr until the returned stop is called.
func serveMetrics(ctx context.Context, addr string, reg *metrics.Registry) (stop func()) {
	log := logger.FromContext(ctx)
	srv := &http.Server{Addr: addr, Handler: metricsMux(reg), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("Serving /metrics")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown")
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, dryRun bool) (warehouse.Store, error) {
	if dryRun {
		log := logger.FromContext(ctx)
		log.Warn().Msg("Dry run: loading into an in-memory warehouse")
		return memory.New(), nil
	}
	return postgres.Open(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
}

func datasetSource(cfg *config.Config, fetcher staging.Fetcher, now time.Time) (pipeline.DatasetSource, error) {
	if cfg.Source.Kind == config.SourceCSV {
		return &staging.CSVSource{URI: cfg.Source.CSVURI, Fetcher: fetcher}, nil
	}
	return generator.New(generator.Options{
		Seed:            cfg.Generator.Seed,
		Locale:          cfg.Generator.Locale,
		NumCustomers:    cfg.Generator.NumCustomers,
		NumTransactions: cfg.Generator.NumTransactions,
		NumBranches:     cfg.Generator.NumBranches,
		Now:             now,
	})
}

func printSummary(w io.Writer, s domain.FactSummary) {
	fmt.Fprintln(w, "Fact table summary:")
	fmt.Fprintf(w, "  Total transactions: %d\n", s.TotalTransactions)
	fmt.Fprintf(w, "  Total amount (RUB): %s\n", s.TotalAmountRub.StringFixed(2))
	fmt.Fprintf(w, "  Average amount (RUB): %s\n", s.AvgAmountRub.StringFixed(2))
}

func runMigrate(log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config.yaml")
	appliedBy := fs.String("applied-by", "cli", "Name recorded in schema_migrations.applied_by")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	ctx := logger.WithContext(context.Background(), log)

	store, err := postgres.Open(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to Postgres: %w", err)
	}
	defer store.Close()

	res, err := migrate.New(store.DB(), migrations.Postgres, "postgres", *appliedBy).Up(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Printf("Applied %d, skipped %d, drifted %d migration(s).\n", len(res.Applied), res.Skipped, len(res.Drifted))
	return nil
}

func runRates(log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("rates", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config.yaml")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	ctx := logger.WithContext(context.Background(), log)

	client := currency.NewClient(cfg.Rates.URL, cfg.Rates.Timeout)
	fallback := false
	client.OnFallback = func(error) { fallback = true }
	snap := client.GetExchangeRates(ctx)

	fmt.Printf("Date:       %s\n", snap.Date.Format(time.DateOnly))
	fmt.Printf("USD -> RUB: %s\n", snap.UsdToRub)
	fmt.Printf("EUR -> RUB: %s\n", snap.EurToRub)
	fmt.Printf("USD -> EUR: %s\n", snap.UsdToEur)
	if fallback {
		fmt.Println("(fallback rates: the rate feed was unavailable)")
	}
	return nil
}

func runSummary(log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config.yaml")
	runID := fs.String("run-id", "", "Also report the BigQuery fact rows exported by this run")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := postgres.Open(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to Postgres: %w", err)
	}
	defer store.Close()

	summary, err := store.FactSummary(ctx)
	if err != nil {
		return fmt.Errorf("reading fact summary: %w", err)
	}
	printSummary(os.Stdout, summary)

	if *runID == "" {
		return nil
	}
	if !cfg.BigQuery.Enabled {
		log.Warn().Msg("BigQuery export is disabled; skipping exported row count")
		return nil
	}
	exporter, err := infraBQ.NewExporter(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset)
	if err != nil {
		return fmt.Errorf("creating BigQuery exporter: %w", err)
	}
	defer exporter.Close()

	n, err := exporter.FactCount(ctx, *runID)
	if err != nil {
		return fmt.Errorf("counting exported facts: %w", err)
	}
	fmt.Printf("  Exported to BigQuery (run %s): %d\n", *runID, n)
	return nil
}
