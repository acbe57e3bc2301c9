package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dvloznov/banking-analytics/internal/config"
	"github.com/dvloznov/banking-analytics/internal/infra/postgres"
	"github.com/dvloznov/banking-analytics/internal/logger"
	"github.com/dvloznov/banking-analytics/internal/migrate"
	"github.com/dvloznov/banking-analytics/migrations"
	"github.com/rs/zerolog"
)

var (
	configPath = flag.String("config", "", "Path to config.yaml")
	appliedBy  = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	timeout    = flag.Duration("timeout", 5*time.Minute, "Overall timeout")
)

func main() {
	flag.Parse()
	log := logger.New()

	if err := run(log, os.Stdout); err != nil {
		log.Error().Err(err).Msg("Migration failed")
		os.Exit(1)
	}
}

// run applies pending migrations; deferred cleanup completes before main exits.
func run(log zerolog.Logger, w io.Writer) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := postgres.Open(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to Postgres: %w", err)
	}
	defer store.Close()

	log.Info().
		Str("host", cfg.Database.Host).
		Str("database", cfg.Database.Name).
		Msg("Connected to Postgres")

	res, err := migrate.New(store.DB(), migrations.Postgres, "postgres", *appliedBy).Up(ctx)
	if err != nil {
		return err
	}
	report(w, res)
	return nil
}

// report prints one line per migration touched and a closing total.
func report(w io.Writer, res migrate.Result) {
	for _, m := range res.Drifted {
		fmt.Fprintf(w, "  [DRIFT] %04d_%s (checksum changed since it was applied)\n", m.Version, m.Name)
	}
	for _, m := range res.Applied {
		fmt.Fprintf(w, "  [OK]    %04d_%s\n", m.Version, m.Name)
	}
	if len(res.Applied) == 0 {
		fmt.Fprintln(w, "No new migrations to apply. Database is up to date.")
		return
	}
	fmt.Fprintf(w, "Successfully applied %d migration(s)\n", len(res.Applied))
}
