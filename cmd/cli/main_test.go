package main

import (
	"bytes"
	"errors"
	"flag"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dvloznov/banking-analytics/internal/config"
	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/generator"
	"github.com/dvloznov/banking-analytics/internal/metrics"
	"github.com/dvloznov/banking-analytics/internal/staging"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantKind string
		wantURI  string
		wantSeed uint64
		wantErr  bool
	}{
		{name: "no flags", args: nil, wantKind: config.SourceGenerate, wantSeed: 42},
		{name: "seed", args: []string{"-seed", "7"}, wantKind: config.SourceGenerate, wantSeed: 7},
		{name: "csv uri implies csv source", args: []string{"-csv-uri", "gs://landing/2024"}, wantKind: config.SourceCSV, wantURI: "gs://landing/2024", wantSeed: 42},
		{name: "csv source without uri", args: []string{"-source", "csv"}, wantErr: true},
		{name: "unknown source", args: []string{"-source", "kafka"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			f, set, err := parseRunFlags(tt.args)
			require.NoError(t, err)

			err = applyOverrides(cfg, f, set)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, cfg.Source.Kind)
			assert.Equal(t, tt.wantURI, cfg.Source.CSVURI)
			assert.Equal(t, tt.wantSeed, cfg.Generator.Seed)
		})
	}
}

func TestParseRunFlags_DryRun(t *testing.T) {
	f, set, err := parseRunFlags([]string{"-dry-run", "-timeout", "5m"})
	require.NoError(t, err)
	assert.True(t, f.dryRun)
	assert.Equal(t, 5*time.Minute, f.timeout)
	assert.False(t, set["seed"])
}

func TestDatasetSource(t *testing.T) {
	cfg := defaultConfig(t)
	src, err := datasetSource(cfg, nil, time.Now())
	require.NoError(t, err)
	assert.IsType(t, &generator.Generator{}, src)

	cfg.Source.Kind, cfg.Source.CSVURI = config.SourceCSV, "/data/landing"
	src, err = datasetSource(cfg, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, &staging.CSVSource{URI: "/data/landing"}, src)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, domain.FactSummary{
		TotalTransactions: 4,
		TotalAmountRub:    decimal.RequireFromString("7759.375"),
		AvgAmountRub:      decimal.RequireFromString("1939.84375"),
	})
	assert.Equal(t, "Fact table summary:\n"+
		"  Total transactions: 4\n"+
		"  Total amount (RUB): 7759.38\n"+
		"  Average amount (RUB): 1939.84\n", buf.String())
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	for _, cmd := range []string{"run", "migrate", "rates", "summary", "help"} {
		assert.Contains(t, buf.String(), "  "+cmd)
	}
}

func TestExitCode(t *testing.T) {
	_, _, badFlag := parseRunFlags([]string{"-no-such-flag"})
	_, _, help := parseRunFlags([]string{"-h"})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"help", help, 0},
		{"bad flag", badFlag, 2},
		{"failure", errors.New("pipeline step 1 (source) failed"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
	assert.ErrorIs(t, help, flag.ErrHelp)
}

func TestRunPipeline_ReturnsErrorInsteadOfExiting(t *testing.T) {
	t.Chdir(t.TempDir())

	err := runPipeline(zerolog.Nop(), []string{"-dry-run", "-source", "kafka"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid options")
	assert.Equal(t, 1, exitCode(err))
}

func TestMetricsMux(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.FactsLoaded.Add(4)

	rec := httptest.NewRecorder()
	metricsMux(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "banketl_facts_loaded_total 4")

	rec = httptest.NewRecorder()
	metricsMux(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
