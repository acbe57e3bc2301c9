package staging

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/banking-analytics/internal/domain"
	"github.com/dvloznov/banking-analytics/internal/logger"
)

// Fetcher downloads an object by gs:// URI.
type Fetcher interface {
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// CSVSource reads a dataset from customers.csv, accounts.csv,
// transactions.csv and branches.csv under URI, which is either a local
// directory or a gs://bucket/prefix.
type CSVSource struct {
	URI     string
	Fetcher Fetcher
}

// Dataset reads and decodes the four files.
func (s *CSVSource) Dataset(ctx context.Context) (*domain.Dataset, error) {
	log := logger.FromContext(ctx)
	log.Info().Str("uri", s.URI).Msg("Reading dataset from CSV")

	ds, err := ReadDataset(func(name string) (io.ReadCloser, error) {
		return s.open(ctx, name)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("customers", len(ds.Customers)).
		Int("accounts", len(ds.Accounts)).
		Int("transactions", len(ds.Transactions)).
		Int("branches", len(ds.Branches)).
		Msg("Read dataset from CSV")
	return ds, nil
}

func (s *CSVSource) open(ctx context.Context, name string) (io.ReadCloser, error) {
	if strings.HasPrefix(s.URI, "gs://") {
		data, err := s.Fetcher.FetchFromGCS(ctx, strings.TrimSuffix(s.URI, "/")+"/"+name)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return os.Open(filepath.Join(s.URI, name))
}
