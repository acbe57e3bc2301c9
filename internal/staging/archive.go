package staging

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/dvloznov/banking-analytics/internal/logger"
	"github.com/dvloznov/banking-analytics/internal/warehouse"
)

// Uploader stores an object in a bucket.
type Uploader interface {
	UploadBytes(ctx context.Context, bucketName, objectName, contentType string, data []byte) error
}

// Archiver copies staged tables to object storage as CSV.
type Archiver struct {
	Uploader Uploader
	Bucket   string
	Prefix   string
}

// ObjectName returns <prefix>/<runID>/<table>.csv.
func (a *Archiver) ObjectName(runID string, spec warehouse.TableSpec) string {
	return path.Join(a.Prefix, runID, FileName(spec))
}

// Archive uploads every table and returns the gs:// URIs written.
func (a *Archiver) Archive(ctx context.Context, runID string, tables []*warehouse.Table) ([]string, error) {
	log := logger.FromContext(ctx)
	uris := make([]string, 0, len(tables))

	for _, t := range tables {
		var buf bytes.Buffer
		if err := WriteCSV(&buf, t); err != nil {
			return uris, fmt.Errorf("Archive: encoding %s: %w", t.Spec.QualifiedName(), err)
		}
		object := a.ObjectName(runID, t.Spec)
		if err := a.Uploader.UploadBytes(ctx, a.Bucket, object, "text/csv", buf.Bytes()); err != nil {
			return uris, fmt.Errorf("Archive: uploading %s: %w", object, err)
		}
		uri := fmt.Sprintf("gs://%s/%s", a.Bucket, object)
		uris = append(uris, uri)
		log.Debug().Str("uri", uri).Int("rows", t.Len()).Msg("Archived table")
	}

	log.Info().Int("objects", len(uris)).Str("bucket", a.Bucket).Msg("Archived staged tables")
	return uris, nil
}
