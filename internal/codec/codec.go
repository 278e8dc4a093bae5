package codec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"invnorm/internal/domain"
)

// ErrMissingHeader is returned when the input lacks a required column. It is
// the only input condition that aborts a whole run.
var ErrMissingHeader = errors.New("missing required header")

// Importer turns a tabular source into a batch of raw records
type Importer interface {
	Parse(r io.Reader, source string) (*domain.Batch, error)
	Format() string
}

// RecordExporter writes normalized records in one format
type RecordExporter interface {
	ExportRecords(records []*domain.NormalizedRecord, w io.Writer) error
	Format() string
}

// ExporterFor returns the record exporter for a format name
func ExporterFor(format string) (RecordExporter, error) {
	switch format {
	case "csv":
		return NewCSVCodec(), nil
	case "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	default:
		return nil, fmt.Errorf("unknown record format %q", format)
	}
}

// ArtifactPaths names the files written at the end of a run. Empty paths
// are skipped.
type ArtifactPaths struct {
	CleanCSV  string
	Anomalies string
	AuditLog  string
	YAML      string
	JSON      string
}

// Artifacts is the content written to ArtifactPaths
type Artifacts struct {
	Records   []*domain.NormalizedRecord
	Anomalies []domain.AnomalyEntry
	Audit     []domain.AuditEntry
	AuditMeta AuditMeta
}

// WriteArtifacts writes every configured artifact, replacing existing files
// only after the new content is complete
func WriteArtifacts(paths ArtifactPaths, a Artifacts) error {
	records := []struct {
		path     string
		exporter RecordExporter
	}{
		{paths.CleanCSV, NewCSVCodec()},
		{paths.YAML, NewYAMLCodec()},
		{paths.JSON, NewJSONCodec()},
	}
	for _, r := range records {
		if r.path == "" {
			continue
		}
		if err := writeFile(r.path, func(w io.Writer) error {
			return r.exporter.ExportRecords(a.Records, w)
		}); err != nil {
			return fmt.Errorf("%s records: %w", r.exporter.Format(), err)
		}
	}

	if paths.Anomalies != "" {
		if err := writeFile(paths.Anomalies, func(w io.Writer) error {
			return NewJSONCodec().ExportAnomalies(a.Anomalies, w)
		}); err != nil {
			return fmt.Errorf("anomaly report: %w", err)
		}
	}
	if paths.AuditLog != "" {
		if err := writeFile(paths.AuditLog, func(w io.Writer) error {
			return NewAuditWriter(a.AuditMeta).Write(a.Audit, w)
		}); err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
	}
	return nil
}

// writeFile writes through a temporary sibling and renames it into place
func writeFile(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
