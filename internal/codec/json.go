package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"invnorm/internal/domain"
)

// JSONCodec handles the JSON anomaly report and JSON record export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// ExportAnomalies writes the anomaly report as an indented array. An empty
// report is written as [].
func (c *JSONCodec) ExportAnomalies(anomalies []domain.AnomalyEntry, w io.Writer) error {
	if anomalies == nil {
		anomalies = []domain.AnomalyEntry{}
	}
	return c.encode(anomalies, w)
}

// ExportRecords writes normalized records as an indented array
func (c *JSONCodec) ExportRecords(records []*domain.NormalizedRecord, w io.Writer) error {
	if records == nil {
		records = []*domain.NormalizedRecord{}
	}
	return c.encode(records, w)
}

func (c *JSONCodec) encode(v any, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
