package codec

import (
	"fmt"
	"io"

	"invnorm/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML record export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlDocument is the top-level shape of the YAML export
type yamlDocument struct {
	Records []*domain.NormalizedRecord `yaml:"records"`
}

// ExportRecords writes the records under a top-level records key
func (c *YAMLCodec) ExportRecords(records []*domain.NormalizedRecord, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if records == nil {
		records = []*domain.NormalizedRecord{}
	}
	if err := encoder.Encode(yamlDocument{Records: records}); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return encoder.Close()
}
