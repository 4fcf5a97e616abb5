package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"netcrawler/internal/domain"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// Parse imports a graph from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*domain.TopologyGraph, error) {
	var doc document
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return doc.toGraph()
}

// Export writes the graph as YAML
func (c *YAMLCodec) Export(graph *domain.TopologyGraph, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(toDocument(graph)); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
