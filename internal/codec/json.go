package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"netcrawler/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse imports a graph from JSON
func (c *JSONCodec) Parse(r io.Reader) (*domain.TopologyGraph, error) {
	var doc document
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return doc.toGraph()
}

// Export writes the graph as indented JSON
func (c *JSONCodec) Export(graph *domain.TopologyGraph, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(toDocument(graph)); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
