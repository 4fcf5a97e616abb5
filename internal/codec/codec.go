// Package codec reads and writes crawl topology graphs.
package codec

import (
	"fmt"
	"io"
	"strings"
	"time"

	"netcrawler/internal/domain"
)

// Importer reads a topology graph
type Importer interface {
	Parse(r io.Reader) (*domain.TopologyGraph, error)
	Format() string
}

// Exporter writes a topology graph
type Exporter interface {
	Export(graph *domain.TopologyGraph, w io.Writer) error
	Format() string
}

// Exporters returns every exporter keyed by format
func Exporters() map[string]Exporter {
	return map[string]Exporter{
		"json":              NewJSONCodec(),
		"yaml":              NewYAMLCodec(),
		"ansible-inventory": NewAnsibleCodec(),
	}
}

// ExporterFor returns the exporter for format; "" means json, "yml" is
// accepted for yaml
func ExporterFor(format string) (Exporter, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	switch f {
	case "":
		f = "json"
	case "yml":
		f = "yaml"
	case "ansible":
		f = "ansible-inventory"
	}
	if e, ok := Exporters()[f]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// ImporterFor returns the importer for format
func ImporterFor(format string) (Importer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	}
	return nil, fmt.Errorf("unsupported import format %q", format)
}

// document is the exchange shape shared by the JSON and YAML codecs.
// Nodes and edges are lists in stable order so exports diff cleanly.
type document struct {
	ID         string                `json:"id" yaml:"id"`
	Seed       string                `json:"seed" yaml:"seed"`
	MaxDepth   int                   `json:"max_depth" yaml:"max_depth"`
	StartedAt  time.Time             `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time            `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Cancelled  bool                  `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Stats      domain.GraphStats     `json:"stats" yaml:"stats"`
	Nodes      []domain.TopologyNode `json:"nodes" yaml:"nodes"`
	Edges      []domain.TopologyEdge `json:"edges" yaml:"edges"`
}

func toDocument(g *domain.TopologyGraph) document {
	return document{
		ID:         g.ID,
		Seed:       g.Seed,
		MaxDepth:   g.MaxDepth,
		StartedAt:  g.StartedAt,
		FinishedAt: g.FinishedAt,
		Cancelled:  g.Cancelled,
		Stats:      g.Stats(),
		Nodes:      g.SortedNodes(),
		Edges:      g.SortedEdges(),
	}
}

func (d document) toGraph() (*domain.TopologyGraph, error) {
	if d.Seed == "" {
		return nil, fmt.Errorf("document has no seed")
	}
	g := domain.NewTopologyGraph(d.ID, d.Seed, d.MaxDepth)
	g.StartedAt = d.StartedAt
	g.FinishedAt = d.FinishedAt
	g.Cancelled = d.Cancelled

	for _, n := range d.Nodes {
		if n.Hostname == "" {
			return nil, fmt.Errorf("node without hostname")
		}
		if _, added := g.AddNode(n); !added {
			return nil, fmt.Errorf("duplicate node %s", n.Hostname)
		}
	}
	for _, e := range d.Edges {
		if !g.HasNode(e.From) || !g.HasNode(e.To) {
			return nil, fmt.Errorf("edge %s-%s references unknown node", e.From, e.To)
		}
		g.AddEdge(e)
	}
	return g, nil
}
