package domain

import (
	"crypto/sha256"
	"fmt"
)

// TopologyEdge is an undirected adjacency between two devices.
// From is the device whose neighbor report revealed To.
type TopologyEdge struct {
	ID              string `json:"id" yaml:"id"`
	From            string `json:"from" yaml:"from"`
	To              string `json:"to" yaml:"to"`
	LocalInterface  string `json:"local_interface,omitempty" yaml:"local_interface,omitempty"`
	RemoteInterface string `json:"remote_interface,omitempty" yaml:"remote_interface,omitempty"`
}

// NewTopologyEdge creates an edge with its deterministic ID
func NewTopologyEdge(from, to string) TopologyEdge {
	return TopologyEdge{
		ID:   EdgeID(from, to),
		From: from,
		To:   to,
	}
}

// EdgeID creates a deterministic ID for the unordered pair {a, b}
func EdgeID(a, b string) string {
	// Normalize endpoints for consistent ID
	if a > b {
		a, b = b, a
	}

	hash := sha256.Sum256([]byte(a + "\x00" + b))
	return fmt.Sprintf("%x", hash[:8])
}

// Touches reports whether hostname is one of the edge endpoints
func (e TopologyEdge) Touches(hostname string) bool {
	return e.From == hostname || e.To == hostname
}
