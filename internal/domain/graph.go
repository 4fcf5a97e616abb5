package domain

import (
	"sort"
	"time"
)

// NodeStatus is the per-node outcome of a crawl
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"   // Claimed, not yet resolved
	NodeStatusConnected NodeStatus = "connected" // Session open, neighbors not queried
	NodeStatusExpanded  NodeStatus = "expanded"  // Neighbors queried
	NodeStatusFailed    NodeStatus = "failed"    // Connection or command failure
	NodeStatusDenied    NodeStatus = "denied"    // Boundary policy refused traversal
)

// TopologyNode is a device as seen by one crawl
type TopologyNode struct {
	Hostname string     `json:"hostname" yaml:"hostname"`
	Address  string     `json:"address,omitempty" yaml:"address,omitempty"`
	OSFamily OSFamily   `json:"os_family,omitempty" yaml:"os_family,omitempty"`
	Platform string     `json:"platform,omitempty" yaml:"platform,omitempty"`
	Depth    int        `json:"depth" yaml:"depth"`
	Status   NodeStatus `json:"status" yaml:"status"`
	// Reason is the policy denial reason
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
	// Error is the failure cause for failed nodes
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// GraphStats summarizes node outcomes
type GraphStats struct {
	Nodes     int `json:"nodes" yaml:"nodes"`
	Edges     int `json:"edges" yaml:"edges"`
	Expanded  int `json:"expanded" yaml:"expanded"`
	Connected int `json:"connected" yaml:"connected"`
	Failed    int `json:"failed" yaml:"failed"`
	Denied    int `json:"denied" yaml:"denied"`
	Pending   int `json:"pending" yaml:"pending"`
}

// TopologyGraph is the artifact produced by a crawl.
// Nodes are keyed by hostname; each unordered edge is stored once.
// It is not safe for concurrent mutation; the crawler owns it exclusively.
type TopologyGraph struct {
	ID         string                   `json:"id" yaml:"id"`
	Seed       string                   `json:"seed" yaml:"seed"`
	MaxDepth   int                      `json:"max_depth" yaml:"max_depth"`
	StartedAt  time.Time                `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time               `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Cancelled  bool                     `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Nodes      map[string]*TopologyNode `json:"nodes" yaml:"nodes"`
	Edges      map[string]TopologyEdge  `json:"edges" yaml:"edges"`
}

// NewTopologyGraph creates an empty graph
func NewTopologyGraph(id, seed string, maxDepth int) *TopologyGraph {
	return &TopologyGraph{
		ID:        id,
		Seed:      seed,
		MaxDepth:  maxDepth,
		StartedAt: time.Now(),
		Nodes:     make(map[string]*TopologyNode),
		Edges:     make(map[string]TopologyEdge),
	}
}

// AddNode inserts a node if its hostname is new and returns the stored node
// together with whether it was inserted.
func (g *TopologyGraph) AddNode(node TopologyNode) (*TopologyNode, bool) {
	if existing, ok := g.Nodes[node.Hostname]; ok {
		return existing, false
	}
	if node.Status == "" {
		node.Status = NodeStatusPending
	}
	n := node
	g.Nodes[node.Hostname] = &n
	return &n, true
}

// Node returns the node for hostname, or nil
func (g *TopologyGraph) Node(hostname string) *TopologyNode {
	return g.Nodes[hostname]
}

// HasNode reports whether hostname is in the graph
func (g *TopologyGraph) HasNode(hostname string) bool {
	_, ok := g.Nodes[hostname]
	return ok
}

// AddEdge inserts the edge unless the same unordered pair exists.
// Returns false for duplicates and self-loops.
func (g *TopologyGraph) AddEdge(edge TopologyEdge) bool {
	if edge.From == edge.To {
		return false
	}
	if edge.ID == "" {
		edge.ID = EdgeID(edge.From, edge.To)
	}
	if _, ok := g.Edges[edge.ID]; ok {
		return false
	}
	g.Edges[edge.ID] = edge
	return true
}

// HasEdge reports whether a and b are adjacent, in either direction
func (g *TopologyGraph) HasEdge(a, b string) bool {
	_, ok := g.Edges[EdgeID(a, b)]
	return ok
}

// EdgesFrom returns edges discovered from hostname's own neighbor report
func (g *TopologyGraph) EdgesFrom(hostname string) []TopologyEdge {
	var out []TopologyEdge
	for _, e := range g.SortedEdges() {
		if e.From == hostname {
			out = append(out, e)
		}
	}
	return out
}

// SortedNodes returns nodes ordered by depth then hostname
func (g *TopologyGraph) SortedNodes() []TopologyNode {
	out := make([]TopologyNode, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].Hostname < out[j].Hostname
	})
	return out
}

// SortedEdges returns edges ordered by (From, To)
func (g *TopologyGraph) SortedEdges() []TopologyEdge {
	out := make([]TopologyEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Stats counts nodes per status
func (g *TopologyGraph) Stats() GraphStats {
	s := GraphStats{Nodes: len(g.Nodes), Edges: len(g.Edges)}
	for _, n := range g.Nodes {
		switch n.Status {
		case NodeStatusExpanded:
			s.Expanded++
		case NodeStatusConnected:
			s.Connected++
		case NodeStatusFailed:
			s.Failed++
		case NodeStatusDenied:
			s.Denied++
		default:
			s.Pending++
		}
	}
	return s
}

// Finish stamps the completion time
func (g *TopologyGraph) Finish(cancelled bool) {
	now := time.Now()
	g.FinishedAt = &now
	g.Cancelled = cancelled
}

// CrawlSummary is the listing view of a stored crawl
type CrawlSummary struct {
	ID         string     `json:"id"`
	Seed       string     `json:"seed"`
	MaxDepth   int        `json:"max_depth"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Cancelled  bool       `json:"cancelled,omitempty"`
	Stats      GraphStats `json:"stats"`
}

// Summary returns the listing view of the graph
func (g *TopologyGraph) Summary() CrawlSummary {
	return CrawlSummary{
		ID:         g.ID,
		Seed:       g.Seed,
		MaxDepth:   g.MaxDepth,
		StartedAt:  g.StartedAt,
		FinishedAt: g.FinishedAt,
		Cancelled:  g.Cancelled,
		Stats:      g.Stats(),
	}
}
