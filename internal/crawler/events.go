package crawler

import "netcrawler/internal/domain"

// Progress event types
const (
	EventCrawlStarted  = "crawl-started"
	EventNodeExpanded  = "node-expanded"
	EventNodeDenied    = "node-denied"
	EventNodeFailed    = "node-failed"
	EventCrawlComplete = "crawl-complete"
)

// EventPublisher receives crawl progress events
type EventPublisher interface {
	PublishDiscoveryEvent(eventType string, payload interface{})
}

// CrawlEvent is the payload of crawl-started and crawl-complete
type CrawlEvent struct {
	CrawlID   string             `json:"crawl_id"`
	Seed      string             `json:"seed"`
	MaxDepth  int                `json:"max_depth"`
	Cancelled bool               `json:"cancelled,omitempty"`
	Stats     *domain.GraphStats `json:"stats,omitempty"`
}

// NodeEvent is the payload of per-node events
type NodeEvent struct {
	CrawlID   string            `json:"crawl_id"`
	Hostname  string            `json:"hostname"`
	Address   string            `json:"address,omitempty"`
	Depth     int               `json:"depth"`
	Status    domain.NodeStatus `json:"status"`
	Reason    string            `json:"reason,omitempty"`
	Error     string            `json:"error,omitempty"`
	Neighbors int               `json:"neighbors,omitempty"`
	Protocol  string            `json:"protocol,omitempty"`
}

func nodeEvent(crawlID string, n *domain.TopologyNode) NodeEvent {
	return NodeEvent{
		CrawlID:  crawlID,
		Hostname: n.Hostname,
		Address:  n.Address,
		Depth:    n.Depth,
		Status:   n.Status,
		Reason:   n.Reason,
		Error:    n.Error,
	}
}
