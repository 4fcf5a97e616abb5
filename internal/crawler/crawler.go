// Package crawler walks a network outward from a seed device using
// neighbor-discovery reports, producing a topology graph.
//
// The walk is a depth-bounded work list processed one frontier at a time.
// Discovery commands and neighbor connections within a frontier run in
// parallel; the calling goroutine alone owns the graph and folds results in
// frontier order, so repeated crawls against the same network and policy
// yield the same graph.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"netcrawler/internal/classifier"
	"netcrawler/internal/domain"
	"netcrawler/internal/executor"
	"netcrawler/internal/inventory"
	"netcrawler/internal/parser"
	"netcrawler/internal/policy"
	"netcrawler/internal/session"
)

var (
	// ErrInvalidDepth is returned for a max depth below 1
	ErrInvalidDepth = errors.New("max depth must be at least 1")
	// ErrSeedNotConnected is returned when the seed has no open session
	ErrSeedNotConnected = errors.New("seed device is not connected")
)

// Connector opens and looks up device sessions
type Connector interface {
	Connect(ctx context.Context, device *domain.Device, creds domain.Credentials) (*session.Session, error)
	Session(hostname string) (*session.Session, bool)
}

// Config holds crawl engine settings
type Config struct {
	// MaxWorkers bounds parallel commands and connections per frontier
	MaxWorkers int
	// DefaultOS is assigned when a neighbor reports no platform
	DefaultOS domain.OSFamily
}

// Engine runs crawls. One Engine may run several crawls concurrently;
// each crawl owns its own state.
type Engine struct {
	config     Config
	validator  *policy.Validator
	connector  Connector
	parser     parser.Parser
	classifier *classifier.Classifier
	registry   *inventory.Registry
	publisher  EventPublisher
}

// New creates a crawl engine
func New(config Config, validator *policy.Validator, connector Connector, p parser.Parser, c *classifier.Classifier, registry *inventory.Registry) *Engine {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = executor.DefaultWorkers
	}
	if config.DefaultOS == "" {
		config.DefaultOS = c.Fallback()
	}
	return &Engine{
		config:     config,
		validator:  validator,
		connector:  connector,
		parser:     p,
		classifier: c,
		registry:   registry,
	}
}

// WithConnector returns a copy of the engine that opens and looks up
// sessions through c, e.g. a session scope owned by a single crawl
func (e *Engine) WithConnector(c Connector) *Engine {
	cp := *e
	cp.connector = c
	return &cp
}

// SetEventPublisher sets the receiver of progress events
func (e *Engine) SetEventPublisher(pub EventPublisher) {
	e.publisher = pub
}

func (e *Engine) publish(eventType string, payload interface{}) {
	if e.publisher != nil {
		e.publisher.PublishDiscoveryEvent(eventType, payload)
	}
}

// workItem is a connected device waiting to be expanded at depth
type workItem struct {
	device domain.Device
	depth  int
}

// discovery is the outcome of one discovery command
type discovery struct {
	neighbors []domain.NeighborRecord
	protocol  string
	err       error
	cancelled bool
	// noSession ends the branch without marking the node
	noSession bool
}

// candidate is an allowed neighbor waiting for a connection
type candidate struct {
	device domain.Device
	depth  int
}

// connection is the outcome of one neighbor connection attempt
type connection struct {
	device  domain.Device
	err     error
	skipped bool
}

// crawlState is owned by the goroutine running Crawl
type crawlState struct {
	id       string
	maxDepth int
	creds    domain.Credentials
	policy   *policy.Policy
	graph    *domain.TopologyGraph
	// visited mirrors graph.Nodes; a hostname is claimed exactly once
	visited   map[string]struct{}
	cancelled bool
}

func (s *crawlState) claim(hostname string) bool {
	if _, ok := s.visited[hostname]; ok {
		return false
	}
	s.visited[hostname] = struct{}{}
	return true
}

// Crawl walks outward from seed up to maxDepth hops and returns the graph.
// The seed must already hold an open session. Per-node failures are
// recorded on the graph; only invalid arguments and an unusable boundary
// policy are returned as errors. A cancelled ctx stops the walk and returns
// the partial graph with Cancelled set.
func (e *Engine) Crawl(ctx context.Context, seed *domain.Device, maxDepth int, creds domain.Credentials) (*domain.TopologyGraph, error) {
	return e.CrawlWithID(ctx, uuid.NewString(), seed, maxDepth, creds)
}

// CrawlWithID is Crawl with a caller-chosen crawl ID
func (e *Engine) CrawlWithID(ctx context.Context, id string, seed *domain.Device, maxDepth int, creds domain.Credentials) (*domain.TopologyGraph, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if maxDepth < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDepth, maxDepth)
	}
	if seed == nil || seed.Hostname == "" {
		return nil, fmt.Errorf("seed device is required")
	}
	if _, ok := e.connector.Session(seed.Hostname); !ok || !seed.Connected() {
		return nil, fmt.Errorf("%w: %s", ErrSeedNotConnected, seed.Hostname)
	}

	pol, err := e.validator.Reload()
	if err != nil {
		return nil, err
	}

	state := &crawlState{
		id:       id,
		maxDepth: maxDepth,
		creds:    creds,
		policy:   pol,
		graph:    domain.NewTopologyGraph(id, seed.Hostname, maxDepth),
		visited:  make(map[string]struct{}),
	}

	state.claim(seed.Hostname)
	state.graph.AddNode(domain.TopologyNode{
		Hostname: seed.Hostname,
		Address:  seed.Address,
		OSFamily: seed.OSFamily,
		Depth:    0,
		Status:   domain.NodeStatusConnected,
	})
	e.registry.Update(ctx, *seed)

	log.Printf("Crawler: starting crawl %s from %s (max depth %d)", state.id, seed, maxDepth)
	e.publish(EventCrawlStarted, CrawlEvent{CrawlID: state.id, Seed: seed.Hostname, MaxDepth: maxDepth})

	frontier := []workItem{{device: *seed, depth: 1}}
	for len(frontier) > 0 && !state.cancelled {
		frontier = e.expandFrontier(ctx, state, frontier)
	}

	state.graph.Finish(state.cancelled)
	stats := state.graph.Stats()
	log.Printf("Crawler: crawl %s finished: %d nodes, %d edges, %d denied, %d failed (cancelled=%v)",
		state.id, stats.Nodes, stats.Edges, stats.Denied, stats.Failed, state.cancelled)
	e.publish(EventCrawlComplete, CrawlEvent{
		CrawlID:   state.id,
		Seed:      seed.Hostname,
		MaxDepth:  maxDepth,
		Cancelled: state.cancelled,
		Stats:     &stats,
	})

	return state.graph, nil
}

// expandFrontier expands every item of one depth level and returns the next
func (e *Engine) expandFrontier(ctx context.Context, state *crawlState, frontier []workItem) []workItem {
	var active []workItem
	for _, item := range frontier {
		// Past the bound the branch ends; the node stays connected
		if item.depth <= state.maxDepth {
			active = append(active, item)
		}
	}
	if len(active) == 0 {
		return nil
	}

	results := executor.RunAll(ctx, e.discover, active, e.config.MaxWorkers)

	var candidates []candidate
	for i, item := range active {
		candidates = append(candidates, e.foldDiscovery(ctx, state, item, results[i])...)
	}

	return e.connectCandidates(ctx, state, candidates)
}

// discover runs the discovery command on the item's own session. The
// protocols suited to the device's family are tried in order until one
// command succeeds; the first failure is reported if none does.
func (e *Engine) discover(ctx context.Context, item workItem) discovery {
	if ctx.Err() != nil {
		return discovery{cancelled: true}
	}
	s, ok := e.connector.Session(item.device.Hostname)
	if !ok {
		return discovery{noSession: true}
	}

	var firstErr error
	for _, p := range parser.ForFamily(item.device.OSFamily, e.parser) {
		out, err := s.SendCommand(ctx, p.Command())
		if err == nil {
			return discovery{neighbors: p.Parse(out), protocol: p.Protocol()}
		}
		if ctx.Err() != nil {
			return discovery{cancelled: true}
		}
		if firstErr == nil {
			firstErr = err
		}
		if s.Closed() {
			break
		}
		log.Printf("Crawler: %s discovery failed on %s: %v", p.Protocol(), item.device.Hostname, err)
	}
	return discovery{err: firstErr}
}

// foldDiscovery records one discovery result on the graph and returns the
// allowed neighbors to connect
func (e *Engine) foldDiscovery(ctx context.Context, state *crawlState, item workItem, result discovery) []candidate {
	node := state.graph.Node(item.device.Hostname)

	switch {
	case result.cancelled:
		state.cancelled = true
		return nil
	case result.noSession:
		return nil
	case result.err != nil:
		node.Status = domain.NodeStatusFailed
		node.Error = result.err.Error()
		log.Printf("Crawler: discovery failed on %s: %v", item.device.Hostname, result.err)
		e.publish(EventNodeFailed, nodeEvent(state.id, node))
		return nil
	}

	node.Status = domain.NodeStatusExpanded
	ev := nodeEvent(state.id, node)
	ev.Neighbors = len(result.neighbors)
	ev.Protocol = result.protocol
	e.publish(EventNodeExpanded, ev)

	var out []candidate
	for _, rec := range result.neighbors {
		if rec.Hostname == "" || !state.claim(rec.Hostname) {
			continue
		}

		neighbor, _ := state.graph.AddNode(domain.TopologyNode{
			Hostname: rec.Hostname,
			Address:  rec.Address,
			Platform: rec.Platform,
			Depth:    item.depth,
		})

		// The adjacency is recorded even when traversal is refused
		edge := domain.NewTopologyEdge(item.device.Hostname, rec.Hostname)
		edge.LocalInterface = rec.LocalInterface
		edge.RemoteInterface = rec.RemoteInterface
		state.graph.AddEdge(edge)

		decision := state.policy.IsAllowed(rec.Address, rec.Hostname)
		if !decision.Allowed {
			neighbor.Status = domain.NodeStatusDenied
			neighbor.Reason = decision.Reason
			log.Printf("Crawler: denied %s (%s): %s", rec.Hostname, rec.Address, decision.Reason)
			e.publish(EventNodeDenied, nodeEvent(state.id, neighbor))
			continue
		}

		family := e.config.DefaultOS
		if rec.Platform != "" {
			family = e.classifier.Classify(rec.Platform)
		}
		neighbor.OSFamily = family

		device, _ := e.registry.Add(ctx, *domain.NewDevice(rec.Hostname, rec.Address, family))
		out = append(out, candidate{device: device, depth: item.depth})
	}
	return out
}

// connectCandidates opens sessions to allowed neighbors in parallel and
// returns those that connected as the next frontier
func (e *Engine) connectCandidates(ctx context.Context, state *crawlState, candidates []candidate) []workItem {
	if len(candidates) == 0 {
		return nil
	}

	connect := func(ctx context.Context, c candidate) connection {
		if ctx.Err() != nil {
			return connection{device: c.device, skipped: true}
		}
		device := c.device
		_, err := e.connector.Connect(ctx, &device, state.creds)
		e.registry.Update(ctx, device)
		return connection{device: device, err: err}
	}
	results := executor.RunAll(ctx, connect, candidates, e.config.MaxWorkers)

	var next []workItem
	for i, c := range candidates {
		r := results[i]
		node := state.graph.Node(c.device.Hostname)

		switch {
		case r.skipped:
			state.cancelled = true
		case r.err != nil:
			node.Status = domain.NodeStatusFailed
			node.Error = r.err.Error()
			log.Printf("Crawler: failed to connect to %s: %v", &c.device, r.err)
			e.publish(EventNodeFailed, nodeEvent(state.id, node))
		default:
			node.Status = domain.NodeStatusConnected
			next = append(next, workItem{device: r.device, depth: c.depth + 1})
		}
	}
	return next
}
