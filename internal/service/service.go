package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"netcrawler/internal/crawler"
	"netcrawler/internal/domain"
	"netcrawler/internal/inventory"
	"netcrawler/internal/policy"
	"netcrawler/internal/repository"
	"netcrawler/internal/session"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest wraps request validation failures
	ErrInvalidRequest = errors.New("invalid request")
)

// CrawlRequest describes a crawl to start
type CrawlRequest struct {
	Hostname string          `json:"hostname"`
	Address  string          `json:"address"`
	OSFamily domain.OSFamily `json:"os_family,omitempty"`
	MaxDepth int             `json:"max_depth,omitempty"`
	Username string          `json:"username"`
	Password string          `json:"password,omitempty"`
}

// Credentials returns the request's login credentials
func (r CrawlRequest) Credentials() domain.Credentials {
	return domain.Credentials{Username: r.Username, Password: r.Password}
}

// CrawlDefaults fill in omitted request fields
type CrawlDefaults struct {
	MaxDepth int
	OSFamily domain.OSFamily
	Username string
	Password string
}

// CrawlService starts crawls, persists their graphs and publishes progress
type CrawlService struct {
	engine    *crawler.Engine
	sessions  *session.Manager
	registry  *inventory.Registry
	validator *policy.Validator
	repo      repository.Repository
	eventBus  *EventBus
	defaults  CrawlDefaults

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewCrawlService creates a crawl service. repo may be nil, in which case
// graphs are not persisted.
func NewCrawlService(engine *crawler.Engine, sessions *session.Manager, registry *inventory.Registry,
	validator *policy.Validator, repo repository.Repository, eventBus *EventBus, defaults CrawlDefaults) *CrawlService {
	if defaults.MaxDepth == 0 {
		defaults.MaxDepth = 3
	}
	if defaults.OSFamily == "" {
		defaults.OSFamily = domain.OSCiscoIOS
	}
	engine.SetEventPublisher(eventBus)
	return &CrawlService{
		engine:    engine,
		sessions:  sessions,
		registry:  registry,
		validator: validator,
		repo:      repo,
		eventBus:  eventBus,
		defaults:  defaults,
		running:   make(map[string]context.CancelFunc),
	}
}

// normalize applies defaults and validates the request
func (s *CrawlService) normalize(req CrawlRequest) (CrawlRequest, error) {
	if req.MaxDepth == 0 {
		req.MaxDepth = s.defaults.MaxDepth
	}
	if req.OSFamily == "" {
		req.OSFamily = s.defaults.OSFamily
	}
	if req.Username == "" {
		req.Username = s.defaults.Username
		if req.Password == "" {
			req.Password = s.defaults.Password
		}
	}

	switch {
	case req.Hostname == "":
		return req, fmt.Errorf("%w: seed hostname is required", ErrInvalidRequest)
	case req.Address == "":
		return req, fmt.Errorf("%w: seed address is required", ErrInvalidRequest)
	case req.Username == "":
		return req, fmt.Errorf("%w: username is required", ErrInvalidRequest)
	case req.MaxDepth < 1 || req.MaxDepth > 10:
		return req, fmt.Errorf("%w: max depth must be between 1 and 10, got %d", ErrInvalidRequest, req.MaxDepth)
	}
	return req, nil
}

// Run connects to the seed, crawls and persists the graph. Blocks until the
// crawl ends.
func (s *CrawlService) Run(ctx context.Context, req CrawlRequest) (*domain.TopologyGraph, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, uuid.NewString(), req)
}

// Start validates the request and runs the crawl in the background.
// Returns the crawl ID; progress arrives on the event bus.
func (s *CrawlService) Start(req CrawlRequest) (string, error) {
	req, err := s.normalize(req)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.running[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, id)
			s.mu.Unlock()
			cancel()
		}()

		if _, err := s.run(ctx, id, req); err != nil {
			log.Printf("Crawl %s failed: %v", id, err)
		}
	}()

	return id, nil
}

func (s *CrawlService) run(ctx context.Context, id string, req CrawlRequest) (*domain.TopologyGraph, error) {
	seed, _ := s.registry.Add(ctx, *domain.NewDevice(req.Hostname, req.Address, req.OSFamily))
	seed.Address = req.Address

	// Sessions live as long as the crawl; concurrent crawls never share one
	scope := s.sessions.NewScope()
	defer scope.Close()

	if _, err := scope.Connect(ctx, &seed, req.Credentials()); err != nil {
		s.registry.Update(ctx, seed)
		s.publishFailure(id, req, err)
		return nil, fmt.Errorf("failed to connect to seed %s: %w", req.Hostname, err)
	}

	graph, err := s.engine.WithConnector(scope).CrawlWithID(ctx, id, &seed, req.MaxDepth, req.Credentials())
	if err != nil {
		s.publishFailure(id, req, err)
		return nil, err
	}

	if s.repo != nil {
		// Save even when the caller's ctx is done so partial graphs survive
		if err := s.repo.SaveCrawl(context.WithoutCancel(ctx), graph); err != nil {
			return graph, fmt.Errorf("failed to save crawl %s: %w", id, err)
		}
		s.eventBus.Publish(Event{Type: EventCrawlSaved, Payload: graph.Summary()})
	}

	return graph, nil
}

func (s *CrawlService) publishFailure(id string, req CrawlRequest, err error) {
	s.eventBus.Publish(Event{
		Type: EventCrawlFailed,
		Payload: map[string]string{
			"crawl_id": id,
			"seed":     req.Hostname,
			"error":    err.Error(),
		},
	})
}

// Cancel stops a background crawl. Returns false if it is not running.
func (s *CrawlService) Cancel(id string) bool {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running returns the IDs of background crawls in progress
func (s *CrawlService) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown cancels background crawls and waits for them to finish
func (s *CrawlService) Shutdown() {
	s.mu.Lock()
	for _, cancel := range s.running {
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// GetCrawl returns a stored crawl graph
func (s *CrawlService) GetCrawl(ctx context.Context, id string) (*domain.TopologyGraph, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("crawl %s: %w", id, ErrNotFound)
	}
	graph, err := s.repo.GetCrawl(ctx, id)
	if err != nil {
		return nil, err
	}
	if graph == nil {
		return nil, fmt.Errorf("crawl %s: %w", id, ErrNotFound)
	}
	return graph, nil
}

// ListCrawls returns stored crawl summaries, newest first
func (s *CrawlService) ListCrawls(ctx context.Context, limit int) ([]domain.CrawlSummary, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.ListCrawls(ctx, limit)
}

// ListDevices returns known devices: the persisted inventory when a
// repository is configured, otherwise this process's registry
func (s *CrawlService) ListDevices(ctx context.Context) ([]domain.Device, error) {
	if s.repo == nil {
		return s.registry.List(), nil
	}
	return s.repo.ListDevices(ctx)
}

// Policy returns the current boundary policy document, loading it if needed
func (s *CrawlService) Policy() (policy.Document, error) {
	if p := s.validator.Current(); p != nil {
		return p.Document(), nil
	}
	p, err := s.validator.Reload()
	if err != nil {
		return policy.Document{}, err
	}
	return p.Document(), nil
}

// ReloadPolicy re-reads the boundary policy file
func (s *CrawlService) ReloadPolicy() (policy.Document, error) {
	p, err := s.validator.Reload()
	if err != nil {
		return policy.Document{}, err
	}
	doc := p.Document()
	s.eventBus.Publish(Event{Type: EventPolicyReloaded, Payload: doc})
	return doc, nil
}

// UpdatePolicy validates and writes a new boundary policy, then reloads it.
// An invalid document is rejected before the file is touched.
func (s *CrawlService) UpdatePolicy(doc policy.Document) (policy.Document, error) {
	if _, err := policy.New(doc); err != nil {
		return policy.Document{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	p, err := s.validator.Update(doc)
	if err != nil {
		return policy.Document{}, err
	}
	updated := p.Document()
	s.eventBus.Publish(Event{Type: EventPolicyReloaded, Payload: updated})
	return updated, nil
}

// CheckPolicy evaluates one (address, hostname) pair against the current policy
func (s *CrawlService) CheckPolicy(address, hostname string) (policy.Decision, error) {
	p := s.validator.Current()
	if p == nil {
		var err error
		if p, err = s.validator.Reload(); err != nil {
			return policy.Decision{}, err
		}
	}
	return p.IsAllowed(address, hostname), nil
}

// ImportCrawl stores a graph produced elsewhere, e.g. an earlier export
func (s *CrawlService) ImportCrawl(ctx context.Context, graph *domain.TopologyGraph) error {
	if s.repo == nil {
		return errors.New("no repository configured")
	}
	if graph.ID == "" {
		graph.ID = uuid.NewString()
	}
	if err := s.repo.SaveCrawl(ctx, graph); err != nil {
		return fmt.Errorf("failed to import crawl %s: %w", graph.ID, err)
	}
	s.eventBus.Publish(Event{Type: EventCrawlSaved, Payload: graph.Summary()})
	return nil
}

// Close cancels background crawls and closes sessions opened outside a crawl
func (s *CrawlService) Close() {
	s.Shutdown()
	s.sessions.CloseAll()
}
