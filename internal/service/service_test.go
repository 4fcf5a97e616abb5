package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netcrawler/internal/classifier"
	"netcrawler/internal/crawler"
	"netcrawler/internal/domain"
	"netcrawler/internal/inventory"
	"netcrawler/internal/parser"
	"netcrawler/internal/policy"
	"netcrawler/internal/repository/sqlite"
	"netcrawler/internal/session"
)

const r1CDP = `
Device ID: R2
  IP address: 10.0.0.2
Platform: Cisco 2911,  Capabilities: Router
Interface: GigabitEthernet0/1,  Port ID (outgoing port): GigabitEthernet0/0

Device ID: CORE-SW01
  IP address: 10.0.0.3
Platform: cisco WS-C3850-48P,  Capabilities: Switch
Interface: GigabitEthernet0/2,  Port ID (outgoing port): GigabitEthernet1/0/1
`

type stubConn struct {
	output string
	block  <-chan struct{}
}

func (c stubConn) Run(ctx context.Context, command string) (string, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.output, nil
}

func (c stubConn) Ping(ctx context.Context) error { return nil }

func (c stubConn) Close() error { return nil }

func stubTransport(block <-chan struct{}) session.Transport {
	return session.TransportFunc(func(ctx context.Context, target session.Target) (session.Conn, error) {
		switch target.Address {
		case "10.0.0.1":
			return stubConn{output: r1CDP, block: block}, nil
		case "10.0.0.2":
			return stubConn{}, nil
		}
		return nil, errors.New("connection refused")
	})
}

// trackedConn answers like stubConn and records its lifecycle
type trackedConn struct {
	output  string
	gate    <-chan struct{}
	closed  atomic.Bool
	dropped atomic.Bool
}

func (c *trackedConn) Run(ctx context.Context, command string) (string, error) {
	if c.closed.Load() || c.dropped.Load() {
		return "", io.EOF
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.output, nil
}

func (c *trackedConn) Ping(ctx context.Context) error {
	if c.closed.Load() || c.dropped.Load() {
		return io.EOF
	}
	return nil
}

func (c *trackedConn) Close() error {
	c.closed.Store(true)
	return nil
}

// trackingTransport hands out a fresh trackedConn per dial
type trackingTransport struct {
	gate  <-chan struct{}
	mu    sync.Mutex
	conns map[string][]*trackedConn
}

func (tt *trackingTransport) Dial(ctx context.Context, target session.Target) (session.Conn, error) {
	var conn *trackedConn
	switch target.Address {
	case "10.0.0.1":
		conn = &trackedConn{output: r1CDP, gate: tt.gate}
	case "10.0.0.2":
		conn = &trackedConn{}
	default:
		return nil, errors.New("connection refused")
	}
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if tt.conns == nil {
		tt.conns = make(map[string][]*trackedConn)
	}
	tt.conns[target.Address] = append(tt.conns[target.Address], conn)
	return conn, nil
}

func (tt *trackingTransport) dialed(address string) []*trackedConn {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return append([]*trackedConn(nil), tt.conns[address]...)
}

func newTestService(t *testing.T, block <-chan struct{}) (*CrawlService, *EventBus, *sqlite.Repository) {
	t.Helper()
	return newTestServiceWith(t, stubTransport(block))
}

func newTestServiceWith(t *testing.T, transport session.Transport) (*CrawlService, *EventBus, *sqlite.Repository) {
	t.Helper()

	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	pol, err := policy.New(policy.DefaultDocument())
	require.NoError(t, err)

	validator := policy.NewStaticValidator(pol)
	manager := session.NewManager(transport, session.Config{})
	registry := inventory.NewRegistry(repo)
	engine := crawler.New(crawler.Config{}, validator, manager,
		parser.NewCDPParser(), classifier.New(nil, ""), registry)

	bus := NewEventBus()
	svc := NewCrawlService(engine, manager, registry, validator, repo, bus, CrawlDefaults{
		MaxDepth: 2,
		Username: "admin",
		Password: "secret",
	})
	t.Cleanup(svc.Close)
	return svc, bus, repo
}

func TestCrawlServiceRun(t *testing.T) {
	svc, _, repo := newTestService(t, nil)
	ctx := context.Background()

	graph, err := svc.Run(ctx, CrawlRequest{Hostname: "R1", Address: "10.0.0.1"})
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, 3)
	assert.Equal(t, 2, graph.MaxDepth, "default depth applied")

	stored, err := svc.GetCrawl(ctx, graph.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.SortedNodes(), stored.SortedNodes())

	list, err := svc.ListCrawls(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, graph.ID, list[0].ID)

	devices, err := repo.ListDevices(ctx)
	require.NoError(t, err)
	var names []string
	for _, d := range devices {
		names = append(names, d.Hostname)
	}
	assert.Equal(t, []string{"R1", "R2"}, names, "denied devices are not inventoried")
}

func TestCrawlServiceSessionsEndWithCrawl(t *testing.T) {
	transport := &trackingTransport{}
	svc, _, _ := newTestServiceWith(t, transport)
	ctx := context.Background()
	req := CrawlRequest{Hostname: "R1", Address: "10.0.0.1"}

	first, err := svc.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.NodeStatusExpanded, first.Node("R1").Status)

	conns := transport.dialed("10.0.0.1")
	require.Len(t, conns, 1)
	assert.True(t, conns[0].closed.Load(), "session closed when the crawl ends")
	for _, c := range transport.dialed("10.0.0.2") {
		assert.True(t, c.closed.Load())
	}

	// The old connection goes away; the next crawl must not touch it
	conns[0].dropped.Store(true)

	second, err := svc.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.NodeStatusExpanded, second.Node("R1").Status)
	assert.Empty(t, second.Node("R1").Error)
	assert.Len(t, second.Nodes, 3)
	assert.Len(t, transport.dialed("10.0.0.1"), 2, "second crawl dials again")
}

func TestCrawlServiceConcurrentCrawlsSameSeed(t *testing.T) {
	gate := make(chan struct{})
	transport := &trackingTransport{gate: gate}
	svc, _, _ := newTestServiceWith(t, transport)
	req := CrawlRequest{Hostname: "R1", Address: "10.0.0.1"}

	var wg sync.WaitGroup
	graphs := make([]*domain.TopologyGraph, 2)
	errs := make([]error, 2)
	for i := range graphs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			graphs[i], errs[i] = svc.Run(context.Background(), req)
		}(i)
	}

	// Both crawls hold a session to R1 at the same time
	require.Eventually(t, func() bool {
		return len(transport.dialed("10.0.0.1")) == 2
	}, 2*time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	for i := range graphs {
		require.NoError(t, errs[i])
		r1 := graphs[i].Node("R1")
		require.NotNil(t, r1)
		assert.Equal(t, domain.NodeStatusExpanded, r1.Status)
		assert.Empty(t, r1.Error)
	}
	assert.NotEqual(t, graphs[0].ID, graphs[1].ID)
}

func TestCrawlServiceValidation(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	tests := []struct {
		name string
		req  CrawlRequest
	}{
		{"missing hostname", CrawlRequest{Address: "10.0.0.1"}},
		{"missing address", CrawlRequest{Hostname: "R1"}},
		{"depth too large", CrawlRequest{Hostname: "R1", Address: "10.0.0.1", MaxDepth: 11}},
		{"negative depth", CrawlRequest{Hostname: "R1", Address: "10.0.0.1", MaxDepth: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestCrawlServiceSeedUnreachable(t *testing.T) {
	svc, bus, _ := newTestService(t, nil)
	events := make(chan Event, 16)
	bus.Subscribe(events)

	_, err := svc.Run(context.Background(), CrawlRequest{Hostname: "R9", Address: "10.0.0.9"})
	var connErr *session.ConnectionError
	require.ErrorAs(t, err, &connErr)

	ev := <-events
	assert.Equal(t, EventCrawlFailed, ev.Type)

	devices, err := svc.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, domain.StateFailed, devices[0].State)
}

func TestCrawlServiceGetCrawlNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	_, err := svc.GetCrawl(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCrawlServiceStartAndCancel(t *testing.T) {
	block := make(chan struct{})
	svc, bus, _ := newTestService(t, block)
	events := make(chan Event, 64)
	bus.Subscribe(events)

	id, err := svc.Start(CrawlRequest{Hostname: "R1", Address: "10.0.0.1"})
	require.NoError(t, err)
	assert.Contains(t, svc.Running(), id)

	require.True(t, svc.Cancel(id))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type != EventCrawlSaved {
				continue
			}
			summary := ev.Payload.(domain.CrawlSummary)
			assert.Equal(t, id, summary.ID)
			assert.True(t, summary.Cancelled)
			return
		case <-deadline:
			t.Fatal("timed out waiting for the cancelled crawl to be saved")
		}
	}
}

func TestCrawlServicePolicy(t *testing.T) {
	svc, bus, _ := newTestService(t, nil)
	events := make(chan Event, 4)
	bus.Subscribe(events)

	doc, err := svc.Policy()
	require.NoError(t, err)
	assert.Contains(t, doc.ProtectedDevices, "CORE-SW01")

	_, err = svc.ReloadPolicy()
	require.NoError(t, err)
	assert.Equal(t, EventPolicyReloaded, (<-events).Type)
}

func TestCrawlServiceUpdatePolicy(t *testing.T) {
	svc, bus, _ := newTestService(t, nil)
	events := make(chan Event, 4)
	bus.Subscribe(events)

	_, err := svc.UpdatePolicy(policy.Document{AllowedSubnets: []string{"not-a-cidr"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	doc, err := svc.UpdatePolicy(policy.Document{AllowedSubnets: []string{"10.0.0.0/8"}})
	require.NoError(t, err)
	assert.Empty(t, doc.ProtectedDevices)
	assert.Equal(t, EventPolicyReloaded, (<-events).Type)

	// The crawler sees the new policy: CORE-SW01 is no longer protected
	graph, err := svc.Run(context.Background(), CrawlRequest{Hostname: "R1", Address: "10.0.0.1", MaxDepth: 1})
	require.NoError(t, err)
	core := graph.Node("CORE-SW01")
	require.NotNil(t, core)
	assert.NotEqual(t, domain.NodeStatusDenied, core.Status)
}

func TestCrawlServiceCheckPolicy(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	d, err := svc.CheckPolicy("10.1.2.3", "R9")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = svc.CheckPolicy("10.1.2.3", "CORE-SW01")
	require.NoError(t, err)
	assert.Equal(t, policy.ReasonProtected, d.Reason)

	d, err = svc.CheckPolicy("8.8.8.8", "dns")
	require.NoError(t, err)
	assert.Equal(t, policy.ReasonOutsideRanges, d.Reason)
}

func TestCrawlServiceImportCrawl(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	graph := domain.NewTopologyGraph("", "R1", 2)
	graph.AddNode(domain.TopologyNode{Hostname: "R1", Address: "10.0.0.1", Status: domain.NodeStatusExpanded})
	graph.Finish(false)

	require.NoError(t, svc.ImportCrawl(ctx, graph))
	require.NotEmpty(t, graph.ID)

	stored, err := svc.GetCrawl(ctx, graph.ID)
	require.NoError(t, err)
	assert.Equal(t, "R1", stored.Seed)
	assert.Len(t, stored.Nodes, 1)
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	fast := make(chan Event, 4)
	slow := make(chan Event)
	bus.Subscribe(fast)
	bus.Subscribe(slow)

	bus.PublishDiscoveryEvent(crawler.EventNodeDenied, "CORE-SW01")

	ev := <-fast
	assert.Equal(t, EventType(crawler.EventNodeDenied), ev.Type)
	assert.Equal(t, "CORE-SW01", ev.Payload)

	bus.Unsubscribe(fast)
	bus.Publish(Event{Type: EventCrawlSaved})
	select {
	case ev := <-fast:
		t.Errorf("unexpected event after unsubscribe: %v", ev)
	default:
	}
}

func TestEventBusStreamKeepsEveryEvent(t *testing.T) {
	bus := NewEventBus()
	events, stop := bus.Stream(context.Background())

	// Far more than any channel subscriber buffers, published before reading
	const total = 1000
	for i := 0; i < total; i++ {
		bus.Publish(Event{Type: EventCrawlSaved, Payload: i})
	}
	stop()

	var got []int
	for ev := range events {
		got = append(got, ev.Payload.(int))
	}
	require.Len(t, got, total)
	for i, v := range got {
		assert.Equal(t, i, v)
	}

	// Publishing after stop reaches nobody
	bus.Publish(Event{Type: EventCrawlSaved})
	stop()
}

func TestEventBusStreamClosesOnContext(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	events, stop := bus.Stream(ctx)
	defer stop()

	bus.Publish(Event{Type: EventPolicyReloaded})
	ev := <-events
	assert.Equal(t, EventPolicyReloaded, ev.Type)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	bus.mu.RLock()
	defer bus.mu.RUnlock()
	assert.Empty(t, bus.streams)
}

func TestCrawlRequestCredentials(t *testing.T) {
	req := CrawlRequest{Username: "admin", Password: "secret"}
	assert.False(t, strings.Contains(req.Credentials().String(), "secret"))
}
