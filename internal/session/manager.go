package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/errclass"

	"netcrawler/internal/domain"
	"netcrawler/internal/probe"
)

// Config holds connection manager settings
type Config struct {
	// ConnectTimeout bounds each connection attempt
	ConnectTimeout time.Duration
	// SessionTimeout bounds each command
	SessionTimeout time.Duration
	// Port is the management port
	Port int
	// Prober, when set, checks the management port before dialing
	Prober probe.Prober
}

// DefaultConfig returns the default connection settings
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		SessionTimeout: 60 * time.Second,
		Port:           22,
	}
}

// Params is a direct connection request without a registered device
type Params struct {
	OSFamily domain.OSFamily
	Address  string
	Username string
	Password string
}

// Manager opens and tracks device sessions.
// Safe for concurrent use; sessions are keyed by hostname.
type Manager struct {
	transport Transport
	config    Config
	open      *sessionSet
}

// NewManager creates a connection manager
func NewManager(transport Transport, config Config) *Manager {
	defaults := DefaultConfig()
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	if config.SessionTimeout == 0 {
		config.SessionTimeout = defaults.SessionTimeout
	}
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	return &Manager{
		transport: transport,
		config:    config,
		open:      newSessionSet(),
	}
}

// Connect opens a session to device and records the outcome on it.
// An existing session for the hostname is reused only if it still answers
// a liveness check; a stale one is closed and redialed.
func (m *Manager) Connect(ctx context.Context, device *domain.Device, creds domain.Credentials) (*Session, error) {
	return m.connect(ctx, m.open, device, creds)
}

// NewScope returns an empty session set sharing this manager's transport
// and settings. A crawl connects through its own scope so its sessions are
// never shared with, or closed by, another crawl.
func (m *Manager) NewScope() *Scope {
	return &Scope{manager: m, open: newSessionSet()}
}

func (m *Manager) connect(ctx context.Context, set *sessionSet, device *domain.Device, creds domain.Credentials) (*Session, error) {
	if s, ok := set.get(device.Hostname); ok {
		err := s.ping(ctx, m.config.ConnectTimeout)
		if err == nil {
			device.SetState(domain.StateConnected, nil)
			return s, nil
		}
		log.Printf("Session: %s: cached session is stale (%v), reconnecting", device.Hostname, err)
		set.remove(device.Hostname, s)
		s.Close()
	}

	target := Target{
		Hostname: device.Hostname,
		Address:  device.Address,
		Port:     m.config.Port,
		OSFamily: device.OSFamily,
		Username: creds.Username,
		Password: creds.Password,
	}

	s, err := m.dial(ctx, target)
	if err != nil {
		device.SetState(domain.StateFailed, err)
		return nil, err
	}
	device.SetState(domain.StateConnected, nil)

	if existing := set.put(device.Hostname, s); existing != s {
		// Lost a race with a concurrent Connect for the same host
		s.Close()
		return existing, nil
	}

	log.Printf("Session: connected to %s", device)
	return s, nil
}

// ConnectParams opens an untracked session from raw parameters.
// Returns nil on failure; the cause is logged.
func (m *Manager) ConnectParams(ctx context.Context, params Params) *Session {
	target := Target{
		Hostname: params.Address,
		Address:  params.Address,
		Port:     m.config.Port,
		OSFamily: params.OSFamily,
		Username: params.Username,
		Password: params.Password,
	}
	s, err := m.dial(ctx, target)
	if err != nil {
		log.Printf("Session: %v", err)
		return nil
	}
	return s
}

func (m *Manager) dial(ctx context.Context, target Target) (*Session, error) {
	if target.Address == "" {
		return nil, &ConnectionError{Host: target.Hostname, Kind: KindInvalidParams, Err: errors.New("address is required")}
	}
	if target.Username == "" {
		return nil, &ConnectionError{Host: target.Hostname, Kind: KindInvalidParams, Err: errors.New("username is required")}
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()

	if m.config.Prober != nil {
		open, err := m.config.Prober.PortOpen(connectCtx, target.Address, target.Port)
		if err == nil && !open {
			return nil, &ConnectionError{
				Host: target.Hostname,
				Kind: KindPortClosed,
				Err:  fmt.Errorf("port %d closed on %s", target.Port, target.Address),
			}
		}
		// A probe error is not conclusive; fall through to the dial
	}

	conn, err := m.transport.Dial(connectCtx, target)
	if err != nil {
		return nil, &ConnectionError{Host: target.Hostname, Kind: errclass.New(err), Err: err}
	}

	return &Session{
		host:    target.Hostname,
		conn:    conn,
		timeout: m.config.SessionTimeout,
	}, nil
}

// Session returns the open session for hostname
func (m *Manager) Session(hostname string) (*Session, bool) {
	return m.open.get(hostname)
}

// SendCommand runs command on the session held for hostname
func (m *Manager) SendCommand(ctx context.Context, hostname, command string) (string, error) {
	s, ok := m.Session(hostname)
	if !ok {
		return "", &CommandError{Host: hostname, Command: command, Err: ErrNotConnected}
	}
	return s.SendCommand(ctx, command)
}

// Disconnect closes and forgets the session for hostname
func (m *Manager) Disconnect(hostname string) error {
	s, ok := m.open.take(hostname)
	if !ok {
		return nil
	}
	return s.Close()
}

// CloseAll closes every tracked session
func (m *Manager) CloseAll() {
	m.open.closeAll()
}

// Scope is a set of sessions owned by one crawl
type Scope struct {
	manager *Manager
	open    *sessionSet
}

// Connect opens, or reuses, a session within the scope
func (sc *Scope) Connect(ctx context.Context, device *domain.Device, creds domain.Credentials) (*Session, error) {
	return sc.manager.connect(ctx, sc.open, device, creds)
}

// Session returns the scope's open session for hostname
func (sc *Scope) Session(hostname string) (*Session, bool) {
	return sc.open.get(hostname)
}

// Len returns the number of sessions held by the scope
func (sc *Scope) Len() int {
	return sc.open.len()
}

// Close closes every session opened through the scope
func (sc *Scope) Close() {
	sc.open.closeAll()
}

// sessionSet maps hostnames to sessions
type sessionSet struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newSessionSet() *sessionSet {
	return &sessionSet{sessions: make(map[string]*Session)}
}

// get skips sessions that have been closed
func (ss *sessionSet) get(hostname string) (*Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	s, ok := ss.sessions[hostname]
	if !ok || s.Closed() {
		return nil, false
	}
	return s, true
}

// put stores s unless an open session is already held, and returns the
// session that ends up stored
func (ss *sessionSet) put(hostname string, s *Session) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if existing, ok := ss.sessions[hostname]; ok && !existing.Closed() {
		return existing
	}
	ss.sessions[hostname] = s
	return s
}

// remove forgets hostname only if it still maps to s
func (ss *sessionSet) remove(hostname string, s *Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.sessions[hostname] == s {
		delete(ss.sessions, hostname)
	}
}

func (ss *sessionSet) take(hostname string) (*Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.sessions[hostname]
	delete(ss.sessions, hostname)
	return s, ok
}

func (ss *sessionSet) len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.sessions)
}

func (ss *sessionSet) closeAll() {
	ss.mu.Lock()
	sessions := ss.sessions
	ss.sessions = make(map[string]*Session)
	ss.mu.Unlock()

	for host, s := range sessions {
		if err := s.Close(); err != nil {
			log.Printf("Session: failed to close %s: %v", host, err)
		}
	}
}

// Session is an open connection to one device.
// It runs at most one command at a time.
type Session struct {
	host    string
	conn    Conn
	timeout time.Duration

	cmdMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// Host returns the hostname the session belongs to
func (s *Session) Host() string {
	return s.host
}

// SendCommand runs text on the device and returns its raw output.
// A concurrent call on the same session fails with ErrSessionBusy.
func (s *Session) SendCommand(ctx context.Context, text string) (string, error) {
	if s.Closed() {
		return "", &CommandError{Host: s.host, Command: text, Err: ErrSessionClosed}
	}
	if !s.cmdMu.TryLock() {
		return "", &CommandError{Host: s.host, Command: text, Err: ErrSessionBusy}
	}
	defer s.cmdMu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.conn.Run(ctx, text)
	if err != nil {
		if connectionLost(err) {
			log.Printf("Session: %s: connection lost: %v", s.host, err)
			s.Close()
		}
		return "", &CommandError{Host: s.host, Command: text, Err: err}
	}
	return out, nil
}

// ping checks that the connection still answers, bounded by timeout
func (s *Session) ping(ctx context.Context, timeout time.Duration) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.conn.Ping(ctx)
}

// connectionLost reports errors after which the connection cannot carry
// another command
func connectionLost(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, ErrConnectionLost)
}

// Closed reports whether Close has been called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the connection. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}
