package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netcrawler/internal/domain"
)

type fakeConn struct {
	outputs map[string]string
	block   chan struct{}
	entered chan struct{}
	closed  atomic.Bool
	// dropped simulates the device tearing the connection down
	dropped atomic.Bool
}

func (c *fakeConn) Run(ctx context.Context, command string) (string, error) {
	if c.dropped.Load() {
		return "", io.EOF
	}
	if c.entered != nil {
		close(c.entered)
	}
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	out, ok := c.outputs[command]
	if !ok {
		return "", errors.New("% Invalid input detected")
	}
	return out, nil
}

func (c *fakeConn) Ping(ctx context.Context) error {
	if c.dropped.Load() {
		return io.EOF
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeTransport struct {
	mu    sync.Mutex
	dials int
	conn  *fakeConn
	err   error
}

func (f *fakeTransport) Dial(ctx context.Context, target Target) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

type closedProber struct{}

func (closedProber) PortOpen(ctx context.Context, address string, port int) (bool, error) {
	return false, nil
}

func testCreds() domain.Credentials {
	return domain.Credentials{Username: "admin", Password: "secret"}
}

func TestManagerConnect(t *testing.T) {
	t.Run("success marks device connected", func(t *testing.T) {
		tr := &fakeTransport{conn: &fakeConn{outputs: map[string]string{"show version": "IOS"}}}
		m := NewManager(tr, Config{})
		dev := domain.NewDevice("R1", "10.0.0.1", domain.OSCiscoIOS)

		s, err := m.Connect(context.Background(), dev, testCreds())
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, domain.StateConnected, dev.State)
		assert.Empty(t, dev.LastError)

		out, err := s.SendCommand(context.Background(), "show version")
		require.NoError(t, err)
		assert.Equal(t, "IOS", out)
	})

	t.Run("reuses open session", func(t *testing.T) {
		tr := &fakeTransport{conn: &fakeConn{}}
		m := NewManager(tr, Config{})
		dev := domain.NewDevice("R1", "10.0.0.1", domain.OSCiscoIOS)

		first, err := m.Connect(context.Background(), dev, testCreds())
		require.NoError(t, err)
		second, err := m.Connect(context.Background(), dev, testCreds())
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, 1, tr.dials)
	})

	t.Run("dial failure marks device failed", func(t *testing.T) {
		tr := &fakeTransport{err: errors.New("authentication failed")}
		m := NewManager(tr, Config{})
		dev := domain.NewDevice("R1", "10.0.0.1", domain.OSCiscoIOS)

		s, err := m.Connect(context.Background(), dev, testCreds())
		assert.Nil(t, s)
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "R1", connErr.Host)
		assert.NotEmpty(t, connErr.Kind)
		assert.Equal(t, domain.StateFailed, dev.State)
		assert.Contains(t, dev.LastError, "authentication failed")

		_, ok := m.Session("R1")
		assert.False(t, ok)
	})

	t.Run("missing address rejected without dialing", func(t *testing.T) {
		tr := &fakeTransport{conn: &fakeConn{}}
		m := NewManager(tr, Config{})
		dev := domain.NewDevice("R1", "", domain.OSCiscoIOS)

		_, err := m.Connect(context.Background(), dev, testCreds())
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, KindInvalidParams, connErr.Kind)
		assert.Equal(t, 0, tr.dials)
		assert.Equal(t, domain.StateFailed, dev.State)
	})

	t.Run("missing username rejected", func(t *testing.T) {
		m := NewManager(&fakeTransport{conn: &fakeConn{}}, Config{})
		dev := domain.NewDevice("R1", "10.0.0.1", domain.OSCiscoIOS)

		_, err := m.Connect(context.Background(), dev, domain.Credentials{})
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, KindInvalidParams, connErr.Kind)
	})

	t.Run("closed port short-circuits dial", func(t *testing.T) {
		tr := &fakeTransport{conn: &fakeConn{}}
		m := NewManager(tr, Config{Prober: closedProber{}})
		dev := domain.NewDevice("R1", "10.0.0.1", domain.OSCiscoIOS)

		_, err := m.Connect(context.Background(), dev, testCreds())
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, KindPortClosed, connErr.Kind)
		assert.Equal(t, 0, tr.dials)
	})
}

func TestManagerConnectParams(t *testing.T) {
	t.Run("returns session on success", func(t *testing.T) {
		m := NewManager(&fakeTransport{conn: &fakeConn{}}, Config{})
		s := m.ConnectParams(context.Background(), Params{
			OSFamily: domain.OSCiscoIOS,
			Address:  "10.0.0.1",
			Username: "admin",
			Password: "secret",
		})
		require.NotNil(t, s)
		assert.Equal(t, "10.0.0.1", s.Host())
	})

	t.Run("returns nil on failure", func(t *testing.T) {
		m := NewManager(&fakeTransport{err: errors.New("unreachable")}, Config{})
		s := m.ConnectParams(context.Background(), Params{Address: "10.0.0.1", Username: "admin"})
		assert.Nil(t, s)
	})
}

func TestSessionSendCommand(t *testing.T) {
	t.Run("command failure is a CommandError", func(t *testing.T) {
		m := NewManager(&fakeTransport{conn: &fakeConn{}}, Config{})
		dev := domain.NewDevice("R1", "10.0.0.1", domain.OSCiscoIOS)
		s, err := m.Connect(context.Background(), dev, testCreds())
		require.NoError(t, err)

		_, err = s.SendCommand(context.Background(), "show bogus")
		var cmdErr *CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Equal(t, "show bogus", cmdErr.Command)
		assert.Equal(t, "R1", cmdErr.Host)
	})

	t.Run("concurrent command is rejected as busy", func(t *testing.T) {
		conn := &fakeConn{
			outputs: map[string]string{"show cdp": "ok"},
			block:   make(chan struct{}),
			entered: make(chan struct{}),
		}
		m := NewManager(&fakeTransport{conn: conn}, Config{})
		dev := domain.NewDevice("R1", "10.0.0.1", domain.OSCiscoIOS)
		s, err := m.Connect(context.Background(), dev, testCreds())
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			_, err := s.SendCommand(context.Background(), "show cdp")
			done <- err
		}()
		<-conn.entered

		_, err = s.SendCommand(context.Background(), "show cdp")
		assert.ErrorIs(t, err, ErrSessionBusy)

		close(conn.block)
		assert.NoError(t, <-done)
	})

	t.Run("session timeout bounds the command", func(t *testing.T) {
		conn := &fakeConn{block: make(chan struct{})}
		m := NewManager(&fakeTransport{conn: conn}, Config{SessionTimeout: 20 * time.Millisecond})
		dev := domain.NewDevice("R1", "10.0.0.1", domain.OSCiscoIOS)
		s, err := m.Connect(context.Background(), dev, testCreds())
		require.NoError(t, err)

		_, err = s.SendCommand(context.Background(), "show cdp")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("closed session rejects commands", func(t *testing.T) {
		conn := &fakeConn{}
		m := NewManager(&fakeTransport{conn: conn}, Config{})
		dev := domain.NewDevice("R1", "10.0.0.1", domain.OSCiscoIOS)
		s, err := m.Connect(context.Background(), dev, testCreds())
		require.NoError(t, err)

		require.NoError(t, m.Disconnect("R1"))
		assert.True(t, conn.closed.Load())

		_, err = s.SendCommand(context.Background(), "show cdp")
		assert.ErrorIs(t, err, ErrSessionClosed)
		assert.NoError(t, s.Close())
	})
}

func TestManagerSendCommandNotConnected(t *testing.T) {
	m := NewManager(&fakeTransport{conn: &fakeConn{}}, Config{})
	_, err := m.SendCommand(context.Background(), "R9", "show cdp")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestManagerCloseAll(t *testing.T) {
	conn := &fakeConn{}
	m := NewManager(&fakeTransport{conn: conn}, Config{})
	for _, h := range []string{"R1", "R2"} {
		_, err := m.Connect(context.Background(), domain.NewDevice(h, "10.0.0.1", domain.OSCiscoIOS), testCreds())
		require.NoError(t, err)
	}

	m.CloseAll()

	_, ok := m.Session("R1")
	assert.False(t, ok)
	_, ok = m.Session("R2")
	assert.False(t, ok)
	assert.True(t, conn.closed.Load())
}

// freshConns hands out a new fakeConn per dial
type freshConns struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (f *freshConns) Dial(ctx context.Context, target Target) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeConn{outputs: map[string]string{"show cdp neighbors detail": "Device ID: R2"}}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *freshConns) dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func TestManagerConnectRedialsDroppedSession(t *testing.T) {
	tr := &freshConns{}
	m := NewManager(tr, Config{})
	dev := domain.NewDevice("R1", "10.0.0.1", domain.OSCiscoIOS)

	first, err := m.Connect(context.Background(), dev, testCreds())
	require.NoError(t, err)
	tr.conns[0].dropped.Store(true)

	second, err := m.Connect(context.Background(), dev, testCreds())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, tr.dials())
	assert.True(t, tr.conns[0].closed.Load(), "stale connection is closed")
	assert.True(t, first.Closed())
	assert.Equal(t, domain.StateConnected, dev.State)

	out, err := second.SendCommand(context.Background(), "show cdp neighbors detail")
	require.NoError(t, err)
	assert.Equal(t, "Device ID: R2", out)
}

func TestSessionClosesOnLostConnection(t *testing.T) {
	tr := &freshConns{}
	m := NewManager(tr, Config{})
	dev := domain.NewDevice("R1", "10.0.0.1", domain.OSCiscoIOS)

	s, err := m.Connect(context.Background(), dev, testCreds())
	require.NoError(t, err)
	tr.conns[0].dropped.Store(true)

	_, err = s.SendCommand(context.Background(), "show cdp neighbors detail")
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, s.Closed())
	_, ok := m.Session("R1")
	assert.False(t, ok, "a dropped session is not handed out again")

	// An ordinary command error leaves the session usable
	s, err = m.Connect(context.Background(), dev, testCreds())
	require.NoError(t, err)
	_, err = s.SendCommand(context.Background(), "show bogus")
	require.Error(t, err)
	assert.False(t, s.Closed())
}

func TestScope(t *testing.T) {
	tr := &freshConns{}
	m := NewManager(tr, Config{})
	defer m.CloseAll()

	first := m.NewScope()
	second := m.NewScope()

	a, err := first.Connect(context.Background(), domain.NewDevice("R1", "10.0.0.1", domain.OSCiscoIOS), testCreds())
	require.NoError(t, err)
	b, err := second.Connect(context.Background(), domain.NewDevice("R1", "10.0.0.1", domain.OSCiscoIOS), testCreds())
	require.NoError(t, err)

	assert.NotSame(t, a, b, "scopes never share sessions")
	assert.Equal(t, 2, tr.dials())
	_, ok := m.Session("R1")
	assert.False(t, ok, "scoped sessions are not tracked by the manager")

	got, ok := first.Session("R1")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, 1, first.Len())

	first.Close()
	assert.True(t, a.Closed())
	assert.False(t, b.Closed())
	_, ok = first.Session("R1")
	assert.False(t, ok)

	second.Close()
	assert.True(t, b.Closed())
}

type recordingConn struct {
	mu       sync.Mutex
	commands []string
}

func (c *recordingConn) Run(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, command)
	return "", nil
}

func (c *recordingConn) Ping(ctx context.Context) error { return nil }

func (c *recordingConn) Close() error { return nil }

func TestManagerConnectSendsNoCommands(t *testing.T) {
	// Each command runs on its own exec channel, so nothing sent at login
	// could carry over to later commands
	for _, family := range []domain.OSFamily{domain.OSCiscoIOS, domain.OSCiscoASA, domain.OSLinux} {
		t.Run(string(family), func(t *testing.T) {
			conn := &recordingConn{}
			tr := TransportFunc(func(ctx context.Context, target Target) (Conn, error) {
				return conn, nil
			})
			m := NewManager(tr, Config{})

			_, err := m.Connect(context.Background(), domain.NewDevice("R1", "10.0.0.1", family), testCreds())
			require.NoError(t, err)
			assert.Empty(t, conn.commands)
		})
	}
}
