package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig configures the SSH transport
type SSHConfig struct {
	// ConnectTimeout bounds TCP dial plus SSH handshake
	ConnectTimeout time.Duration
	// KnownHostsFile enables host key verification; empty accepts any key
	KnownHostsFile string
	// LegacyAlgorithms adds the SHA-1 key exchanges and CBC ciphers older
	// network operating systems still require
	LegacyAlgorithms bool
}

// SSHTransport opens exec-channel sessions over golang.org/x/crypto/ssh
type SSHTransport struct {
	config SSHConfig
}

// NewSSHTransport creates an SSH transport
func NewSSHTransport(config SSHConfig) *SSHTransport {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	return &SSHTransport{config: config}
}

var legacyKeyExchanges = []string{
	"curve25519-sha256", "curve25519-sha256@libssh.org",
	"ecdh-sha2-nistp256", "ecdh-sha2-nistp384", "ecdh-sha2-nistp521",
	"diffie-hellman-group14-sha256", "diffie-hellman-group14-sha1", "diffie-hellman-group1-sha1",
}

var legacyCiphers = []string{
	"aes128-gcm@openssh.com", "aes256-gcm@openssh.com", "chacha20-poly1305@openssh.com",
	"aes128-ctr", "aes192-ctr", "aes256-ctr",
	"aes128-cbc", "3des-cbc",
}

// Dial connects and authenticates with password or keyboard-interactive auth
func (t *SSHTransport) Dial(ctx context.Context, target Target) (Conn, error) {
	config, err := t.clientConfig(target)
	if err != nil {
		return nil, err
	}

	port := target.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(target.Address, strconv.Itoa(port))

	dialer := &net.Dialer{
		Timeout: t.config.ConnectTimeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	// Bound the handshake too; the dialer timeout only covers TCP
	deadline := time.Now().Add(t.config.ConnectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &sshConn{client: ssh.NewClient(clientConn, chans, reqs)}, nil
}

func (t *SSHTransport) clientConfig(target Target) (*ssh.ClientConfig, error) {
	if target.Username == "" {
		return nil, errors.New("username is required")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if t.config.KnownHostsFile != "" {
		cb, err := knownhosts.New(t.config.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	password := target.Password
	config := &ssh.ClientConfig{
		User: target.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			// Many network operating systems only offer keyboard-interactive
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.config.ConnectTimeout,
	}

	if t.config.LegacyAlgorithms {
		config.KeyExchanges = legacyKeyExchanges
		config.Ciphers = legacyCiphers
	}

	return config, nil
}

// sshConn runs each command on a fresh exec channel of one client
type sshConn struct {
	client *ssh.Client
}

// Run executes command and returns its combined output. A non-zero exit
// status still returns the output.
func (c *sshConn) Run(ctx context.Context, command string) (string, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: failed to create session: %v", ErrConnectionLost, err)
	}
	defer session.Close()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)

	go func() {
		out, err := session.CombinedOutput(command)
		done <- result{output: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			var exitErr *ssh.ExitError
			if errors.As(r.err, &exitErr) {
				return string(r.output), nil
			}
			return "", fmt.Errorf("command failed: %w", r.err)
		}
		return string(r.output), nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("command timeout: %w", ctx.Err())
	}
}

// Ping sends an OpenSSH keepalive request. Servers that do not know the
// request still answer it, so only a dead connection returns an error.
func (c *sshConn) Ping(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("keepalive: %w", ctx.Err())
	}
}

// Close closes the underlying SSH client
func (c *sshConn) Close() error {
	return c.client.Close()
}
