package session

import (
	"context"

	"netcrawler/internal/domain"
)

// Target is everything a transport needs to open a connection
type Target struct {
	Hostname string
	Address  string
	Port     int
	OSFamily domain.OSFamily
	Username string
	Password string
}

// Transport opens command connections to devices
type Transport interface {
	Dial(ctx context.Context, target Target) (Conn, error)
}

// Conn runs one text command at a time and returns its output
type Conn interface {
	Run(ctx context.Context, command string) (string, error)
	// Ping reports whether the connection still answers
	Ping(ctx context.Context) error
	Close() error
}

// TransportFunc adapts a function to the Transport interface
type TransportFunc func(ctx context.Context, target Target) (Conn, error)

var _ Transport = TransportFunc(nil)

// Dial implements Transport
func (f TransportFunc) Dial(ctx context.Context, target Target) (Conn, error) {
	return f(ctx, target)
}
