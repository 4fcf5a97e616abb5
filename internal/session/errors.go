package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionBusy is returned when a command is already in flight
	ErrSessionBusy = errors.New("session busy: another command is in flight")
	// ErrSessionClosed is returned for commands on a closed session
	ErrSessionClosed = errors.New("session closed")
	// ErrNotConnected is returned when a device has no session
	ErrNotConnected = errors.New("device not connected")
	// ErrConnectionLost marks transport failures after which the
	// connection is unusable; the session is closed when one is seen
	ErrConnectionLost = errors.New("connection lost")
)

// Connection error kinds not covered by errclass
const (
	KindInvalidParams = "EINVALIDPARAMS"
	KindPortClosed    = "EPORTCLOSED"
)

// ConnectionError is a failed connect: timeout, authentication failure,
// unreachable host. Kind is a short classification label.
type ConnectionError struct {
	Host string
	Kind string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("connect %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("connect %s: %s: %v", e.Host, e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CommandError is a failed command on an open session
type CommandError struct {
	Host    string
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: command %q: %v", e.Host, e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
