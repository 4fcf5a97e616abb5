// Package probe answers "is the management port open?" before the session
// layer spends a full SSH handshake timeout on an unreachable device.
package probe

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
)

// Prober checks TCP reachability of a single port
type Prober interface {
	PortOpen(ctx context.Context, address string, port int) (bool, error)
}

// NmapProber runs a single-port nmap scan with host discovery disabled
type NmapProber struct {
	timeout time.Duration
}

// NewNmapProber creates an nmap-backed prober
func NewNmapProber(timeout time.Duration) *NmapProber {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &NmapProber{timeout: timeout}
}

// Available reports whether the nmap binary can be executed
func (n *NmapProber) Available(ctx context.Context) bool {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets("localhost"),
		nmap.WithListScan(),
	)
	if err != nil {
		return false
	}
	_, _, err = scanner.Run()
	return err == nil
}

// PortOpen scans address:port and reports whether nmap saw it open
func (n *NmapProber) PortOpen(ctx context.Context, address string, port int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(address),
		nmap.WithPorts(strconv.Itoa(port)),
		nmap.WithSkipHostDiscovery(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return false, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		log.Printf("Probe: nmap warnings for %s: %v", address, *warnings)
	}

	return portOpenInRun(result, port), nil
}

// portOpenInRun looks for an open port entry on any host in the result
func portOpenInRun(result *nmap.Run, port int) bool {
	if result == nil {
		return false
	}
	for _, host := range result.Hosts {
		for _, p := range host.Ports {
			if int(p.ID) == port && p.State.State == "open" {
				return true
			}
		}
	}
	return false
}

// TCPProber is a plain connect check, used when nmap is not installed
type TCPProber struct {
	timeout time.Duration
}

// NewTCPProber creates a connect-based prober
func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	return &TCPProber{timeout: timeout}
}

// PortOpen dials address:port. A refused or timed-out dial is "closed", not an error.
func (p *TCPProber) PortOpen(ctx context.Context, address string, port int) (bool, error) {
	dialer := &net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	conn.Close()
	return true, nil
}

// Auto returns an nmap prober when nmap is installed, else a TCP prober
func Auto(ctx context.Context, timeout time.Duration) Prober {
	n := NewNmapProber(timeout)
	if n.Available(ctx) {
		log.Printf("Probe: using nmap for pre-flight checks")
		return n
	}
	log.Printf("Probe: nmap not available, using TCP connect checks")
	return NewTCPProber(timeout)
}
