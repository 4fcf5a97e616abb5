// Package policy implements the crawl boundary: which neighbors the crawler
// may connect to.
//
// A Policy is an immutable snapshot of allowed address ranges and protected
// hostnames. The Validator owns the policy file and hands out a fresh
// snapshot on each Reload, so a crawl keeps using the snapshot it started
// with even if the file changes underneath it.
package policy

import (
	"fmt"
	"net/netip"
	"strings"
)

// Denial reasons
const (
	ReasonProtected      = "protected devices list"
	ReasonOutsideRanges  = "outside allowed ranges"
	ReasonAllowed        = "allowed"
	reasonInvalidAddress = "invalid address"
)

// Document is the on-disk policy format
type Document struct {
	AllowedSubnets   []string `yaml:"allowed_subnets" json:"allowed_subnets"`
	ProtectedDevices []string `yaml:"protected_devices" json:"protected_devices"`
}

// DefaultDocument returns the policy written when no file exists
func DefaultDocument() Document {
	return Document{
		AllowedSubnets: []string{
			"10.0.0.0/8",
			"172.16.0.0/12",
			"192.168.0.0/16",
		},
		ProtectedDevices: []string{
			"CORE-SW01",
			"CORE-RTR01",
			"FIREWALL01",
			"DC-CORE-01",
			"PROD-FW-01",
		},
	}
}

// Decision is the outcome of a boundary check. Denial is not an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Policy is an immutable boundary snapshot
type Policy struct {
	allowed   []netip.Prefix
	protected map[string]struct{}
	doc       Document
}

// New compiles a document into a policy. Any invalid range is an error.
func New(doc Document) (*Policy, error) {
	p := &Policy{
		allowed:   make([]netip.Prefix, 0, len(doc.AllowedSubnets)),
		protected: make(map[string]struct{}, len(doc.ProtectedDevices)),
	}

	for _, s := range doc.AllowedSubnets {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid allowed subnet %q: %w", s, err)
		}
		p.allowed = append(p.allowed, prefix.Masked())
	}

	for _, h := range doc.ProtectedDevices {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		p.protected[h] = struct{}{}
	}

	p.doc = Document{
		AllowedSubnets:   append([]string(nil), doc.AllowedSubnets...),
		ProtectedDevices: append([]string(nil), doc.ProtectedDevices...),
	}
	return p, nil
}

// IsAllowed decides whether the crawler may connect to (address, hostname).
// The protected list is consulted first, then the address ranges.
func (p *Policy) IsAllowed(address, hostname string) Decision {
	if p.IsProtected(hostname) {
		return Decision{Allowed: false, Reason: ReasonProtected}
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(address))
	if err != nil {
		return Decision{Allowed: false, Reason: fmt.Sprintf("%s: %v", reasonInvalidAddress, err)}
	}
	addr = addr.Unmap()

	if !p.Contains(addr) {
		return Decision{Allowed: false, Reason: ReasonOutsideRanges}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

// IsProtected reports an exact hostname match against the protected list
func (p *Policy) IsProtected(hostname string) bool {
	_, ok := p.protected[hostname]
	return ok
}

// Contains reports whether addr falls within any allowed range
func (p *Policy) Contains(addr netip.Addr) bool {
	for _, prefix := range p.allowed {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Document returns a copy of the source document
func (p *Policy) Document() Document {
	return Document{
		AllowedSubnets:   append([]string(nil), p.doc.AllowedSubnets...),
		ProtectedDevices: append([]string(nil), p.doc.ProtectedDevices...),
	}
}
