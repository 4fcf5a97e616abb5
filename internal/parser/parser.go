// Package parser turns neighbor-discovery command output into NeighborRecords.
//
// The whole report is buffered and scanned line by line. A record starts at
// each device-identity marker and collects fields until the next marker or
// the end of input. Lines that do not match are ignored, so partial or
// malformed reports yield partial records. Records without a hostname are
// dropped; records without an address are kept.
package parser

import (
	"fmt"
	"strings"

	"netcrawler/internal/domain"
)

// Parser parses the report produced by Command
type Parser interface {
	// Protocol returns the discovery protocol name ("cdp", "lldp")
	Protocol() string
	// Command returns the CLI command producing the report
	Command() string
	// Parse extracts neighbor records from raw output
	Parse(raw string) []domain.NeighborRecord
}

// ForProtocol returns the parser for a discovery protocol name
func ForProtocol(name string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cdp":
		return NewCDPParser(), nil
	case "lldp":
		return NewLLDPParser(), nil
	default:
		return nil, fmt.Errorf("unsupported discovery protocol: %s", name)
	}
}

// ForFamily returns the parsers to try, in order, when querying a device of
// family. Cisco routing and switching platforms (and devices of unknown
// family) are asked with preferred first and the other protocol as a
// fallback; every other family only speaks LLDP.
func ForFamily(family domain.OSFamily, preferred Parser) []Parser {
	switch family {
	case domain.OSCiscoIOS, domain.OSCiscoNXOS, domain.OSCiscoXR, domain.OSUnknown, "":
		if preferred.Protocol() == "lldp" {
			return []Parser{preferred, NewCDPParser()}
		}
		return []Parser{preferred, NewLLDPParser()}
	default:
		if preferred.Protocol() == "lldp" {
			return []Parser{preferred}
		}
		return []Parser{NewLLDPParser()}
	}
}

// PlatformFamily is the coarse platform heuristic shared by the parsers.
// It only tells Nexus and IOS-XR platforms apart from everything else.
func PlatformFamily(platform string) domain.OSFamily {
	p := strings.ToLower(platform)
	switch {
	case strings.Contains(p, "nexus"):
		return domain.OSCiscoNXOS
	case strings.Contains(p, "ios-xr"), strings.Contains(p, "ios xr"):
		return domain.OSCiscoXR
	default:
		return domain.OSCiscoIOS
	}
}

// recordBuilder accumulates the in-progress record
type recordBuilder struct {
	records []domain.NeighborRecord
	current *domain.NeighborRecord
	seen    map[string]bool
}

func (b *recordBuilder) start() {
	b.flush()
	b.current = &domain.NeighborRecord{}
	b.seen = make(map[string]bool)
}

// ensure lazily opens a record for fields that precede any marker
func (b *recordBuilder) ensure() *domain.NeighborRecord {
	if b.current == nil {
		b.start()
	}
	return b.current
}

func (b *recordBuilder) flush() {
	if b.current != nil && b.current.Hostname != "" {
		b.records = append(b.records, *b.current)
	}
	b.current = nil
	b.seen = nil
}

func (b *recordBuilder) finish() []domain.NeighborRecord {
	b.flush()
	return b.records
}

// valueAfter returns the trimmed text after label, if line contains label
func valueAfter(line, label string) (string, bool) {
	idx := strings.Index(line, label)
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(line[idx+len(label):]), true
}

func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	return strings.Split(raw, "\n")
}

func splitCapabilities(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
