package parser

import (
	"strings"

	"netcrawler/internal/domain"
)

// CDPCommand produces the detailed CDP neighbor report
const CDPCommand = "show cdp neighbors detail"

// CDPParser parses "show cdp neighbors detail" output (IOS, IOS-XE, NX-OS, IOS-XR)
type CDPParser struct{}

// NewCDPParser creates a CDP parser
func NewCDPParser() *CDPParser {
	return &CDPParser{}
}

// Protocol returns "cdp"
func (p *CDPParser) Protocol() string { return "cdp" }

// Command returns the CDP detail command
func (p *CDPParser) Command() string { return CDPCommand }

// Parse extracts one record per "Device ID" block
func (p *CDPParser) Parse(raw string) []domain.NeighborRecord {
	b := &recordBuilder{}

	for _, line := range splitLines(raw) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if v, ok := valueAfter(trimmed, "Device ID:"); ok {
			b.start()
			b.current.Hostname = v
			continue
		}
		if b.current == nil {
			// Header text before the first entry
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "IP address:"), strings.HasPrefix(trimmed, "IPv4 Address:"),
			strings.HasPrefix(trimmed, "IPv4 address:"):
			// The first address is the entry address; management
			// addresses listed later are usually the same.
			if b.current.Address == "" {
				_, v, _ := strings.Cut(trimmed, ":")
				b.current.Address = strings.TrimSpace(v)
			}

		case strings.HasPrefix(trimmed, "Platform:"):
			p.parsePlatformLine(b.current, trimmed)

		case strings.HasPrefix(trimmed, "Interface:"):
			parseInterfaceLine(b.current, trimmed)
		}
	}

	return b.finish()
}

// parsePlatformLine handles "Platform: cisco WS-C3850,  Capabilities: Switch IGMP"
func (p *CDPParser) parsePlatformLine(rec *domain.NeighborRecord, line string) {
	v, _ := valueAfter(line, "Platform:")
	platform, rest, hasComma := strings.Cut(v, ",")
	platform = strings.TrimSpace(platform)
	if platform == "" {
		return
	}
	rec.Platform = platform
	rec.OSFamily = PlatformFamily(platform)

	if hasComma {
		if caps, ok := valueAfter(rest, "Capabilities:"); ok {
			rec.Capabilities = splitCapabilities(caps)
		}
	}
}

// parseInterfaceLine handles "Interface: Gi0/1,  Port ID (outgoing port): Gi0/0"
func parseInterfaceLine(rec *domain.NeighborRecord, line string) {
	local, rest, _ := strings.Cut(line, ",")
	if v, ok := valueAfter(local, "Interface:"); ok {
		rec.LocalInterface = v
	}
	if v, ok := valueAfter(rest, "Port ID (outgoing port):"); ok {
		rec.RemoteInterface = v
	}
}
