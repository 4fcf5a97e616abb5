package parser

import (
	"strings"

	"netcrawler/internal/domain"
)

// LLDPCommand produces the detailed LLDP neighbor report
const LLDPCommand = "show lldp neighbors detail"

// LLDPParser parses "show lldp neighbors detail" output.
// IOS lists "Local Intf" first, NX-OS and IOS-XR list "Chassis id" first;
// a record boundary is the second occurrence of either marker.
type LLDPParser struct{}

// NewLLDPParser creates an LLDP parser
func NewLLDPParser() *LLDPParser {
	return &LLDPParser{}
}

// Protocol returns "lldp"
func (p *LLDPParser) Protocol() string { return "lldp" }

// Command returns the LLDP detail command
func (p *LLDPParser) Command() string { return LLDPCommand }

var lldpMarkers = []string{"Local Intf:", "Local Port id:", "Local Interface:", "Chassis id:"}

// Parse extracts one record per neighbor entry
func (p *LLDPParser) Parse(raw string) []domain.NeighborRecord {
	b := &recordBuilder{}
	wantDescription := false

	for _, line := range splitLines(raw) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "----") {
			b.flush()
			wantDescription = false
			continue
		}

		if marker, v, ok := matchMarker(trimmed); ok {
			if b.current == nil || b.seen[marker] {
				b.start()
			}
			b.seen[marker] = true
			if marker != "Chassis id:" {
				b.current.LocalInterface = v
			}
			wantDescription = false
			continue
		}

		if wantDescription {
			wantDescription = false
			if b.current != nil && !strings.Contains(trimmed, ":") {
				setPlatform(b.current, trimmed)
				continue
			}
		}

		switch {
		case strings.HasPrefix(trimmed, "System Name:"):
			v, _ := valueAfter(trimmed, "System Name:")
			b.ensure().Hostname = v

		case strings.HasPrefix(trimmed, "Port id:"):
			v, _ := valueAfter(trimmed, "Port id:")
			b.ensure().RemoteInterface = v

		case strings.HasPrefix(trimmed, "System Description:"):
			v, _ := valueAfter(trimmed, "System Description:")
			if v == "" {
				wantDescription = true
			} else {
				setPlatform(b.ensure(), v)
			}

		case strings.HasPrefix(trimmed, "Enabled Capabilities:"):
			v, _ := valueAfter(trimmed, "Enabled Capabilities:")
			b.ensure().Capabilities = splitCapabilities(v)

		case strings.HasPrefix(trimmed, "IP:"), strings.HasPrefix(trimmed, "IPv4 address:"),
			strings.HasPrefix(trimmed, "Management Address:"):
			_, v, _ := strings.Cut(trimmed, ":")
			v = strings.TrimSpace(v)
			rec := b.ensure()
			if rec.Address == "" && v != "" && !strings.EqualFold(v, "not advertised") {
				rec.Address = v
			}
		}
	}

	return b.finish()
}

func matchMarker(line string) (string, string, bool) {
	for _, m := range lldpMarkers {
		if v, ok := strings.CutPrefix(line, m); ok {
			return m, strings.TrimSpace(v), true
		}
	}
	return "", "", false
}

func setPlatform(rec *domain.NeighborRecord, description string) {
	rec.Platform = description
	rec.OSFamily = PlatformFamily(description)
}
