// Package classifier maps device model strings to OS families.
//
// Rules are evaluated in order and the first match wins, so more specific
// patterns must precede broader ones ("nexus" before "cisco", "ios-xr"
// before "ios"). Unmatched input falls back to a default family.
package classifier

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"netcrawler/internal/domain"
)

// MatchKind selects how a rule pattern is compared against the model string
type MatchKind string

const (
	MatchContains MatchKind = "contains"
	MatchPrefix   MatchKind = "prefix"
	MatchExact    MatchKind = "exact"
)

// Rule maps a pattern to an OS family
type Rule struct {
	Pattern string          `yaml:"pattern"`
	Family  domain.OSFamily `yaml:"family"`
	Match   MatchKind       `yaml:"match,omitempty"`
}

// matches assumes model is already normalized
func (r Rule) matches(model string) bool {
	switch r.Match {
	case MatchPrefix:
		return strings.HasPrefix(model, r.Pattern)
	case MatchExact:
		return model == r.Pattern
	default:
		return strings.Contains(model, r.Pattern)
	}
}

// DefaultRules is the built-in ordered table
var DefaultRules = []Rule{
	// Cisco NX-OS
	{Pattern: "nexus", Family: domain.OSCiscoNXOS},
	{Pattern: "nx-os", Family: domain.OSCiscoNXOS},
	{Pattern: "nxos", Family: domain.OSCiscoNXOS},
	{Pattern: "n9k", Family: domain.OSCiscoNXOS, Match: MatchPrefix},
	{Pattern: "n7k", Family: domain.OSCiscoNXOS, Match: MatchPrefix},
	{Pattern: "n5k", Family: domain.OSCiscoNXOS, Match: MatchPrefix},
	{Pattern: "n3k", Family: domain.OSCiscoNXOS, Match: MatchPrefix},

	// Cisco IOS-XR, before plain IOS
	{Pattern: "ios-xr", Family: domain.OSCiscoXR},
	{Pattern: "ios xr", Family: domain.OSCiscoXR},
	{Pattern: "iosxr", Family: domain.OSCiscoXR},
	{Pattern: "asr9k", Family: domain.OSCiscoXR},
	{Pattern: "asr-9", Family: domain.OSCiscoXR},
	{Pattern: "ncs-5", Family: domain.OSCiscoXR},
	{Pattern: "ncs5", Family: domain.OSCiscoXR},
	{Pattern: "crs-", Family: domain.OSCiscoXR},

	// Cisco ASA
	{Pattern: "asa", Family: domain.OSCiscoASA, Match: MatchPrefix},
	{Pattern: "cisco asa", Family: domain.OSCiscoASA},
	{Pattern: "firepower", Family: domain.OSCiscoASA},

	// Other vendors
	{Pattern: "juniper", Family: domain.OSJuniperJunos},
	{Pattern: "junos", Family: domain.OSJuniperJunos},
	{Pattern: "mx", Family: domain.OSJuniperJunos, Match: MatchPrefix},
	{Pattern: "srx", Family: domain.OSJuniperJunos, Match: MatchPrefix},
	{Pattern: "ex2", Family: domain.OSJuniperJunos, Match: MatchPrefix},
	{Pattern: "ex3", Family: domain.OSJuniperJunos, Match: MatchPrefix},
	{Pattern: "ex4", Family: domain.OSJuniperJunos, Match: MatchPrefix},
	{Pattern: "qfx", Family: domain.OSJuniperJunos, Match: MatchPrefix},
	{Pattern: "arista", Family: domain.OSAristaEOS},
	{Pattern: "dcs-", Family: domain.OSAristaEOS, Match: MatchPrefix},
	{Pattern: "procurve", Family: domain.OSHPProcurve},
	{Pattern: "aruba", Family: domain.OSHPProcurve},
	{Pattern: "linux", Family: domain.OSLinux},

	// Broad Cisco IOS/IOS-XE catch-alls, last
	{Pattern: "catalyst", Family: domain.OSCiscoIOS},
	{Pattern: "ws-c", Family: domain.OSCiscoIOS, Match: MatchPrefix},
	{Pattern: "c9", Family: domain.OSCiscoIOS, Match: MatchPrefix},
	{Pattern: "isr", Family: domain.OSCiscoIOS},
	{Pattern: "ios", Family: domain.OSCiscoIOS},
	{Pattern: "cisco", Family: domain.OSCiscoIOS},
}

// Classifier is a pure, ordered model-string to OS family mapping
type Classifier struct {
	rules    []Rule
	fallback domain.OSFamily
}

// New creates a classifier. An empty rule list uses DefaultRules and an
// empty fallback uses cisco_ios.
func New(rules []Rule, fallback domain.OSFamily) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	if fallback == "" {
		fallback = domain.OSCiscoIOS
	}

	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		r.Pattern = normalize(r.Pattern)
		if r.Pattern == "" {
			continue
		}
		normalized = append(normalized, r)
	}

	return &Classifier{rules: normalized, fallback: fallback}
}

// Classify returns the family of the first matching rule, or the fallback
func (c *Classifier) Classify(model string) domain.OSFamily {
	m := normalize(model)
	if m == "" {
		return c.fallback
	}
	for _, r := range c.rules {
		if r.matches(m) {
			return r.Family
		}
	}
	return c.fallback
}

// Fallback returns the family used when no rule matches
func (c *Classifier) Fallback() domain.OSFamily {
	return c.fallback
}

// Rules returns a copy of the normalized rule table
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ruleFile is the on-disk override format
type ruleFile struct {
	Default domain.OSFamily `yaml:"default"`
	Rules   []Rule          `yaml:"rules"`
}

// LoadRules reads an ordered rule table from a YAML file
func LoadRules(path string) ([]Rule, domain.OSFamily, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read classifier rules: %w", err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, "", fmt.Errorf("parse classifier rules: %w", err)
	}

	for i, r := range rf.Rules {
		if strings.TrimSpace(r.Pattern) == "" {
			return nil, "", fmt.Errorf("rule %d: empty pattern", i)
		}
		if domain.ParseOSFamily(string(r.Family)) == domain.OSUnknown && r.Family != domain.OSUnknown {
			return nil, "", fmt.Errorf("rule %d: unknown family %q", i, r.Family)
		}
		switch r.Match {
		case "", MatchContains, MatchPrefix, MatchExact:
		default:
			return nil, "", fmt.Errorf("rule %d: unknown match kind %q", i, r.Match)
		}
	}

	return rf.Rules, rf.Default, nil
}
