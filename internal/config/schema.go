package config

import (
	"time"

	"netcrawler/internal/classifier"
	"netcrawler/internal/domain"
)

// Config is the root configuration structure
type Config struct {
	Version    int              `yaml:"version"`
	PolicyPath string           `yaml:"policy_path"`
	Database   DatabaseConfig   `yaml:"database"`
	Crawl      CrawlConfig      `yaml:"crawl"`
	Connection ConnectionConfig `yaml:"connection"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Server     ServerConfig     `yaml:"server"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CrawlConfig holds traversal settings
type CrawlConfig struct {
	MaxDepth  int             `yaml:"max_depth"`
	Workers   int             `yaml:"workers"`
	Protocol  string          `yaml:"protocol"` // cdp, lldp
	DefaultOS domain.OSFamily `yaml:"default_os"`
}

// ConnectionConfig holds SSH session settings. The password is never read
// from the file; it comes from a flag or NETCRAWLER_PASSWORD.
type ConnectionConfig struct {
	ConnectTimeout   Duration `yaml:"connect_timeout"`
	SessionTimeout   Duration `yaml:"session_timeout"`
	Port             int      `yaml:"port"`
	Username         string   `yaml:"username,omitempty"`
	Preflight        bool     `yaml:"preflight"`
	KnownHostsFile   string   `yaml:"known_hosts,omitempty"`
	LegacyAlgorithms bool     `yaml:"legacy_algorithms"`
}

// ClassifierConfig overrides the built-in model string table. RulesFile
// takes precedence over inline Rules.
type ClassifierConfig struct {
	RulesFile string            `yaml:"rules_file,omitempty"`
	Rules     []classifier.Rule `yaml:"rules,omitempty"`
	Fallback  domain.OSFamily   `yaml:"fallback,omitempty"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// WatchPolicy reloads the boundary policy when its file changes
	WatchPolicy bool `yaml:"watch_policy"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
