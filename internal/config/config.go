// Package config provides configuration management for netcrawler.
//
// The config file holds how to crawl (depth, workers, timeouts, where the
// boundary policy lives). The boundary policy itself is a separate file so
// it can be reloaded between crawls without touching the rest.
//
// Config file locations (priority order):
//  1. $NETCRAWLER_CONFIG
//  2. ./netcrawler.yaml
//  3. $XDG_CONFIG_HOME/netcrawler/config.yaml
//  4. ~/.config/netcrawler/config.yaml
//  5. /etc/netcrawler/config.yaml
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"netcrawler/internal/classifier"
	"netcrawler/internal/domain"
)

// Bounds and defaults
const (
	MinDepth = 1
	MaxDepth = 10

	DefaultPolicyPath   = "config/network_boundaries.yaml"
	DefaultDatabasePath = "./netcrawler.db"
	DefaultServerAddr   = ":3000"
	DefaultMaxDepth     = 3
	DefaultWorkers      = 10
	DefaultProtocol     = "cdp"
	DefaultPort         = 22

	DefaultConnectTimeout = 10 * time.Second
	DefaultSessionTimeout = 60 * time.Second
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.PolicyPath == "" {
		c.PolicyPath = DefaultPolicyPath
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}

	if c.Crawl.MaxDepth == 0 {
		c.Crawl.MaxDepth = DefaultMaxDepth
	}
	if c.Crawl.Workers == 0 {
		c.Crawl.Workers = DefaultWorkers
	}
	if c.Crawl.Protocol == "" {
		c.Crawl.Protocol = DefaultProtocol
	}
	c.Crawl.Protocol = strings.ToLower(c.Crawl.Protocol)
	if c.Crawl.DefaultOS == "" {
		c.Crawl.DefaultOS = domain.OSCiscoIOS
	}

	if c.Connection.ConnectTimeout == 0 {
		c.Connection.ConnectTimeout = Duration(DefaultConnectTimeout)
	}
	if c.Connection.SessionTimeout == 0 {
		c.Connection.SessionTimeout = Duration(DefaultSessionTimeout)
	}
	if c.Connection.Port == 0 {
		c.Connection.Port = DefaultPort
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
}

// Validate checks value ranges that defaults cannot repair
func (c *Config) Validate() error {
	if c.Crawl.MaxDepth < MinDepth || c.Crawl.MaxDepth > MaxDepth {
		return fmt.Errorf("crawl.max_depth must be between %d and %d, got %d", MinDepth, MaxDepth, c.Crawl.MaxDepth)
	}
	if c.Crawl.Workers < 1 {
		return fmt.Errorf("crawl.workers must be positive, got %d", c.Crawl.Workers)
	}
	switch c.Crawl.Protocol {
	case "cdp", "lldp":
	default:
		return fmt.Errorf("crawl.protocol must be cdp or lldp, got %q", c.Crawl.Protocol)
	}
	if domain.ParseOSFamily(string(c.Crawl.DefaultOS)) == domain.OSUnknown {
		return fmt.Errorf("crawl.default_os: unknown family %q", c.Crawl.DefaultOS)
	}
	if c.Connection.Port < 1 || c.Connection.Port > 65535 {
		return fmt.Errorf("connection.port out of range: %d", c.Connection.Port)
	}
	if c.Connection.ConnectTimeout < 0 || c.Connection.SessionTimeout < 0 {
		return fmt.Errorf("connection timeouts must not be negative")
	}
	return nil
}

// ClassifierRules returns the rule table and fallback the classifier should
// use. Nil rules mean the built-in table.
func (c *Config) ClassifierRules() ([]classifier.Rule, domain.OSFamily, error) {
	if c.Classifier.RulesFile != "" {
		rules, fallback, err := classifier.LoadRules(c.Classifier.RulesFile)
		if err != nil {
			return nil, "", err
		}
		if fallback == "" {
			fallback = c.Classifier.Fallback
		}
		return rules, fallback, nil
	}
	return c.Classifier.Rules, c.Classifier.Fallback, nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Policy: %s, Database: %s\n", c.PolicyPath, c.Database.Path)
	summary += fmt.Sprintf("Crawl: protocol=%s depth=%d workers=%d default_os=%s\n",
		c.Crawl.Protocol, c.Crawl.MaxDepth, c.Crawl.Workers, c.Crawl.DefaultOS)
	summary += fmt.Sprintf("Connection: port=%d connect=%s session=%s preflight=%t",
		c.Connection.Port, c.Connection.ConnectTimeout.Duration(), c.Connection.SessionTimeout.Duration(),
		c.Connection.Preflight)
	return summary
}
