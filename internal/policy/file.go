package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ConfigError reports an unreadable or malformed policy file.
// It is fatal to a crawl that has not started yet.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("boundary policy %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

const fileHeader = `# Network Boundaries Configuration
#
# allowed_subnets: List of IP ranges that are safe to crawl
#   - Use CIDR notation (e.g., '192.168.1.0/24')
#   - Devices outside these ranges will be skipped
#
# protected_devices: List of devices that should not be accessed
#   - Use exact hostnames
#   - These devices still appear in the topology, marked denied
#   - No automatic connections will be made to these devices
#
`

// Load reads and compiles a policy file
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("parse: %w", err)}
	}

	p, err := New(doc)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return p, nil
}

// LoadOrCreate loads the policy, writing the default document first if the
// file does not exist
func LoadOrCreate(path string) (*Policy, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		log.Printf("Policy: %s not found, writing defaults", path)
		if err := Save(path, DefaultDocument()); err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}
	}
	return Load(path)
}

// Save validates and writes a policy document with the explanatory header
func Save(path string, doc Document) error {
	if _, err := New(doc); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create policy dir: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}

	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Validator owns the policy file and the current snapshot
type Validator struct {
	path    string
	mu      sync.RWMutex
	current *Policy
}

// NewValidator creates a validator for path. Nothing is read until Reload.
func NewValidator(path string) *Validator {
	return &Validator{path: path}
}

// NewStaticValidator wraps a fixed policy; Reload returns it unchanged
func NewStaticValidator(p *Policy) *Validator {
	return &Validator{current: p}
}

// Path returns the policy file path
func (v *Validator) Path() string {
	return v.path
}

// Reload re-reads the policy file (creating the default if missing) and
// returns the new snapshot. On error the previous snapshot stays current.
func (v *Validator) Reload() (*Policy, error) {
	if v.path == "" {
		v.mu.RLock()
		defer v.mu.RUnlock()
		if v.current == nil {
			return nil, &ConfigError{Path: "", Err: errors.New("no policy configured")}
		}
		return v.current, nil
	}

	p, err := LoadOrCreate(v.path)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.current = p
	v.mu.Unlock()

	log.Printf("Policy: loaded %s (%d allowed subnets, %d protected devices)",
		v.path, len(p.allowed), len(p.protected))
	return p, nil
}

// Current returns the last loaded snapshot, or nil
func (v *Validator) Current() *Policy {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Update writes a new document and reloads it
func (v *Validator) Update(doc Document) (*Policy, error) {
	if v.path == "" {
		p, err := New(doc)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.current = p
		v.mu.Unlock()
		return p, nil
	}
	if err := Save(v.path, doc); err != nil {
		return nil, err
	}
	return v.Reload()
}
