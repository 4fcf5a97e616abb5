// Package inventory tracks the devices known to the crawler.
package inventory

import (
	"context"
	"log"
	"sync"
	"time"

	"netcrawler/internal/domain"
)

// Store persists devices
type Store interface {
	UpsertDevice(ctx context.Context, device *domain.Device) error
}

// Registry is a concurrency-safe, insertion-ordered device set keyed by
// hostname. It stores values; callers always receive copies.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]domain.Device
	order   []string
	store   Store
}

// NewRegistry creates a registry. store may be nil.
func NewRegistry(store Store) *Registry {
	return &Registry{
		devices: make(map[string]domain.Device),
		store:   store,
	}
}

// Lookup returns the device registered under hostname
func (r *Registry) Lookup(hostname string) (domain.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[hostname]
	return d, ok
}

// Add registers device unless its hostname is already known.
// Returns the registered device and whether it was added.
func (r *Registry) Add(ctx context.Context, device domain.Device) (domain.Device, bool) {
	r.mu.Lock()
	if existing, ok := r.devices[device.Hostname]; ok {
		r.mu.Unlock()
		return existing, false
	}
	if device.DiscoveredAt == nil {
		now := time.Now()
		device.DiscoveredAt = &now
	}
	r.devices[device.Hostname] = device
	r.order = append(r.order, device.Hostname)
	r.mu.Unlock()

	r.persist(ctx, device)
	return device, true
}

// Update replaces the stored state of a registered device, or adds it
func (r *Registry) Update(ctx context.Context, device domain.Device) {
	r.mu.Lock()
	if _, ok := r.devices[device.Hostname]; !ok {
		r.order = append(r.order, device.Hostname)
	}
	r.devices[device.Hostname] = device
	r.mu.Unlock()

	r.persist(ctx, device)
}

// List returns all devices in insertion order
func (r *Registry) List() []domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Device, 0, len(r.order))
	for _, h := range r.order {
		out = append(out, r.devices[h])
	}
	return out
}

// Len returns the number of registered devices
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// persist is best effort; the in-memory registry stays authoritative
func (r *Registry) persist(ctx context.Context, device domain.Device) {
	if r.store == nil {
		return
	}
	if err := r.store.UpsertDevice(ctx, &device); err != nil {
		log.Printf("Inventory: failed to persist %s: %v", device.Hostname, err)
	}
}
