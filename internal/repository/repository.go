package repository

import (
	"context"

	"netcrawler/internal/domain"
)

// Repository defines the interface for device and crawl persistence.
// Getters return nil, nil when the record does not exist.
type Repository interface {
	// Devices
	UpsertDevice(ctx context.Context, device *domain.Device) error
	GetDevice(ctx context.Context, hostname string) (*domain.Device, error)
	ListDevices(ctx context.Context) ([]domain.Device, error)

	// Crawls
	SaveCrawl(ctx context.Context, graph *domain.TopologyGraph) error
	GetCrawl(ctx context.Context, id string) (*domain.TopologyGraph, error)
	ListCrawls(ctx context.Context, limit int) ([]domain.CrawlSummary, error)

	// Close releases resources
	Close() error
}
