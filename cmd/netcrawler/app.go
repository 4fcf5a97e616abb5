package main

import (
	"context"
	"fmt"
	"log"

	"netcrawler/internal/classifier"
	"netcrawler/internal/config"
	"netcrawler/internal/crawler"
	"netcrawler/internal/inventory"
	"netcrawler/internal/parser"
	"netcrawler/internal/policy"
	"netcrawler/internal/probe"
	"netcrawler/internal/repository/sqlite"
	"netcrawler/internal/service"
	"netcrawler/internal/session"
)

// app holds the wired collaborators shared by the crawl and serve commands
type app struct {
	cfg      *config.Config
	repo     *sqlite.Repository
	eventBus *service.EventBus
	svc      *service.CrawlService
}

// newApp opens the database and wires the crawl service from cfg
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Printf("Database opened: %s", cfg.Database.Path)

	neighbors, err := parser.ForProtocol(cfg.Crawl.Protocol)
	if err != nil {
		repo.Close()
		return nil, err
	}

	rules, fallback, err := cfg.ClassifierRules()
	if err != nil {
		repo.Close()
		return nil, err
	}

	var prober probe.Prober
	if cfg.Connection.Preflight {
		prober = probe.Auto(ctx, cfg.Connection.ConnectTimeout.Duration())
	}

	transport := session.NewSSHTransport(session.SSHConfig{
		ConnectTimeout:   cfg.Connection.ConnectTimeout.Duration(),
		KnownHostsFile:   cfg.Connection.KnownHostsFile,
		LegacyAlgorithms: cfg.Connection.LegacyAlgorithms,
	})
	sessions := session.NewManager(transport, session.Config{
		ConnectTimeout: cfg.Connection.ConnectTimeout.Duration(),
		SessionTimeout: cfg.Connection.SessionTimeout.Duration(),
		Port:           cfg.Connection.Port,
		Prober:         prober,
	})

	validator := policy.NewValidator(cfg.PolicyPath)
	registry := inventory.NewRegistry(repo)
	engine := crawler.New(crawler.Config{
		MaxWorkers: cfg.Crawl.Workers,
		DefaultOS:  cfg.Crawl.DefaultOS,
	}, validator, sessions, neighbors, classifier.New(rules, fallback), registry)

	eventBus := service.NewEventBus()
	svc := service.NewCrawlService(engine, sessions, registry, validator, repo, eventBus, service.CrawlDefaults{
		MaxDepth: cfg.Crawl.MaxDepth,
		OSFamily: cfg.Crawl.DefaultOS,
		Username: cfg.Connection.Username,
		Password: password(),
	})

	return &app{cfg: cfg, repo: repo, eventBus: eventBus, svc: svc}, nil
}

// Close stops crawls, closes sessions and the database
func (a *app) Close() {
	a.svc.Close()
	if err := a.repo.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	}
}

// withApp loads config, wires the app and runs fn
func withApp(ctx context.Context, fn func(*app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
