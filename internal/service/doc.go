// Package service implements the crawl workflow behind the CLI and HTTP API.
//
// # Services
//
// CrawlService connects to the seed device, runs the crawler, persists the
// resulting graph and keeps track of background crawls so they can be
// cancelled. It also fronts the boundary policy: read, replace, reload and
// single-device checks.
//
// # Event System
//
// Crawl progress (crawl-started, node-expanded, node-denied, node-failed,
// crawl-complete) and service events (crawl-saved, crawl-failed,
// policy-reloaded) are published on an EventBus. Publishing never blocks;
// slow subscribers miss events. The hub package relays the bus to browsers
// as Server-Sent Events.
//
// # Design Principles
//
// - Validation happens before any device is contacted
// - Partial graphs from cancelled crawls are saved like complete ones
// - Credentials are passed through, never stored
package service
