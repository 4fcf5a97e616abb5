// Package repository defines the data access interface for the crawler.
//
// Two kinds of records are persisted: devices, the inventory of every
// device a crawl has seen together with its last connection state, and
// crawls, each completed topology graph with its nodes and edges.
// Credentials are never persisted.
//
// The sqlite subpackage implements the interface on modernc.org/sqlite,
// migrating the schema on open.
package repository
