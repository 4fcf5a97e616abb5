// Package handler implements the HTTP API for netcrawler.
//
// # Handlers
//
// CrawlHandler starts, lists, cancels and exports crawls, lists the device
// inventory, and reads or replaces the boundary policy. Routes are added to
// an http.ServeMux with Register.
//
// Middleware provides panic recovery, request logging and CORS.
//
// # Response Format
//
// Success responses return JSON with 200, 201 or 202. Exports use the
// content type of the requested format. Error responses return JSON with an
// {error, details} structure: 400 for invalid requests, 404 for unknown
// crawls, 502 when the seed device cannot be reached, 500 otherwise
// (including a malformed boundary policy file).
//
// # Server-Sent Events
//
// Crawl progress is not served here; the hub package streams it on /events.
package handler
