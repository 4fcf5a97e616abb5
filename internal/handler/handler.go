package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"netcrawler/internal/codec"
	"netcrawler/internal/policy"
	"netcrawler/internal/service"
	"netcrawler/internal/session"
)

// DefaultListLimit caps GET /api/crawls when no limit is given
const DefaultListLimit = 50

// contentTypes maps export formats to response content types
var contentTypes = map[string]string{
	"json":              "application/json",
	"yaml":              "application/x-yaml",
	"ansible-inventory": "application/x-yaml",
}

// CrawlHandler handles crawl, device and policy API requests
type CrawlHandler struct {
	svc *service.CrawlService
}

// NewCrawlHandler creates a new crawl handler
func NewCrawlHandler(svc *service.CrawlService) *CrawlHandler {
	return &CrawlHandler{svc: svc}
}

// Register adds the API routes to mux
func (h *CrawlHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/crawls", h.StartCrawl)
	mux.HandleFunc("GET /api/crawls", h.ListCrawls)
	mux.HandleFunc("GET /api/crawls/running", h.ListRunning)
	mux.HandleFunc("POST /api/crawls/import", h.ImportCrawl)
	mux.HandleFunc("GET /api/crawls/{id}", h.GetCrawl)
	mux.HandleFunc("DELETE /api/crawls/{id}", h.CancelCrawl)
	mux.HandleFunc("GET /api/crawls/{id}/export", h.ExportCrawl)

	mux.HandleFunc("GET /api/devices", h.ListDevices)

	mux.HandleFunc("GET /api/policy", h.GetPolicy)
	mux.HandleFunc("PUT /api/policy", h.UpdatePolicy)
	mux.HandleFunc("POST /api/policy/reload", h.ReloadPolicy)
	mux.HandleFunc("GET /api/policy/check", h.CheckPolicy)
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// StartResponse is returned when a crawl is started in the background
type StartResponse struct {
	ID string `json:"id"`
}

// StartCrawl starts a crawl. By default it runs in the background and
// returns 202 with the crawl ID; ?wait=true runs it to completion and
// returns the graph.
func (h *CrawlHandler) StartCrawl(w http.ResponseWriter, r *http.Request) {
	var req service.CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		graph, err := h.svc.Run(r.Context(), req)
		if err != nil {
			log.Printf("Handler: crawl from %s failed: %v", req.Hostname, err)
			h.writeServiceError(w, "Crawl failed", err)
			return
		}
		h.writeJSON(w, graph, http.StatusOK)
		return
	}

	id, err := h.svc.Start(req)
	if err != nil {
		h.writeServiceError(w, "Failed to start crawl", err)
		return
	}
	h.writeJSON(w, StartResponse{ID: id}, http.StatusAccepted)
}

// ListCrawls returns stored crawl summaries, newest first
func (h *CrawlHandler) ListCrawls(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, "Invalid limit", fmt.Sprintf("limit must be a positive integer, got %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}

	crawls, err := h.svc.ListCrawls(r.Context(), limit)
	if err != nil {
		log.Printf("Handler: failed to list crawls: %v", err)
		h.writeServiceError(w, "Failed to list crawls", err)
		return
	}
	h.writeJSON(w, crawls, http.StatusOK)
}

// ListRunning returns the IDs of background crawls in progress
func (h *CrawlHandler) ListRunning(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.svc.Running(), http.StatusOK)
}

// GetCrawl returns one stored crawl graph
func (h *CrawlHandler) GetCrawl(w http.ResponseWriter, r *http.Request) {
	id := crawlID(r)
	if id == "" {
		h.writeError(w, "Invalid crawl ID", "Crawl ID is required", http.StatusBadRequest)
		return
	}

	graph, err := h.svc.GetCrawl(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "Failed to get crawl", err)
		return
	}
	h.writeJSON(w, graph, http.StatusOK)
}

// CancelCrawl stops a running background crawl. The partial graph is
// still saved.
func (h *CrawlHandler) CancelCrawl(w http.ResponseWriter, r *http.Request) {
	id := crawlID(r)
	if !h.svc.Cancel(id) {
		h.writeError(w, "Not found", fmt.Sprintf("crawl %s is not running", id), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ExportCrawl writes a stored crawl in the requested format
func (h *CrawlHandler) ExportCrawl(w http.ResponseWriter, r *http.Request) {
	exporter, err := codec.ExporterFor(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, "Invalid format", err.Error(), http.StatusBadRequest)
		return
	}

	id := crawlID(r)
	graph, err := h.svc.GetCrawl(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "Failed to get crawl", err)
		return
	}

	format := exporter.Format()
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=crawl-%s.%s", id, fileExtension(format)))

	if err := exporter.Export(graph, w); err != nil {
		log.Printf("Handler: failed to export crawl %s as %s: %v", id, format, err)
		// Can't write error response as we already set headers
		return
	}
}

// ImportCrawl stores a previously exported graph (?format=json|yaml)
func (h *CrawlHandler) ImportCrawl(w http.ResponseWriter, r *http.Request) {
	importer, err := codec.ImporterFor(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, "Invalid format", err.Error(), http.StatusBadRequest)
		return
	}

	graph, err := importer.Parse(r.Body)
	if err != nil {
		h.writeError(w, "Invalid crawl document", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.ImportCrawl(r.Context(), graph); err != nil {
		log.Printf("Handler: failed to import crawl: %v", err)
		h.writeServiceError(w, "Failed to import crawl", err)
		return
	}
	h.writeJSON(w, graph.Summary(), http.StatusCreated)
}

// ListDevices returns the device inventory
func (h *CrawlHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.svc.ListDevices(r.Context())
	if err != nil {
		log.Printf("Handler: failed to list devices: %v", err)
		h.writeServiceError(w, "Failed to list devices", err)
		return
	}
	h.writeJSON(w, devices, http.StatusOK)
}

// GetPolicy returns the current boundary policy
func (h *CrawlHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Policy()
	if err != nil {
		h.writeServiceError(w, "Failed to load policy", err)
		return
	}
	h.writeJSON(w, doc, http.StatusOK)
}

// UpdatePolicy replaces the boundary policy. Crawls already running keep
// the snapshot they started with.
func (h *CrawlHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var doc policy.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.svc.UpdatePolicy(doc)
	if err != nil {
		h.writeServiceError(w, "Failed to update policy", err)
		return
	}
	h.writeJSON(w, updated, http.StatusOK)
}

// ReloadPolicy re-reads the policy file
func (h *CrawlHandler) ReloadPolicy(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.ReloadPolicy()
	if err != nil {
		log.Printf("Handler: policy reload failed: %v", err)
		h.writeServiceError(w, "Failed to reload policy", err)
		return
	}
	h.writeJSON(w, doc, http.StatusOK)
}

// CheckPolicy evaluates ?address=&hostname= against the current policy
func (h *CrawlHandler) CheckPolicy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	decision, err := h.svc.CheckPolicy(q.Get("address"), q.Get("hostname"))
	if err != nil {
		h.writeServiceError(w, "Failed to load policy", err)
		return
	}
	h.writeJSON(w, decision, http.StatusOK)
}

// Helper methods

// writeServiceError maps service errors onto status codes
func (h *CrawlHandler) writeServiceError(w http.ResponseWriter, msg string, err error) {
	var cfgErr *policy.ConfigError
	var connErr *session.ConnectionError

	switch {
	case errors.Is(err, service.ErrNotFound):
		h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidRequest):
		h.writeError(w, msg, err.Error(), http.StatusBadRequest)
	case errors.As(err, &cfgErr):
		h.writeError(w, "Boundary policy error", err.Error(), http.StatusInternalServerError)
	case errors.As(err, &connErr):
		h.writeError(w, msg, err.Error(), http.StatusBadGateway)
	default:
		h.writeError(w, msg, err.Error(), http.StatusInternalServerError)
	}
}

func (h *CrawlHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Handler: failed to encode JSON: %v", err)
	}
}

func (h *CrawlHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Handler: failed to encode error response: %v", err)
	}
}

// crawlID reads the {id} wildcard, falling back to the raw path for
// handlers mounted without a pattern
func crawlID(r *http.Request) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	id := extractPathParam(r.URL.Path, "/api/crawls/")
	id, _, _ = strings.Cut(id, "/")
	return id
}

func extractPathParam(path, prefix string) string {
	if strings.HasPrefix(path, prefix) {
		return strings.TrimPrefix(path, prefix)
	}
	return ""
}

func fileExtension(format string) string {
	if format == "ansible-inventory" {
		return "yml"
	}
	return format
}
