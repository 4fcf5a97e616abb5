// Package sqlite implements the repository on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"netcrawler/internal/domain"
	"netcrawler/internal/repository"
)

var _ repository.Repository = (*Repository)(nil)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and migrates it.
// ":memory:" opens a private in-memory database.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath
	inMemory := dbPath == ":memory:"
	if !inMemory {
		dsn = "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// Each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		hostname TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		os_family TEXT NOT NULL,
		credential_ref TEXT,
		state TEXT NOT NULL DEFAULT 'unconnected',
		last_error TEXT,
		discovered_at TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS crawls (
		id TEXT PRIMARY KEY,
		seed TEXT NOT NULL,
		max_depth INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		cancelled INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS crawl_nodes (
		crawl_id TEXT NOT NULL,
		hostname TEXT NOT NULL,
		address TEXT,
		os_family TEXT,
		platform TEXT,
		depth INTEGER NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		error TEXT,
		PRIMARY KEY (crawl_id, hostname),
		FOREIGN KEY (crawl_id) REFERENCES crawls(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS crawl_edges (
		crawl_id TEXT NOT NULL,
		id TEXT NOT NULL,
		from_host TEXT NOT NULL,
		to_host TEXT NOT NULL,
		local_interface TEXT,
		remote_interface TEXT,
		PRIMARY KEY (crawl_id, id),
		FOREIGN KEY (crawl_id) REFERENCES crawls(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_crawls_started ON crawls(started_at);
	CREATE INDEX IF NOT EXISTS idx_crawl_edges_from ON crawl_edges(crawl_id, from_host);
	`

	_, err := r.db.Exec(schema)
	return err
}

// ============================================================================
// Devices
// ============================================================================

// UpsertDevice creates or updates a device. Credentials are never stored;
// only the reference name is.
func (r *Repository) UpsertDevice(ctx context.Context, device *domain.Device) error {
	if device.Hostname == "" {
		return fmt.Errorf("device hostname is required")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hostname) DO UPDATE SET
			address = excluded.address,
			os_family = excluded.os_family,
			credential_ref = excluded.credential_ref,
			state = excluded.state,
			last_error = excluded.last_error,
			discovered_at = COALESCE(devices.discovered_at, excluded.discovered_at),
			updated_at = excluded.updated_at
	`, deviceUpsertArgs(device)...)
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", device.Hostname, err)
	}
	return nil
}

// GetDevice retrieves a device by hostname. Returns nil if not found.
func (r *Repository) GetDevice(ctx context.Context, hostname string) (*domain.Device, error) {
	var row deviceRow
	err := r.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM devices WHERE hostname = ?
	`, hostname).Scan(row.scanArgs()...)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	return row.toDomain()
}

// ListDevices returns all devices ordered by hostname
func (r *Repository) ListDevices(ctx context.Context) ([]domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deviceColumns+` FROM devices ORDER BY hostname
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.Device
	for rows.Next() {
		var row deviceRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("failed to convert device %s: %w", row.Hostname, err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

// ============================================================================
// Crawls
// ============================================================================

// SaveCrawl stores a crawl graph, replacing any earlier copy with the same ID
func (r *Repository) SaveCrawl(ctx context.Context, graph *domain.TopologyGraph) error {
	if graph.ID == "" {
		return fmt.Errorf("crawl id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Children first so the replace works with or without foreign keys
	if _, err := tx.ExecContext(ctx, `DELETE FROM crawl_edges WHERE crawl_id = ?`, graph.ID); err != nil {
		return fmt.Errorf("failed to clear crawl edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM crawl_nodes WHERE crawl_id = ?`, graph.ID); err != nil {
		return fmt.Errorf("failed to clear crawl nodes: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crawls (`+crawlColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seed = excluded.seed,
			max_depth = excluded.max_depth,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			cancelled = excluded.cancelled
	`, graph.ID, graph.Seed, graph.MaxDepth, formatTime(graph.StartedAt),
		timePtrToNull(graph.FinishedAt), boolToInt(graph.Cancelled)); err != nil {
		return fmt.Errorf("failed to upsert crawl: %w", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO crawl_nodes (crawl_id, `+crawlNodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare node statement: %w", err)
	}
	defer nodeStmt.Close()

	for _, n := range graph.SortedNodes() {
		if _, err := nodeStmt.ExecContext(ctx, graph.ID, n.Hostname,
			stringToNull(n.Address), stringToNull(string(n.OSFamily)), stringToNull(n.Platform),
			n.Depth, string(n.Status), stringToNull(n.Reason), stringToNull(n.Error)); err != nil {
			return fmt.Errorf("failed to insert node %s: %w", n.Hostname, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO crawl_edges (crawl_id, `+crawlEdgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge statement: %w", err)
	}
	defer edgeStmt.Close()

	for _, e := range graph.SortedEdges() {
		id := e.ID
		if id == "" {
			id = domain.EdgeID(e.From, e.To)
		}
		if _, err := edgeStmt.ExecContext(ctx, graph.ID, id, e.From, e.To,
			stringToNull(e.LocalInterface), stringToNull(e.RemoteInterface)); err != nil {
			return fmt.Errorf("failed to insert edge %s-%s: %w", e.From, e.To, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetCrawl loads a stored crawl graph. Returns nil if not found.
func (r *Repository) GetCrawl(ctx context.Context, id string) (*domain.TopologyGraph, error) {
	var row crawlRow
	err := r.db.QueryRowContext(ctx, `
		SELECT `+crawlColumns+` FROM crawls WHERE id = ?
	`, id).Scan(row.scanArgs()...)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query crawl: %w", err)
	}

	graph, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("failed to convert crawl %s: %w", id, err)
	}

	if err := r.loadCrawlNodes(ctx, graph); err != nil {
		return nil, err
	}
	if err := r.loadCrawlEdges(ctx, graph); err != nil {
		return nil, err
	}
	return graph, nil
}

func (r *Repository) loadCrawlNodes(ctx context.Context, graph *domain.TopologyGraph) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+crawlNodeColumns+` FROM crawl_nodes WHERE crawl_id = ?
	`, graph.ID)
	if err != nil {
		return fmt.Errorf("failed to query crawl nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row crawlNodeRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return fmt.Errorf("failed to scan crawl node: %w", err)
		}
		graph.AddNode(row.toDomain())
	}
	return rows.Err()
}

func (r *Repository) loadCrawlEdges(ctx context.Context, graph *domain.TopologyGraph) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+crawlEdgeColumns+` FROM crawl_edges WHERE crawl_id = ?
	`, graph.ID)
	if err != nil {
		return fmt.Errorf("failed to query crawl edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row crawlEdgeRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return fmt.Errorf("failed to scan crawl edge: %w", err)
		}
		graph.AddEdge(row.toDomain())
	}
	return rows.Err()
}

// ListCrawls returns crawl summaries, newest first. limit <= 0 means no limit.
func (r *Repository) ListCrawls(ctx context.Context, limit int) ([]domain.CrawlSummary, error) {
	var q strings.Builder
	q.WriteString(`
		SELECT c.id, c.seed, c.max_depth, c.started_at, c.finished_at, c.cancelled,
			(SELECT COUNT(*) FROM crawl_edges e WHERE e.crawl_id = c.id),
			n.status, COUNT(n.hostname)
		FROM crawls c
		LEFT JOIN crawl_nodes n ON n.crawl_id = c.id
		WHERE c.id IN (SELECT id FROM crawls ORDER BY started_at DESC, id`)
	args := []interface{}{}
	if limit > 0 {
		q.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}
	q.WriteString(`)
		GROUP BY c.id, n.status
		ORDER BY c.started_at DESC, c.id`)

	rows, err := r.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query crawls: %w", err)
	}
	defer rows.Close()

	var out []domain.CrawlSummary
	index := make(map[string]int)
	for rows.Next() {
		var (
			row       crawlRow
			edgeCount int
			status    sql.NullString
			count     int
		)
		dest := append(row.scanArgs(), &edgeCount, &status, &count)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan crawl: %w", err)
		}

		i, ok := index[row.ID]
		if !ok {
			graph, err := row.toDomain()
			if err != nil {
				return nil, fmt.Errorf("failed to convert crawl %s: %w", row.ID, err)
			}
			summary := graph.Summary()
			summary.Stats.Edges = edgeCount
			out = append(out, summary)
			i = len(out) - 1
			index[row.ID] = i
		}

		if !status.Valid {
			continue
		}
		stats := &out[i].Stats
		stats.Nodes += count
		switch domain.NodeStatus(status.String) {
		case domain.NodeStatusExpanded:
			stats.Expanded += count
		case domain.NodeStatusConnected:
			stats.Connected += count
		case domain.NodeStatusFailed:
			stats.Failed += count
		case domain.NodeStatusDenied:
			stats.Denied += count
		default:
			stats.Pending += count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating crawls: %w", err)
	}
	return out, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
