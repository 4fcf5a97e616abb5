package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"netcrawler/internal/domain"
)

// Timestamps are stored as fixed-width UTC text so they sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullToBool converts sql.NullInt64 to bool (0 = false, non-zero = true)
func nullToBool(ni sql.NullInt64) bool {
	return ni.Valid && ni.Int64 != 0
}

// boolToInt stores booleans as 0/1
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime renders t for a TEXT column
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timePtrToNull safely converts *time.Time to a nullable TEXT value
func timePtrToNull(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// parseTime reads a TEXT timestamp; empty input yields the zero time
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// nullToTimePtr reads a nullable TEXT timestamp
func nullToTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a column to the devices table:
// 1. Add field to deviceRow
// 2. APPEND it to scanArgs() and deviceColumns
// 3. Map it in toDomain() and deviceUpsertArgs()
// 4. Add the column to the schema in migrate()
//
// Column order must match between deviceColumns, scanArgs() and the
// SELECT queries using deviceColumns. Same pattern applies to crawl rows.

// ============================================================================
// Device Row Scanner
// ============================================================================

// deviceRow holds all columns from a device query for scanning
type deviceRow struct {
	Hostname      string
	Address       string
	OSFamily      string
	CredentialRef sql.NullString
	State         sql.NullString
	LastError     sql.NullString
	DiscoveredAt  sql.NullString
	UpdatedAt     string
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match deviceColumns order exactly
func (r *deviceRow) scanArgs() []interface{} {
	return []interface{}{
		&r.Hostname,      // 1
		&r.Address,       // 2
		&r.OSFamily,      // 3
		&r.CredentialRef, // 4
		&r.State,         // 5
		&r.LastError,     // 6
		&r.DiscoveredAt,  // 7
		&r.UpdatedAt,     // 8
	}
}

// toDomain converts the scanned row to a domain.Device
func (r *deviceRow) toDomain() (*domain.Device, error) {
	d := &domain.Device{
		Hostname:      r.Hostname,
		Address:       r.Address,
		OSFamily:      domain.ParseOSFamily(r.OSFamily),
		CredentialRef: nullToString(r.CredentialRef),
		State:         domain.ConnectionState(nullToString(r.State)),
		LastError:     nullToString(r.LastError),
	}
	if d.State == "" {
		d.State = domain.StateUnconnected
	}

	var err error
	if d.DiscoveredAt, err = nullToTimePtr(r.DiscoveredAt); err != nil {
		return nil, fmt.Errorf("discovered_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	return d, nil
}

// deviceColumns is the SELECT column list for device queries
const deviceColumns = `hostname, address, os_family, credential_ref, state,
	last_error, discovered_at, updated_at`

// deviceUpsertArgs prepares arguments for the device UPSERT
func deviceUpsertArgs(d *domain.Device) []interface{} {
	updated := d.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return []interface{}{
		d.Hostname,
		d.Address,
		string(d.OSFamily),
		stringToNull(d.CredentialRef),
		string(d.State),
		stringToNull(d.LastError),
		timePtrToNull(d.DiscoveredAt),
		formatTime(updated),
	}
}

// ============================================================================
// Crawl Row Scanners
// ============================================================================

// crawlRow holds all columns from a crawl query for scanning
type crawlRow struct {
	ID         string
	Seed       string
	MaxDepth   int
	StartedAt  string
	FinishedAt sql.NullString
	Cancelled  sql.NullInt64
}

// scanArgs MUST match crawlColumns order exactly
func (r *crawlRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,
		&r.Seed,
		&r.MaxDepth,
		&r.StartedAt,
		&r.FinishedAt,
		&r.Cancelled,
	}
}

// toDomain creates an empty graph carrying the crawl metadata
func (r *crawlRow) toDomain() (*domain.TopologyGraph, error) {
	g := domain.NewTopologyGraph(r.ID, r.Seed, r.MaxDepth)
	g.Cancelled = nullToBool(r.Cancelled)

	var err error
	if g.StartedAt, err = parseTime(r.StartedAt); err != nil {
		return nil, fmt.Errorf("started_at: %w", err)
	}
	if g.FinishedAt, err = nullToTimePtr(r.FinishedAt); err != nil {
		return nil, fmt.Errorf("finished_at: %w", err)
	}
	return g, nil
}

const crawlColumns = `id, seed, max_depth, started_at, finished_at, cancelled`

// crawlNodeRow holds all columns from a crawl node query
type crawlNodeRow struct {
	Hostname string
	Address  sql.NullString
	OSFamily sql.NullString
	Platform sql.NullString
	Depth    int
	Status   string
	Reason   sql.NullString
	Error    sql.NullString
}

// scanArgs MUST match crawlNodeColumns order exactly
func (r *crawlNodeRow) scanArgs() []interface{} {
	return []interface{}{
		&r.Hostname,
		&r.Address,
		&r.OSFamily,
		&r.Platform,
		&r.Depth,
		&r.Status,
		&r.Reason,
		&r.Error,
	}
}

func (r *crawlNodeRow) toDomain() domain.TopologyNode {
	return domain.TopologyNode{
		Hostname: r.Hostname,
		Address:  nullToString(r.Address),
		OSFamily: domain.OSFamily(nullToString(r.OSFamily)),
		Platform: nullToString(r.Platform),
		Depth:    r.Depth,
		Status:   domain.NodeStatus(r.Status),
		Reason:   nullToString(r.Reason),
		Error:    nullToString(r.Error),
	}
}

const crawlNodeColumns = `hostname, address, os_family, platform, depth, status, reason, error`

// crawlEdgeRow holds all columns from a crawl edge query
type crawlEdgeRow struct {
	ID              string
	From            string
	To              string
	LocalInterface  sql.NullString
	RemoteInterface sql.NullString
}

// scanArgs MUST match crawlEdgeColumns order exactly
func (r *crawlEdgeRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,
		&r.From,
		&r.To,
		&r.LocalInterface,
		&r.RemoteInterface,
	}
}

func (r *crawlEdgeRow) toDomain() domain.TopologyEdge {
	return domain.TopologyEdge{
		ID:              r.ID,
		From:            r.From,
		To:              r.To,
		LocalInterface:  nullToString(r.LocalInterface),
		RemoteInterface: nullToString(r.RemoteInterface),
	}
}

const crawlEdgeColumns = `id, from_host, to_host, local_interface, remote_interface`
