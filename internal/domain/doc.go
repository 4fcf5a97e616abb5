// Package domain defines the core types of the netcrawler topology crawler.
//
// # Devices
//
// Device is a managed network device identified by hostname, with a
// management address, an OS family and a connection state. Credentials
// carry the login used for every device of a crawl; the password never
// appears in JSON or log output.
//
// NeighborRecord is one adjacency parsed from a CDP or LLDP report.
//
// # Topology
//
// TopologyGraph is the artifact of one crawl: nodes keyed by hostname and
// undirected edges keyed by a hash of the endpoint pair, so (A, B) and
// (B, A) are the same edge. Each TopologyNode records its depth and its
// outcome (pending, connected, expanded, failed or denied) so callers can
// tell explored, failed and out-of-bounds devices apart.
//
// # Design Principles
//
// - No database or network dependencies
// - Hostname identity is exact match
package domain
