package domain

// NeighborRecord is one adjacency entry parsed from a neighbor-discovery report.
// Fields that were never matched are left empty.
type NeighborRecord struct {
	Hostname        string   `json:"hostname"`
	Address         string   `json:"address,omitempty"`
	Platform        string   `json:"platform,omitempty"`
	OSFamily        OSFamily `json:"os_family,omitempty"`
	LocalInterface  string   `json:"local_interface,omitempty"`
	RemoteInterface string   `json:"remote_interface,omitempty"`
	Capabilities    []string `json:"capabilities,omitempty"`
}

// HasAddress reports whether the report carried a management address
func (n NeighborRecord) HasAddress() bool {
	return n.Address != ""
}
