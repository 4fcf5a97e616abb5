package domain

import (
	"fmt"
	"time"
)

// OSFamily identifies the command dialect a device understands
type OSFamily string

const (
	OSCiscoIOS     OSFamily = "cisco_ios"
	OSCiscoNXOS    OSFamily = "cisco_nxos"
	OSCiscoXR      OSFamily = "cisco_xr"
	OSCiscoASA     OSFamily = "cisco_asa"
	OSJuniperJunos OSFamily = "juniper_junos"
	OSAristaEOS    OSFamily = "arista_eos"
	OSHPProcurve   OSFamily = "hp_procurve"
	OSLinux        OSFamily = "linux"
	OSUnknown      OSFamily = "unknown"
)

// ParseOSFamily maps a config/CLI string to a known family.
// Unrecognized values map to OSUnknown.
func ParseOSFamily(s string) OSFamily {
	switch f := OSFamily(s); f {
	case OSCiscoIOS, OSCiscoNXOS, OSCiscoXR, OSCiscoASA,
		OSJuniperJunos, OSAristaEOS, OSHPProcurve, OSLinux:
		return f
	default:
		return OSUnknown
	}
}

// ConnectionState represents the session state of a device
type ConnectionState string

const (
	StateUnconnected ConnectionState = "unconnected"
	StateConnected   ConnectionState = "connected"
	StateFailed      ConnectionState = "failed"
)

// Device is a managed network device
type Device struct {
	Hostname      string          `json:"hostname"`
	Address       string          `json:"address"`
	OSFamily      OSFamily        `json:"os_family"`
	CredentialRef string          `json:"credential_ref,omitempty"`
	State         ConnectionState `json:"state"`
	LastError     string          `json:"last_error,omitempty"`
	DiscoveredAt  *time.Time      `json:"discovered_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewDevice creates an unconnected device
func NewDevice(hostname, address string, family OSFamily) *Device {
	if family == "" {
		family = OSUnknown
	}
	return &Device{
		Hostname:  hostname,
		Address:   address,
		OSFamily:  family,
		State:     StateUnconnected,
		UpdatedAt: time.Now(),
	}
}

// SetState records a connection state transition. A nil cause clears LastError.
func (d *Device) SetState(state ConnectionState, cause error) {
	d.State = state
	d.LastError = ""
	if cause != nil {
		d.LastError = cause.Error()
	}
	d.UpdatedAt = time.Now()
}

// Connected reports whether the device holds a live session
func (d *Device) Connected() bool {
	return d.State == StateConnected
}

func (d *Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Hostname, d.Address)
}

// Credentials are supplied by the caller and used for newly discovered devices.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"-"`
	// Secret is the optional enable secret
	Secret string `json:"-"`
}

// Empty reports whether no username was provided
func (c Credentials) Empty() bool {
	return c.Username == ""
}

// String never includes the password
func (c Credentials) String() string {
	if c.Password == "" {
		return c.Username
	}
	return c.Username + ":********"
}
