package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netcrawler/internal/domain"
)

const iosCDPOutput = `
-------------------------
Device ID: R2
Entry address(es): 
  IP address: 10.0.0.2
Platform: Cisco 2911,  Capabilities: Router Switch IGMP 
Interface: GigabitEthernet0/1,  Port ID (outgoing port): GigabitEthernet0/0
Holdtime : 145 sec

Version :
Cisco IOS Software, C2900 Software (C2900-UNIVERSALK9-M), Version 15.2(4)M6

advertisement version: 2
Management address(es): 
  IP address: 10.99.0.2

-------------------------
Device ID: CORE-SW01
Entry address(es): 
  IP address: 10.0.0.254
Platform: cisco Nexus9000 C93180YC-EX,  Capabilities: Router Switch
Interface: GigabitEthernet0/2,  Port ID (outgoing port): Ethernet1/1
Holdtime : 170 sec

-------------------------
Device ID: PE1.example.net
Entry address(es): 
  IPv4 address: 192.168.10.1
Platform: cisco ASR9K IOS-XR,  Capabilities: Router
Interface: GigabitEthernet0/3,  Port ID (outgoing port): TenGigE0/0/0/1
`

func TestCDPParseIOS(t *testing.T) {
	records := NewCDPParser().Parse(iosCDPOutput)
	require.Len(t, records, 3)

	r2 := records[0]
	assert.Equal(t, "R2", r2.Hostname)
	assert.Equal(t, "10.0.0.2", r2.Address, "entry address wins over management address")
	assert.Equal(t, "Cisco 2911", r2.Platform)
	assert.Equal(t, domain.OSCiscoIOS, r2.OSFamily)
	assert.Equal(t, "GigabitEthernet0/1", r2.LocalInterface)
	assert.Equal(t, "GigabitEthernet0/0", r2.RemoteInterface)
	assert.Equal(t, []string{"Router", "Switch", "IGMP"}, r2.Capabilities)

	core := records[1]
	assert.Equal(t, "CORE-SW01", core.Hostname)
	assert.Equal(t, domain.OSCiscoNXOS, core.OSFamily)

	pe := records[2]
	assert.Equal(t, "PE1.example.net", pe.Hostname)
	assert.Equal(t, "192.168.10.1", pe.Address)
	assert.Equal(t, domain.OSCiscoXR, pe.OSFamily)
	assert.Equal(t, "TenGigE0/0/0/1", pe.RemoteInterface)
}

func TestCDPParseNXOS(t *testing.T) {
	output := `Capability Codes: R - Router, T - Trans-Bridge, B - Source-Route-Bridge
----------------------------------------
Device ID:N5K-1(FOX1234ABCD)
System Name: N5K-1

Interface address(es):
    IPv4 Address: 10.1.1.5
Platform: N5K-C5548UP, Capabilities: Router Switch IGMP Filtering
Interface: mgmt0, Port ID (outgoing port): Ethernet1/1
`
	records := NewCDPParser().Parse(output)
	require.Len(t, records, 1)
	assert.Equal(t, "N5K-1(FOX1234ABCD)", records[0].Hostname)
	assert.Equal(t, "10.1.1.5", records[0].Address)
	assert.Equal(t, "N5K-C5548UP", records[0].Platform)
	// The coarse platform heuristic only looks for "nexus"
	assert.Equal(t, domain.OSCiscoIOS, records[0].OSFamily)
}

func TestCDPParsePartialRecords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []domain.NeighborRecord
	}{
		{
			name:   "empty output",
			input:  "",
			expect: nil,
		},
		{
			name:   "garbage",
			input:  "% Invalid input detected at '^' marker.\n",
			expect: nil,
		},
		{
			name:  "missing address kept",
			input: "Device ID: SW9\nPlatform: cisco WS-C2960,  Capabilities: Switch\n",
			expect: []domain.NeighborRecord{
				{Hostname: "SW9", Platform: "cisco WS-C2960", OSFamily: domain.OSCiscoIOS, Capabilities: []string{"Switch"}},
			},
		},
		{
			name:  "platform without comma",
			input: "Device ID: SW8\n  IP address: 10.8.8.8\nPlatform: cisco WS-C3750\n",
			expect: []domain.NeighborRecord{
				{Hostname: "SW8", Address: "10.8.8.8", Platform: "cisco WS-C3750", OSFamily: domain.OSCiscoIOS},
			},
		},
		{
			name:  "missing hostname dropped",
			input: "Device ID:\n  IP address: 10.0.0.9\nDevice ID: R3\n  IP address: 10.0.0.3\n",
			expect: []domain.NeighborRecord{
				{Hostname: "R3", Address: "10.0.0.3"},
			},
		},
		{
			name:   "fields before first marker ignored",
			input:  "  IP address: 10.0.0.1\nPlatform: cisco 1941,\n",
			expect: nil,
		},
		{
			name:  "crlf line endings",
			input: "Device ID: R4\r\n  IP address: 10.0.0.4\r\n",
			expect: []domain.NeighborRecord{
				{Hostname: "R4", Address: "10.0.0.4"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, NewCDPParser().Parse(tt.input))
		})
	}
}

func TestPlatformFamily(t *testing.T) {
	tests := []struct {
		platform string
		want     domain.OSFamily
	}{
		{"cisco Nexus9000", domain.OSCiscoNXOS},
		{"Cisco IOS-XR", domain.OSCiscoXR},
		{"Cisco IOS XR Software", domain.OSCiscoXR},
		{"cisco WS-C3850", domain.OSCiscoIOS},
		{"", domain.OSCiscoIOS},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PlatformFamily(tt.platform), tt.platform)
	}
}

func TestForProtocol(t *testing.T) {
	p, err := ForProtocol("")
	require.NoError(t, err)
	assert.Equal(t, CDPCommand, p.Command())

	p, err = ForProtocol("LLDP")
	require.NoError(t, err)
	assert.Equal(t, "lldp", p.Protocol())

	_, err = ForProtocol("ospf")
	assert.Error(t, err)
}

func TestForFamily(t *testing.T) {
	protocols := func(ps []Parser) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.Protocol())
		}
		return out
	}

	tests := []struct {
		family    domain.OSFamily
		preferred Parser
		want      []string
	}{
		{domain.OSCiscoIOS, NewCDPParser(), []string{"cdp", "lldp"}},
		{domain.OSCiscoNXOS, NewLLDPParser(), []string{"lldp", "cdp"}},
		{domain.OSUnknown, NewCDPParser(), []string{"cdp", "lldp"}},
		{"", NewCDPParser(), []string{"cdp", "lldp"}},
		{domain.OSJuniperJunos, NewCDPParser(), []string{"lldp"}},
		{domain.OSAristaEOS, NewCDPParser(), []string{"lldp"}},
		{domain.OSHPProcurve, NewLLDPParser(), []string{"lldp"}},
		{domain.OSLinux, NewCDPParser(), []string{"lldp"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.family)+"/"+tt.preferred.Protocol(), func(t *testing.T) {
			assert.Equal(t, tt.want, protocols(ForFamily(tt.family, tt.preferred)))
		})
	}
}
