package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netcrawler/internal/domain"
)

const iosLLDPOutput = `Capability codes:
    (R) Router, (B) Bridge, (T) Telephone, (C) DOCSIS Cable Device

------------------------------------------------
Local Intf: Gi0/1
Chassis id: 0026.9876.5432
Port id: Gi0/2
Port Description: GigabitEthernet0/2
System Name: SW2.example.com

System Description: 
Cisco IOS Software, C3750E Software (C3750E-UNIVERSALK9-M), Version 15.0(2)SE
Technical Support: http://www.cisco.com/techsupport

Time remaining: 112 seconds
System Capabilities: B,R
Enabled Capabilities: B
Management Addresses:
    IP: 10.0.0.3
Auto Negotiation - supported, enabled

------------------------------------------------
Local Intf: Gi0/2
Chassis id: 0026.1111.2222
Port id: Eth1/3
System Name: DC-CORE-01

System Description: 
Cisco Nexus Operating System (NX-OS) Software 9.3(8)

Enabled Capabilities: B, R
Management Addresses - not advertised

Total entries displayed: 2
`

func TestLLDPParseIOS(t *testing.T) {
	records := NewLLDPParser().Parse(iosLLDPOutput)
	require.Len(t, records, 2)

	sw2 := records[0]
	assert.Equal(t, "SW2.example.com", sw2.Hostname)
	assert.Equal(t, "10.0.0.3", sw2.Address)
	assert.Equal(t, "Gi0/1", sw2.LocalInterface)
	assert.Equal(t, "Gi0/2", sw2.RemoteInterface)
	assert.Equal(t, domain.OSCiscoIOS, sw2.OSFamily)
	assert.Contains(t, sw2.Platform, "C3750E Software")
	assert.Equal(t, []string{"B"}, sw2.Capabilities)

	core := records[1]
	assert.Equal(t, "DC-CORE-01", core.Hostname)
	assert.Empty(t, core.Address)
	assert.Equal(t, domain.OSCiscoNXOS, core.OSFamily)
	assert.Equal(t, []string{"B", "R"}, core.Capabilities)
}

func TestLLDPParseNXOSOrdering(t *testing.T) {
	output := `Chassis id: 00be.7512.0001
Port id: Ethernet1/1
Local Port id: Eth1/49
System Name: LEAF-1
System Description: Cisco Nexus Operating System (NX-OS) Software 9.3(5)
Management Address: 10.2.0.11
Chassis id: 00be.7512.0002
Port id: Ethernet1/1
Local Port id: Eth1/50
System Name: LEAF-2
System Description: Arista Networks EOS version 4.28
Management Address: 10.2.0.12
`
	records := NewLLDPParser().Parse(output)
	require.Len(t, records, 2)

	assert.Equal(t, "LEAF-1", records[0].Hostname)
	assert.Equal(t, "10.2.0.11", records[0].Address)
	assert.Equal(t, "Eth1/49", records[0].LocalInterface)
	assert.Equal(t, domain.OSCiscoNXOS, records[0].OSFamily)

	assert.Equal(t, "LEAF-2", records[1].Hostname)
	assert.Equal(t, "10.2.0.12", records[1].Address)
	assert.Equal(t, domain.OSCiscoIOS, records[1].OSFamily)
}

func TestLLDPParseDropsNamelessEntries(t *testing.T) {
	output := "Local Intf: Gi0/5\nChassis id: aaaa.bbbb.cccc\nPort id: 1\n"
	assert.Empty(t, NewLLDPParser().Parse(output))
}
