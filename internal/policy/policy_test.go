package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPolicy(t *testing.T, doc Document) *Policy {
	t.Helper()
	p, err := New(doc)
	require.NoError(t, err)
	return p
}

func TestIsAllowed(t *testing.T) {
	p := mustPolicy(t, DefaultDocument())

	tests := []struct {
		name     string
		address  string
		hostname string
		allowed  bool
		reason   string
	}{
		{"private 10/8", "10.1.2.3", "R2", true, ReasonAllowed},
		{"private 172.16/12 upper bound", "172.31.255.255", "R3", true, ReasonAllowed},
		{"private 192.168/16", "192.168.10.1", "R4", true, ReasonAllowed},
		{"just outside 172.16/12", "172.32.0.1", "R5", false, ReasonOutsideRanges},
		{"public address", "8.8.8.8", "ISP-RTR", false, ReasonOutsideRanges},
		{"protected wins over allowed address", "10.0.0.254", "CORE-SW01", false, ReasonProtected},
		{"protected wins over bad address", "not-an-ip", "FIREWALL01", false, ReasonProtected},
		{"protected match is exact", "10.0.0.253", "core-sw01", true, ReasonAllowed},
		{"ipv4-mapped ipv6", "::ffff:10.0.0.9", "R6", true, ReasonAllowed},
		{"ipv6 outside v4 ranges", "2001:db8::1", "R7", false, ReasonOutsideRanges},
		{"surrounding whitespace", " 10.0.0.7 ", "R8", true, ReasonAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.IsAllowed(tt.address, tt.hostname)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestIsAllowedInvalidAddress(t *testing.T) {
	p := mustPolicy(t, DefaultDocument())

	for _, addr := range []string{"", "10.0.0", "999.1.1.1", "R2"} {
		d := p.IsAllowed(addr, "R2")
		assert.False(t, d.Allowed, addr)
		assert.True(t, strings.HasPrefix(d.Reason, "invalid address"), "reason %q", d.Reason)
	}
}

func TestOverlappingRangesAreMembershipOnly(t *testing.T) {
	p := mustPolicy(t, Document{AllowedSubnets: []string{"10.0.0.0/8", "10.1.0.0/16", "10.1.1.0/24"}})
	assert.True(t, p.IsAllowed("10.1.1.1", "X").Allowed)
	assert.True(t, p.IsAllowed("10.200.0.1", "X").Allowed)
}

func TestEmptyPolicyDeniesEverything(t *testing.T) {
	p := mustPolicy(t, Document{})
	d := p.IsAllowed("10.0.0.1", "R1")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonOutsideRanges, d.Reason)
}

func TestNewRejectsInvalidSubnet(t *testing.T) {
	_, err := New(Document{AllowedSubnets: []string{"10.0.0.0/33"}})
	assert.Error(t, err)

	_, err = New(Document{AllowedSubnets: []string{"10.0.0.0"}})
	assert.Error(t, err)
}

func TestNewMasksHostBits(t *testing.T) {
	p := mustPolicy(t, Document{AllowedSubnets: []string{"192.168.1.77/24"}})
	assert.True(t, p.IsAllowed("192.168.1.1", "h").Allowed)
	assert.False(t, p.IsAllowed("192.168.2.1", "h").Allowed)
}

func TestDocumentIsCopied(t *testing.T) {
	doc := DefaultDocument()
	p := mustPolicy(t, doc)
	doc.ProtectedDevices[0] = "CHANGED"

	assert.Equal(t, "CORE-SW01", p.Document().ProtectedDevices[0])
	assert.True(t, p.IsProtected("CORE-SW01"))
}
