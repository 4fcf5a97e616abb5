package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestDeviceSetState(t *testing.T) {
	d := NewDevice("R1", "10.0.0.1", "")
	if d.OSFamily != OSUnknown {
		t.Errorf("expected empty family to default to unknown, got %s", d.OSFamily)
	}
	if d.State != StateUnconnected {
		t.Errorf("expected unconnected, got %s", d.State)
	}

	d.SetState(StateFailed, errors.New("dial timeout"))
	if d.State != StateFailed || d.LastError != "dial timeout" {
		t.Errorf("unexpected device after failure: %+v", d)
	}

	d.SetState(StateConnected, nil)
	if !d.Connected() || d.LastError != "" {
		t.Errorf("expected connected device with cleared error: %+v", d)
	}
}

func TestParseOSFamily(t *testing.T) {
	tests := []struct {
		input string
		want  OSFamily
	}{
		{"cisco_ios", OSCiscoIOS},
		{"cisco_nxos", OSCiscoNXOS},
		{"juniper_junos", OSJuniperJunos},
		{"", OSUnknown},
		{"windows", OSUnknown},
	}

	for _, tt := range tests {
		if got := ParseOSFamily(tt.input); got != tt.want {
			t.Errorf("ParseOSFamily(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestCredentialsStringRedacts(t *testing.T) {
	c := Credentials{Username: "admin", Password: "hunter2"}
	if strings.Contains(c.String(), "hunter2") {
		t.Errorf("password leaked: %s", c.String())
	}
	if (Credentials{}).Empty() != true {
		t.Error("expected zero credentials to be empty")
	}
}
