package inventory_test

import (
	"testing"
	"time"

	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sample = `
defaults:
  username: admin
  password: secret
  port: 22
  platform: ios
  concurrency: 20
  timeout: 30s
groups:
  - name: core
    platform: eos
    username: netops
    members: [R1]
  - name: edge
    timeout: 5s
hosts:
  - name: R1
    hostname: 10.0.0.1
    platform: junos
  - name: R2
    hostname: 10.0.0.2
    groups: [core, edge]
  - name: R3
    groups: [edge]
    driver: telnet
    port: 0
    data:
      site: lab
`

func buildSample(t *testing.T) *inventory.Snapshot {
	t.Helper()
	var doc inventory.Document
	require.NoError(t, yaml.Unmarshal([]byte(sample), &doc))
	snap, err := inventory.Build(&doc)
	require.NoError(t, err)
	return snap
}

func TestBuildOrderAndMembership(t *testing.T) {
	snap := buildSample(t)

	assert.Equal(t, []string{"R1", "R2", "R3"}, snap.HostNames())
	assert.Equal(t, []string{"core", "edge"}, snap.GroupNames())

	core, ok := snap.Group("core")
	require.True(t, ok)
	assert.Equal(t, []string{"R1", "R2"}, core.Members)

	edge, _ := snap.Group("edge")
	assert.Equal(t, []string{"R2", "R3"}, edge.Members)

	r1, _ := snap.Host("R1")
	assert.Equal(t, []string{"core"}, r1.Groups)
	assert.Equal(t, 20, snap.Defaults().Concurrency)
	assert.Equal(t, 3, snap.Len())
}

func TestBuildInheritance(t *testing.T) {
	snap := buildSample(t)

	r1, _ := snap.Host("R1")
	assert.Equal(t, "junos", r1.Platform, "own platform wins")
	assert.Equal(t, "netops", r1.Conn.Username, "group before defaults")
	assert.Equal(t, "secret", r1.Conn.Password)
	assert.Equal(t, 30*time.Second, r1.Conn.Timeout)
	assert.Equal(t, "10.0.0.1:22", r1.Address())

	r2, _ := snap.Host("R2")
	assert.Equal(t, "eos", r2.Platform, "first group that sets it")
	assert.Equal(t, 5*time.Second, r2.Conn.Timeout)
	assert.Equal(t, inventory.DriverSSH, r2.Conn.Driver)

	r3, _ := snap.Host("R3")
	assert.Equal(t, "ios", r3.Platform, "defaults")
	assert.Equal(t, "R3", r3.Conn.Hostname, "name used as hostname")
	assert.Equal(t, inventory.DriverTelnet, r3.Conn.Driver)
	assert.Equal(t, "lab", r3.Data["site"])
}

func TestAddressTelnetDefaultPort(t *testing.T) {
	h := &inventory.Host{Conn: inventory.ConnectionParams{Hostname: "sw1", Driver: inventory.DriverTelnet}}
	assert.Equal(t, "sw1:23", h.Address())
}

func TestBuildRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"duplicate host", "hosts:\n  - name: R1\n  - name: R1\n"},
		{"empty host name", "hosts:\n  - name: ''\n"},
		{"duplicate group", "groups:\n  - name: g\n  - name: g\n"},
		{"undefined group on host", "hosts:\n  - name: R1\n    groups: [nope]\n"},
		{"undefined member", "groups:\n  - name: g\n    members: [ghost]\nhosts:\n  - name: R1\n"},
		{"bad port", "hosts:\n  - name: R1\n    port: 70000\n"},
		{"bad driver", "hosts:\n  - name: R1\n    driver: rsh\n"},
		{"bad timeout", "defaults:\n  timeout: soon\nhosts:\n  - name: R1\n"},
		{"bad hostname", "hosts:\n  - name: R1\n    hostname: 'not a host!'\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc inventory.Document
			require.NoError(t, yaml.Unmarshal([]byte(tt.doc), &doc))
			_, err := inventory.Build(&doc)
			require.Error(t, err)
			assert.Equal(t, result.KindLoad, result.KindOf(err))
		})
	}
}

func TestBuildNilDocument(t *testing.T) {
	_, err := inventory.Build(nil)
	assert.Equal(t, result.KindLoad, result.KindOf(err))
}

func TestBuildEmptyInventoryIsValid(t *testing.T) {
	snap, err := inventory.Build(&inventory.Document{})
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())
}
