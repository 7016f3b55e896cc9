package getter_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/andrej220/fanout/pkg/backend"
	"github.com/andrej220/fanout/pkg/backend/getter"
	"github.com/andrej220/fanout/pkg/executor"
	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  []string
	output map[string]*executor.Output
	err    error
}

func (f *fakeRunner) Run(_ context.Context, host *inventory.Host, cmd executor.Command) (*executor.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, host.Name+": "+cmd.Line)
	if f.err != nil {
		return nil, f.err
	}
	if out, ok := f.output[cmd.Line]; ok {
		return out, nil
	}
	return &executor.Output{Stderr: "% Invalid input", ExitStatus: 1}, nil
}

func host(name, platform string) *inventory.Host {
	return &inventory.Host{Name: name, Platform: platform}
}

func TestValidate(t *testing.T) {
	a := getter.New(&fakeRunner{})

	assert.NoError(t, a.Validate(backend.Task{Operation: "facts"}))
	assert.True(t, a.Supports("arp_table"))
	assert.False(t, a.Supports("bgp_neighbors"))

	err := a.Validate(backend.Task{Operation: "bgp_neighbors"})
	require.Error(t, err)
	assert.Equal(t, result.KindValidation, result.KindOf(err))

	err = a.Validate(backend.Task{})
	assert.Equal(t, result.KindValidation, result.KindOf(err))
}

func TestCapabilities(t *testing.T) {
	caps := getter.New(&fakeRunner{}).Capabilities()
	require.NotEmpty(t, caps)
	assert.Equal(t, "facts", caps[0].Name)
	assert.NotEmpty(t, caps[0].Description)
	assert.Contains(t, caps[0].Platforms, "ios")

	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "lldp_neighbors")
	assert.Contains(t, names, "environment")
}

func TestExecuteOneKeyValue(t *testing.T) {
	r := &fakeRunner{output: map[string]*executor.Output{
		"show version": {Stdout: "Hostname: R1\nModel: mx480\nJunos: 20.4R3\n"},
	}}
	res := getter.New(r).ExecuteOne(context.Background(), host("R1", "junos"), backend.Task{Operation: "facts"})

	require.True(t, res.Ok(), "%v", res.Err())
	v, _ := res.Value()
	assert.Equal(t, getter.Result{"facts": map[string]any{
		"hostname": "R1", "model": "mx480", "junos": "20.4R3",
	}}, v)
}

func TestExecuteOneVersionFacts(t *testing.T) {
	r := &fakeRunner{output: map[string]*executor.Output{
		"show version": {Stdout: "Cisco IOS Software, IOSv Software (VIOS-ADVENTERPRISEK9-M), Version 15.9(3)M6, RELEASE SOFTWARE (fc1)\r\n" +
			"\r\n" +
			"R1 uptime is 2 hours, 10 minutes\r\n" +
			"Processor board ID 9Z2GQYL6F2KXC1\r\n"},
	}}
	res := getter.New(r).ExecuteOne(context.Background(), host("R1", "ios"), backend.Task{Operation: "facts"})

	require.True(t, res.Ok(), "%v", res.Err())
	v, _ := res.Value()
	assert.Equal(t, getter.Result{"facts": map[string]any{
		"hostname":      "R1",
		"uptime":        "2 hours, 10 minutes",
		"os_version":    "15.9(3)M6",
		"serial_number": "9Z2GQYL6F2KXC1",
	}}, v)
}

func TestExecuteOneTable(t *testing.T) {
	r := &fakeRunner{output: map[string]*executor.Output{
		"show ip arp": {Stdout: "Protocol  Address   Age  Hardware Addr   Type  Interface\r\n" +
			"Internet  10.0.0.2  4    aabb.cc00.0100  ARPA  Gi0/0\r\n"},
	}}
	res := getter.New(r).ExecuteOne(context.Background(), host("R1", "ios"), backend.Task{Operation: "arp_table"})

	require.True(t, res.Ok(), "%v", res.Err())
	v, _ := res.Value()
	rows := v["arp_table"].([]map[string]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "10.0.0.2", rows[0]["address"])
}

func TestExecuteOneUnsupportedPlatform(t *testing.T) {
	r := &fakeRunner{}
	res := getter.New(r).ExecuteOne(context.Background(), host("srv", "linux"), backend.Task{Operation: "vlans"})

	require.False(t, res.Ok())
	assert.Equal(t, result.KindRemoteExecution, res.Err().Kind)
	assert.Contains(t, res.Err().Message, "not available on platform")
	assert.Empty(t, r.calls, "no command sent")
}

func TestExecuteOneFailures(t *testing.T) {
	res := getter.New(&fakeRunner{}).ExecuteOne(context.Background(), host("R1", "ios"), backend.Task{Operation: "config"})
	require.False(t, res.Ok())
	assert.Equal(t, result.KindRemoteExecution, res.Err().Kind)

	res = getter.New(&fakeRunner{err: executor.ErrAuth}).ExecuteOne(context.Background(), host("R1", "ios"), backend.Task{Operation: "config"})
	assert.Equal(t, result.KindAuth, res.Err().Kind)

	res = getter.New(&fakeRunner{err: errors.New("x")}).ExecuteOne(context.Background(), host("R1", "ios"), backend.Task{Operation: "nope"})
	assert.Equal(t, result.KindValidation, res.Err().Kind)
}
