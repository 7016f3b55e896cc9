package target_test

import (
	"testing"

	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/result"
	"github.com/andrej220/fanout/pkg/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(t *testing.T) *inventory.Snapshot {
	t.Helper()
	snap, err := inventory.Build(&inventory.Document{
		Groups: []inventory.GroupDoc{
			{Name: "core", Members: []string{"R2", "R1"}},
			{Name: "empty"},
		},
		Hosts: []inventory.HostDoc{
			{Name: "R1", Groups: []string{"core"}},
			{Name: "R2"},
			{Name: "R3"},
		},
	})
	require.NoError(t, err)
	return snap
}

func TestResolve(t *testing.T) {
	snap := snapshot(t)

	tests := []struct {
		name     string
		host     string
		group    string
		want     target.Set
		wantKind result.ErrorKind
	}{
		{name: "single host", host: "R2", want: target.Set{"R2"}},
		{name: "group keeps member order without duplicates", group: "core", want: target.Set{"R2", "R1"}},
		{name: "all hosts in inventory order", want: target.Set{"R1", "R2", "R3"}},
		{name: "both selectors", host: "R1", group: "core", wantKind: result.KindValidation},
		{name: "unknown host", host: "R9", wantKind: result.KindNotFound},
		{name: "unknown group", group: "dmz", wantKind: result.KindNotFound},
		{name: "empty group", group: "empty", wantKind: result.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := target.Resolve(snap, tt.host, tt.group)
			viaSelector, selErr := target.ResolveSelector(snap, target.Selector{Host: tt.host, Group: tt.group})
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, result.KindOf(err))
				assert.Equal(t, tt.wantKind, result.KindOf(selErr))
				return
			}
			require.NoError(t, err)
			require.NoError(t, selErr)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, viaSelector)
		})
	}
}

func TestResolveEmptyInventory(t *testing.T) {
	snap, err := inventory.Build(&inventory.Document{})
	require.NoError(t, err)
	_, err = target.Resolve(snap, "", "")
	assert.Equal(t, result.KindNotFound, result.KindOf(err))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "R1", target.Selector{Host: "R1"}.Describe())
	assert.Equal(t, "group:core", target.Selector{Group: "core"}.Describe())
	assert.Equal(t, "all", target.Selector{}.Describe())
}
