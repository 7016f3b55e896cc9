package filestore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andrej220/fanout/pkg/config/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Hosts []struct {
		Name string `yaml:"name"`
	} `yaml:"hosts"`
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inv.yaml")
	fs := filestore.New(path)

	in := map[string]any{"hosts": []map[string]string{{"name": "R1"}, {"name": "R2"}}}
	require.NoError(t, fs.Save(context.Background(), in))

	var out doc
	require.NoError(t, fs.Load(context.Background(), &out))
	require.Len(t, out.Hosts, 2)
	assert.Equal(t, "R1", out.Hosts[0].Name)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	var out doc

	err := filestore.New(filepath.Join(dir, "missing.yaml")).Load(context.Background(), &out)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0600))
	err = filestore.New(empty).Load(context.Background(), &out)
	assert.ErrorContains(t, err, "empty")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("hosts: [\n"), 0600))
	err = filestore.New(broken).Load(context.Background(), &out)
	assert.ErrorContains(t, err, "parse YAML")

	assert.Error(t, filestore.New(empty).Load(context.Background(), nil))
}

func TestWatchReportsRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hosts: []\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	fs := filestore.New(path)
	require.NoError(t, fs.Watch(ctx, func() { changed <- struct{}{} }))

	require.NoError(t, fs.Save(ctx, map[string]any{"hosts": []any{}}))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestWatchRequiresCallback(t *testing.T) {
	assert.Error(t, filestore.New("x.yaml").Watch(context.Background(), nil))
}
