package inventory_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andrej220/fanout/pkg/config/filestore"
	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/lg"
	"github.com/andrej220/fanout/pkg/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docWith(names ...string) *inventory.Document {
	doc := &inventory.Document{}
	for _, n := range names {
		doc.Hosts = append(doc.Hosts, inventory.HostDoc{Name: n})
	}
	return doc
}

func TestConcurrentFirstLoadIsShared(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	src := inventory.SourceFunc(func(ctx context.Context) (*inventory.Snapshot, error) {
		loads.Add(1)
		<-release
		return inventory.Build(docWith("R1"))
	})
	m := inventory.NewManager(src)

	const callers = 16
	var wg sync.WaitGroup
	snaps := make([]*inventory.Snapshot, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Snapshot(context.Background())
			assert.NoError(t, err)
			snaps[i] = s
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for _, s := range snaps {
		assert.Same(t, snaps[0], s)
	}
	assert.Equal(t, uint64(1), snaps[0].Version())
}

func TestFailedFirstLoadIsRetried(t *testing.T) {
	var calls atomic.Int32
	src := inventory.SourceFunc(func(ctx context.Context) (*inventory.Snapshot, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("disk on fire")
		}
		return inventory.Build(docWith("R1"))
	})
	m := inventory.NewManager(src)

	_, err := m.Snapshot(context.Background())
	require.Error(t, err)
	assert.Equal(t, result.KindLoad, result.KindOf(err))
	assert.Nil(t, m.Current())

	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
}

func TestReloadKeepsPreviousOnFailure(t *testing.T) {
	var fail atomic.Bool
	src := inventory.SourceFunc(func(ctx context.Context) (*inventory.Snapshot, error) {
		if fail.Load() {
			return inventory.Build(docWith("R1", "R1"))
		}
		return inventory.Build(docWith("R1", "R2"))
	})
	m := inventory.NewManager(src)

	first, err := m.Snapshot(context.Background())
	require.NoError(t, err)

	second, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.Greater(t, second.Version(), first.Version())
	assert.Same(t, second, m.Current())

	fail.Store(true)
	_, err = m.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, result.KindLoad, result.KindOf(err))

	cur, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Same(t, second, cur)
}

func TestSnapshotHonoursCallerContext(t *testing.T) {
	src := inventory.SourceFunc(func(ctx context.Context) (*inventory.Snapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m := inventory.NewManager(src)
	m.LoadTimeout = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Snapshot(ctx)
	assert.Equal(t, result.KindLoad, result.KindOf(err))
}

func TestStoreSourceAndWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hosts:\n  - name: R1\n"), 0600))

	store := filestore.New(path)
	m := inventory.NewManager(inventory.NewStoreSource(store))

	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"R1"}, snap.HostNames())

	ctx, cancel := context.WithCancel(lg.Attach(context.Background(), lg.Discard))
	defer cancel()
	require.NoError(t, m.Watch(ctx, store))

	require.NoError(t, store.Save(ctx, docWith("R1", "R2")))

	assert.Eventually(t, func() bool {
		cur := m.Current()
		return cur != nil && cur.Len() == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStoreSourceMissingFile(t *testing.T) {
	src := inventory.NewStoreSource(filestore.New(filepath.Join(t.TempDir(), "none.yaml")))
	_, err := src.Load(context.Background())
	assert.Equal(t, result.KindLoad, result.KindOf(err))
}
