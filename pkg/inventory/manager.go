package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andrej220/fanout/pkg/config/configstore"
	"github.com/andrej220/fanout/pkg/lg"
	"github.com/andrej220/fanout/pkg/result"
	"golang.org/x/sync/singleflight"
)

// DefaultLoadTimeout bounds a single source load shared by several callers.
const DefaultLoadTimeout = 30 * time.Second

// Manager owns the currently published snapshot. Readers get the snapshot
// with a single atomic load; loads and reloads are collapsed with singleflight.
type Manager struct {
	src         Source
	LoadTimeout time.Duration

	current atomic.Pointer[Snapshot]
	flight  singleflight.Group

	mu      sync.Mutex // serialises publishing so versions only grow
	version uint64
}

func NewManager(src Source) *Manager {
	return &Manager{src: src, LoadTimeout: DefaultLoadTimeout}
}

// Snapshot returns the published snapshot, loading it on first use.
// A failed first load is reported to every waiter and retried on the next call.
func (m *Manager) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s := m.current.Load(); s != nil {
		return s, nil
	}
	return m.do(ctx, "load", func(ctx context.Context) (*Snapshot, error) {
		if s := m.current.Load(); s != nil {
			return s, nil
		}
		return m.loadAndPublish(ctx)
	})
}

// Reload loads the source again and publishes the result. On failure the
// previously published snapshot stays in place.
func (m *Manager) Reload(ctx context.Context) (*Snapshot, error) {
	return m.do(ctx, "reload", m.loadAndPublish)
}

// Current returns the published snapshot without loading; nil before the first load.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// Watch reloads the inventory every time w reports a change, until ctx is done.
func (m *Manager) Watch(ctx context.Context, w configstore.Watcher) error {
	logger := lg.FromContext(ctx)
	return w.Watch(ctx, func() {
		snap, err := m.Reload(ctx)
		if err != nil {
			logger.Warn("inventory reload failed, keeping previous snapshot", lg.Err(err))
			return
		}
		logger.Info("inventory reloaded",
			lg.Uint64("version", snap.Version()),
			lg.Int("hosts", snap.Len()))
	})
}

func (m *Manager) do(ctx context.Context, key string, fn func(context.Context) (*Snapshot, error)) (*Snapshot, error) {
	ch := m.flight.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.loadTimeout())
		defer cancel()
		return fn(lctx)
	})
	select {
	case <-ctx.Done():
		return nil, result.Errorf(result.KindLoad, "inventory load abandoned: %v", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, result.AsError(res.Err, result.KindLoad)
		}
		return res.Val.(*Snapshot), nil
	}
}

func (m *Manager) loadAndPublish(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	snap, err := m.src.Load(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, result.Errorf(result.KindLoad, "inventory source returned no snapshot")
	}

	m.mu.Lock()
	m.version++
	snap.version = m.version
	m.current.Store(snap)
	m.mu.Unlock()

	lg.FromContext(ctx).Debug("inventory snapshot published",
		lg.Uint64("version", snap.version),
		lg.Int("hosts", snap.Len()),
		lg.Duration("took", time.Since(start)))
	return snap, nil
}

func (m *Manager) loadTimeout() time.Duration {
	if m.LoadTimeout <= 0 {
		return DefaultLoadTimeout
	}
	return m.LoadTimeout
}
