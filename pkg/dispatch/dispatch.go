// Package dispatch runs one task against a set of hosts in parallel and
// collects the per-host results into an ordered Aggregate.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andrej220/fanout/pkg/backend"
	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/lg"
	"github.com/andrej220/fanout/pkg/result"
	"github.com/andrej220/fanout/pkg/target"
	"github.com/andrej220/fanout/pkg/workerpool"
)

const deadlineMessage = "dispatch deadline exceeded"

// Engine holds the call-level limits of a dispatch. The zero value is usable:
// the worker budget falls back to the inventory and there is no call timeout.
type Engine struct {
	MaxWorkers int
	Timeout    time.Duration
}

// Workers returns the worker budget for a dispatch against snap.
func (e Engine) Workers(snap *inventory.Snapshot) int {
	if e.MaxWorkers > 0 {
		return e.MaxWorkers
	}
	if snap != nil && snap.Defaults().Concurrency > 0 {
		return snap.Defaults().Concurrency
	}
	return workerpool.TotalMaxWorkers
}

// HostTimeout picks the per-host timeout: the task's, then the host's, then the inventory default.
func HostTimeout(snap *inventory.Snapshot, host *inventory.Host, task backend.Task) time.Duration {
	if task.Timeout > 0 {
		return task.Timeout
	}
	if host != nil && host.Conn.Timeout > 0 {
		return host.Conn.Timeout
	}
	if snap != nil {
		return snap.Defaults().Conn.Timeout
	}
	return 0
}

// collector stores results by target index. Once sealed, late results are
// dropped. full is closed when every index holds a result.
type collector[T any] struct {
	mu      sync.Mutex
	sealed  bool
	filled  int
	results []result.Result[T]
	full    chan struct{}
}

func newCollector[T any](n int) *collector[T] {
	c := &collector[T]{results: make([]result.Result[T], n), full: make(chan struct{})}
	if n == 0 {
		close(c.full)
	}
	return c
}

func (c *collector[T]) set(i int, r result.Result[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed || c.results[i].Valid() {
		return false
	}
	c.results[i] = r
	c.filled++
	if c.filled == len(c.results) {
		close(c.full)
	}
	return true
}

func (c *collector[T]) seal() []result.Result[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	out := make([]result.Result[T], len(c.results))
	copy(out, c.results)
	return out
}

// Run executes task on every host of targets with at most e.Workers(snap)
// hosts in flight. The returned Aggregate has exactly one entry per target,
// in target order. When the call context ends first, hosts still running are
// reported as timeout_error and their late results are discarded.
//
// A host whose adapter outlives its timeout is reported at once, but its
// worker slot is only released when the adapter returns, so no more than the
// worker budget of ExecuteOne calls are ever running.
func Run[T any](ctx context.Context, e Engine, snap *inventory.Snapshot, targets target.Set, adapter backend.Adapter[T], task backend.Task) *result.Aggregate[T] {
	logger := lg.FromContext(ctx).With(
		lg.String("backend", string(adapter.Kind())),
		lg.String("operation", task.Operation),
	)

	callCtx := ctx
	var cancel context.CancelFunc = func() {}
	if e.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.Timeout)
	}
	defer cancel()

	workers := e.Workers(snap)
	logger.Info("Dispatch started", lg.Int("hosts", len(targets)), lg.Int("workers", workers))
	started := time.Now()

	c := newCollector[T](len(targets))
	pool := workerpool.NewPool[int](workers)

	for i, name := range targets {
		host, ok := snap.Host(name)
		if !ok {
			c.set(i, result.Failure[T](result.NewError(result.KindNotFound, name, "host is not in the inventory")))
			continue
		}
		hostTimeout := HostTimeout(snap, host, task)
		err := pool.Submit(workerpool.Job[int]{
			Payload: i,
			Ctx:     callCtx,
			Fn: func(jctx context.Context, i int) error {
				begin := time.Now()
				executeHost(jctx, adapter, host, task, hostTimeout, func(r result.Result[T]) {
					fields := []lg.Field{lg.String("host", host.Name), lg.Duration("duration", time.Since(begin))}
					if !r.Ok() {
						fields = append(fields, lg.String("kind", string(r.Err().Kind)), lg.String("error", r.Err().Message))
					}
					if !c.set(i, r) {
						logger.Warn("Late host result discarded", fields...)
						return
					}
					logger.Info("Host completed", fields...)
				})
				return nil
			},
		})
		if err != nil {
			break
		}
	}

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-c.full:
	case <-callCtx.Done():
	}

	results := c.seal()
	entries := make([]result.Entry[T], len(targets))
	timedOut := 0
	for i, name := range targets {
		r := results[i]
		if !r.Valid() {
			r = result.Failure[T](result.NewError(result.KindTimeout, name, deadlineMessage))
			timedOut++
		}
		entries[i] = result.Entry[T]{Host: name, Result: r}
	}

	agg := result.NewAggregate(entries)
	sum := agg.Summary()
	logger.Info("Dispatch finished",
		lg.String("outcome", string(agg.Outcome())),
		lg.Int("succeeded", sum.Succeeded),
		lg.Int("failed", sum.Failed),
		lg.Int("unfinished", timedOut),
		lg.Int32("peak_workers", pool.PeakWorkers()),
		lg.Duration("duration", time.Since(started)),
	)
	return agg
}

// executeHost runs the adapter under the per-host timeout and hands the
// outcome to report. When the timeout fires first, the timeout is reported
// immediately and executeHost keeps waiting for the adapter; its late result
// is reported too and dropped by the collector.
func executeHost[T any](ctx context.Context, adapter backend.Adapter[T], host *inventory.Host, task backend.Task, timeout time.Duration, report func(result.Result[T])) {
	hctx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	ch := make(chan result.Result[T], 1)
	go func() {
		ch <- invoke(hctx, adapter, host, task)
	}()

	select {
	case r := <-ch:
		report(normalize(ctx, hctx, host, timeout, r))
	case <-hctx.Done():
		report(result.Failure[T](timeoutError(ctx, host.Name, timeout)))
		report(normalize(ctx, hctx, host, timeout, <-ch))
	}
}

func normalize[T any](ctx, hctx context.Context, host *inventory.Host, timeout time.Duration, r result.Result[T]) result.Result[T] {
	if !r.Valid() {
		return result.Failure[T](result.NewError(result.KindRemoteExecution, host.Name, "adapter returned no result"))
	}
	if r.Ok() {
		return r
	}
	if errors.Is(hctx.Err(), context.DeadlineExceeded) && r.Err().Kind != result.KindTimeout {
		return result.Failure[T](timeoutError(ctx, host.Name, timeout))
	}
	if r.Err().Host == "" {
		return result.Failure[T](r.Err().WithHost(host.Name))
	}
	return r
}

// timeoutError names the deadline that fired: the call's or the host's.
func timeoutError(callCtx context.Context, host string, timeout time.Duration) *result.Error {
	if callCtx.Err() != nil {
		return result.NewError(result.KindTimeout, host, deadlineMessage)
	}
	return result.NewError(result.KindTimeout, host, fmt.Sprintf("host timeout of %s exceeded", timeout))
}

func invoke[T any](ctx context.Context, adapter backend.Adapter[T], host *inventory.Host, task backend.Task) (r result.Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			r = result.Failure[T](result.NewError(result.KindRemoteExecution, host.Name, fmt.Sprintf("adapter panicked: %v", p)))
		}
	}()
	return adapter.ExecuteOne(ctx, host, task)
}
