// Package orchestrator is the operation surface of fanout: inventory listing
// and reload, capability discovery and one dispatch call per backend kind.
package orchestrator

import (
	"context"
	"time"

	"github.com/andrej220/fanout/pkg/backend"
	"github.com/andrej220/fanout/pkg/backend/cli"
	"github.com/andrej220/fanout/pkg/backend/getter"
	"github.com/andrej220/fanout/pkg/backend/shell"
	"github.com/andrej220/fanout/pkg/backend/transfer"
	"github.com/andrej220/fanout/pkg/dispatch"
	"github.com/andrej220/fanout/pkg/executor"
	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/lg"
	"github.com/andrej220/fanout/pkg/result"
	"github.com/andrej220/fanout/pkg/target"
	"github.com/google/uuid"
)

// Sink receives every completed payload. Sink errors are logged and never
// change what the caller gets back.
type Sink interface {
	Store(ctx context.Context, p *result.Payload) error
}

// Adapters holds one adapter per backend kind. A nil adapter disables the kind.
type Adapters struct {
	Getter   backend.Adapter[getter.Result]
	CLI      backend.Adapter[string]
	Shell    backend.Adapter[shell.Output]
	Transfer backend.Adapter[transfer.Report]
}

// NewAdapters wires every backend to d. Getters and CLI commands follow the
// host's driver; shell and transfer always use SSH.
func NewAdapters(d *executor.Dialer) Adapters {
	drivers := executor.NewDriverRunner(d)
	return Adapters{
		Getter:   getter.New(drivers),
		CLI:      cli.New(drivers),
		Shell:    shell.New(executor.NewSSHRunner(d)),
		Transfer: transfer.New(d),
	}
}

// Request is one dispatch call.
type Request struct {
	Operation string
	Target    target.Selector
	Args      map[string]string
	Timeout   time.Duration // per host
	ID        uuid.UUID     // zero means generate
}

type Orchestrator struct {
	inv      *inventory.Manager
	adapters Adapters
	engine   dispatch.Engine
	sinks    []Sink
}

func New(inv *inventory.Manager, adapters Adapters, engine dispatch.Engine, sinks ...Sink) *Orchestrator {
	return &Orchestrator{inv: inv, adapters: adapters, engine: engine, sinks: sinks}
}

// AddSink registers s for every later call. It is not safe to call concurrently with a dispatch.
func (o *Orchestrator) AddSink(s Sink) {
	o.sinks = append(o.sinks, s)
}

func (o *Orchestrator) Inventory() *inventory.Manager { return o.inv }

// RunGetter runs a named getter. Unknown getters fail before any host is contacted.
func (o *Orchestrator) RunGetter(ctx context.Context, req Request) (*result.Payload, error) {
	return run(ctx, o, o.adapters.Getter, backend.KindGetter, req, nil)
}

// RunCommand sends a free-form command to CLI devices.
func (o *Orchestrator) RunCommand(ctx context.Context, req Request) (*result.Payload, error) {
	return run(ctx, o, o.adapters.CLI, backend.KindCLI, req, nil)
}

func (o *Orchestrator) RunShell(ctx context.Context, req Request) (*result.Payload, error) {
	return run(ctx, o, o.adapters.Shell, backend.KindShell, req, nil)
}

// RunTransfer runs a file transfer operation. A download from more than one
// host writes one file or tree per host unless per_host is explicitly false,
// which is rejected.
func (o *Orchestrator) RunTransfer(ctx context.Context, req Request) (*result.Payload, error) {
	return run(ctx, o, o.adapters.Transfer, backend.KindTransfer, req, perHostDownloads)
}

// Dispatch routes a request by backend kind name.
func (o *Orchestrator) Dispatch(ctx context.Context, kind backend.Kind, req Request) (*result.Payload, error) {
	switch kind {
	case backend.KindGetter:
		return o.RunGetter(ctx, req)
	case backend.KindCLI:
		return o.RunCommand(ctx, req)
	case backend.KindShell:
		return o.RunShell(ctx, req)
	case backend.KindTransfer:
		return o.RunTransfer(ctx, req)
	}
	return nil, result.Errorf(result.KindValidation, "unknown backend %q", kind)
}

func perHostDownloads(targets target.Set, task backend.Task) (backend.Task, error) {
	if (task.Operation != transfer.OpDownload && task.Operation != transfer.OpDownloadDir) || len(targets) < 2 {
		return task, nil
	}
	if task.Arg(transfer.ArgPerHost) == "" {
		return task.WithArg(transfer.ArgPerHost, "true"), nil
	}
	if perHost, _ := task.BoolArg(transfer.ArgPerHost); !perHost {
		return task, result.Errorf(result.KindValidation,
			"download from %d hosts into one local path needs per_host", len(targets))
	}
	return task, nil
}

// run performs the pre-dispatch steps in order (validate, snapshot, resolve)
// and then dispatches. Every returned error is a *result.Error.
func run[T any](ctx context.Context, o *Orchestrator, adapter backend.Adapter[T], kind backend.Kind, req Request,
	prepare func(target.Set, backend.Task) (backend.Task, error)) (*result.Payload, error) {
	logger := lg.FromContext(ctx).With(lg.String("backend", string(kind)), lg.String("target", req.Target.Describe()))

	if adapter == nil {
		return nil, result.Errorf(result.KindValidation, "backend %q is not enabled", kind)
	}
	task := backend.Task{Kind: kind, Operation: req.Operation, Args: req.Args, Timeout: req.Timeout}
	if req.Timeout < 0 {
		return nil, result.Errorf(result.KindValidation, "timeout must not be negative")
	}
	if err := adapter.Validate(task); err != nil {
		logger.Info("Request rejected", lg.Err(err))
		return nil, result.AsError(err, result.KindValidation)
	}

	snap, err := o.inv.Snapshot(ctx)
	if err != nil {
		logger.Error("Inventory unavailable", lg.Err(err))
		return nil, result.AsError(err, result.KindLoad)
	}
	targets, err := target.ResolveSelector(snap, req.Target)
	if err != nil {
		logger.Info("Target resolution failed", lg.Err(err))
		return nil, result.AsError(err, result.KindNotFound)
	}
	if prepare != nil {
		if task, err = prepare(targets, task); err != nil {
			return nil, result.AsError(err, result.KindValidation)
		}
	}

	started := time.Now()
	agg := dispatch.Run(ctx, o.engine, snap, targets, adapter, task)
	p := result.NewPayload(req.ID, string(kind), req.Operation, req.Target.Describe(), started, agg)
	o.store(ctx, p)
	return p, nil
}

func (o *Orchestrator) store(ctx context.Context, p *result.Payload) {
	if len(o.sinks) == 0 {
		return
	}
	// sinks run even when the caller has gone away
	sctx := context.WithoutCancel(ctx)
	for _, s := range o.sinks {
		if err := s.Store(sctx, p); err != nil {
			lg.FromContext(ctx).Error("Failed to store payload", lg.String("id", p.ID.String()), lg.Err(err))
		}
	}
}
