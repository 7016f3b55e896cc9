// Package bootstrap builds the runtime object graph (inventory, dialer,
// adapters, sinks) from an AppConfig. It is shared by the CLI and the service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/andrej220/fanout/pkg/archive"
	"github.com/andrej220/fanout/pkg/config"
	"github.com/andrej220/fanout/pkg/dispatch"
	"github.com/andrej220/fanout/pkg/executor"
	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/lg"
	"github.com/andrej220/fanout/pkg/orchestrator"
	"github.com/andrej220/fanout/pkg/persistence"
	"github.com/andrej220/fanout/pkg/producer"
)

type App struct {
	Config       *config.AppConfig
	Store        config.Config
	Inventory    *inventory.Manager
	Dialer       *executor.Dialer
	Orchestrator *orchestrator.Orchestrator
	Archive      *archive.Archive   // nil unless archive.enabled
	Producer     *producer.Producer // nil unless Kafka results are enabled

	closers []func(context.Context) error
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig, service string) lg.Logger {
	return lg.New(&lg.Config{
		ServiceName: service,
		Debug:       cfg.Debug,
		Level:       cfg.Level,
		Format:      cfg.Format,
		File:        cfg.File,
		MaxSizeMB:   cfg.MaxSizeMB,
		MaxBackups:  cfg.MaxBackups,
	})
}

// New wires every component named in cfg. Optional sinks (output directory,
// Mongo archive, Kafka results) are only created when configured.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	logger := lg.FromContext(ctx)

	st, storeCfg, err := cfg.Inventory.StoreConfig()
	if err != nil {
		return nil, err
	}
	store, err := config.NewStore(st, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open inventory store: %w", err)
	}
	a := &App{Config: cfg, Store: store}
	if c, ok := store.(interface{ Close(context.Context) error }); ok {
		a.closers = append(a.closers, c.Close)
	}
	a.Inventory = inventory.NewManager(inventory.NewStoreSource(store))

	a.Dialer, err = executor.NewDialer(executor.Options{
		KnownHostsFile: cfg.SSH.KnownHosts,
		UseAgent:       cfg.SSH.UseAgent,
		DialTimeout:    cfg.SSH.DialTimeout,
		Resilience:     executor.DefaultResilienceConfig(cfg.SSH.DialRetries, cfg.SSH.BreakerThreshold),
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	engine := dispatch.Engine{MaxWorkers: cfg.Dispatch.Workers, Timeout: cfg.Dispatch.Timeout}
	a.Orchestrator = orchestrator.New(a.Inventory, orchestrator.NewAdapters(a.Dialer), engine)

	if cfg.Output.Dir != "" {
		a.Orchestrator.AddSink(persistence.NewDirSink(cfg.Output.Dir))
		logger.Info("Writing payloads to directory", lg.String("dir", cfg.Output.Dir))
	}
	if cfg.Archive.Enabled {
		arc, err := archive.Connect(ctx, cfg.Archive)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.Archive = arc
		a.Orchestrator.AddSink(arc)
		a.closers = append(a.closers, arc.Close)
	}
	if cfg.Kafka.Enabled && cfg.Kafka.ResultTopic != "" {
		p := producer.New(producer.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.ResultTopic})
		a.Producer = p
		a.Orchestrator.AddSink(p)
		a.closers = append(a.closers, func(context.Context) error { return p.Close() })
		logger.Info("Publishing payloads to Kafka", lg.String("topic", cfg.Kafka.ResultTopic))
	}
	return a, nil
}

// WatchInventory starts reloading the inventory whenever its store changes,
// until ctx ends. It is a no-op unless inventory.watch is set.
func (a *App) WatchInventory(ctx context.Context) error {
	if !a.Config.Inventory.Watch {
		return nil
	}
	return a.Inventory.Watch(ctx, a.Store)
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
