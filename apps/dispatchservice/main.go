// Command dispatchservice exposes fan-out dispatch over HTTP and, when
// enabled, consumes dispatch requests from Kafka.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andrej220/fanout/internal/bootstrap"
	"github.com/andrej220/fanout/pkg/config"
	"github.com/andrej220/fanout/pkg/consumer"
	"github.com/andrej220/fanout/pkg/lg"
	"github.com/andrej220/fanout/pkg/serverutil"
	dm "github.com/andrej220/fanout/pkg/shared-models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const serviceName = "fanout-dispatchservice"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "dispatchservice",
		Short:         "Serve fan-out dispatch over HTTP and Kafka",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadApp(v, configFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (default: fanout.yaml in ., $HOME/.fanout, /etc/fanout)")
	flags.String("addr", "", "listen address (overrides server.addr)")
	flags.Bool("debug", false, "debug logging")
	_ = v.BindPFlag("server.addr", flags.Lookup("addr"))
	_ = v.BindPFlag("log.debug", flags.Lookup("debug"))
	return cmd
}

func serve(ctx context.Context, cfg *config.AppConfig) error {
	logger := bootstrap.NewLogger(cfg.Log, serviceName)
	defer logger.Sync()
	ctx = lg.Attach(ctx, logger)

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialise", lg.Err(err))
		return err
	}
	defer func() {
		if err := app.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to close resources", lg.Err(err))
		}
	}()

	if err := app.WatchInventory(ctx); err != nil {
		logger.Warn("Inventory watch unavailable", lg.Err(err))
	}

	var executions executionStore
	if app.Archive != nil {
		executions = app.Archive
	}
	var results publisher
	if app.Producer != nil {
		results = app.Producer
	}
	svc := newDispatchService(app.Orchestrator, executions, results, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scfg := serverutil.DefaultServerConfig()
		scfg.Addr = cfg.Server.Addr
		scfg.Logger = logger
		return serverutil.RunServer(gctx, svc.routes(), scfg)
	})
	if cfg.Kafka.Enabled && cfg.Kafka.RequestTopic != "" {
		cons := consumer.NewConsumer[dm.DispatchRequest](consumer.Config{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.GroupID,
			Topic:   cfg.Kafka.RequestTopic,
		})
		defer cons.Close()
		logger.Info("Consuming dispatch requests", lg.String("topic", cfg.Kafka.RequestTopic), lg.Strings("brokers", cfg.Kafka.Brokers))
		g.Go(func() error {
			return cons.Run(gctx, svc.handleMessage)
		})
	}
	return g.Wait()
}
