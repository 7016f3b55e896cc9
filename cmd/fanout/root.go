package main

import (
	"context"
	"fmt"
	"time"

	"github.com/andrej220/fanout/internal/bootstrap"
	"github.com/andrej220/fanout/pkg/config"
	"github.com/andrej220/fanout/pkg/lg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const serviceName = "fanout"

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configFile  string
	host        string
	group       string
	hostTimeout time.Duration
	output      string
	args        map[string]string
}

// cliState is filled in by the root PersistentPreRunE.
type cliState struct {
	opts   globalOptions
	app    *bootstrap.App
	logger lg.Logger
}

// newRootCmd returns the command tree and the state its commands share.
// The caller closes the state once the command has run.
func newRootCmd() (*cobra.Command, *cliState) {
	v := viper.New()
	st := &cliState{}

	root := &cobra.Command{
		Use:   "fanout",
		Short: "Run one operation on many hosts",
		Long: `fanout sends a getter, a CLI command, a shell command or a file transfer
to a selection of inventory hosts in parallel and prints one JSON document
with a result or a classified error per host.

Examples:
  fanout inventory list
  fanout get facts -g core
  fanout cli "show ip interface brief" -H R1
  fanout shell "uptime" --workers 20 --timeout 2m
  fanout download /tmp/cfg /etc/app.conf -g web -o result.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadApp(v, st.opts.configFile)
			if err != nil {
				return err
			}
			st.logger = bootstrap.NewLogger(cfg.Log, serviceName)
			ctx := lg.Attach(cmd.Context(), st.logger)
			cmd.SetContext(ctx)

			st.app, err = bootstrap.New(ctx, cfg)
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&st.opts.configFile, "config", "", "config file (default: fanout.yaml in ., $HOME/.fanout, /etc/fanout)")
	flags.String("inventory", "", "inventory file (overrides inventory.file.path)")
	flags.Int("workers", 0, "maximum hosts in flight (0: inventory default)")
	flags.Duration("timeout", 0, "deadline for the whole call (0: none)")
	flags.Bool("debug", false, "debug logging")
	flags.StringVarP(&st.opts.host, "host", "H", "", "run on a single host")
	flags.StringVarP(&st.opts.group, "group", "g", "", "run on every member of a group")
	flags.DurationVar(&st.opts.hostTimeout, "host-timeout", 0, "per-host timeout (0: inventory default)")
	flags.StringVarP(&st.opts.output, "output", "o", "", "also write the JSON result to this file")
	flags.StringToStringVar(&st.opts.args, "arg", nil, "backend argument key=value, repeatable")

	for key, flag := range map[string]string{
		"inventory.file.path": "inventory",
		"dispatch.workers":    "workers",
		"dispatch.timeout":    "timeout",
		"log.debug":           "debug",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}

	root.AddCommand(
		newInventoryCmd(st),
		newGettersCmd(st),
		newCapabilitiesCmd(st),
		newGetCmd(st),
		newCLICmd(st),
		newShellCmd(st),
	)
	root.AddCommand(newTransferCmds(st)...)
	return root, st
}

func (st *cliState) close(ctx context.Context) {
	if st.app != nil {
		if err := st.app.Close(ctx); err != nil {
			st.logger.Warn("Failed to close resources", lg.Err(err))
		}
		st.app = nil
	}
	if st.logger != nil {
		_ = st.logger.Sync()
	}
}
