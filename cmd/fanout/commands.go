package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/andrej220/fanout/pkg/backend/cli"
	"github.com/andrej220/fanout/pkg/backend/shell"
	"github.com/andrej220/fanout/pkg/backend/transfer"
	"github.com/andrej220/fanout/pkg/orchestrator"
	"github.com/andrej220/fanout/pkg/persistence"
	"github.com/andrej220/fanout/pkg/result"
	dm "github.com/andrej220/fanout/pkg/shared-models"
	"github.com/andrej220/fanout/pkg/target"
	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v any) error {
	raw, err := persistence.JSONSerializer{Prefix: persistence.Prefix, Indent: persistence.Indent}.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

// fail prints a pre-dispatch error as JSON and maps it to exit status 1.
func fail(w io.Writer, err error) error {
	re := result.AsError(err, result.KindValidation)
	_ = printJSON(w, dm.ErrorResponse{Error: string(re.Kind), Message: re.Message})
	return &exitError{code: exitPreDispatch, err: err}
}

func (st *cliState) request(operation string, extra map[string]string) orchestrator.Request {
	args := make(map[string]string, len(st.opts.args)+len(extra))
	for k, v := range st.opts.args {
		args[k] = v
	}
	for k, v := range extra {
		args[k] = v
	}
	return orchestrator.Request{
		Operation: operation,
		Target:    target.Selector{Host: st.opts.host, Group: st.opts.group},
		Args:      args,
		Timeout:   st.opts.hostTimeout,
	}
}

type runFunc func(context.Context, orchestrator.Request) (*result.Payload, error)

// dispatch runs one request and reports it. Exit status 2 means at least one host failed.
func (st *cliState) dispatch(cmd *cobra.Command, run runFunc, req orchestrator.Request) error {
	p, err := run(cmd.Context(), req)
	if err != nil {
		return fail(cmd.OutOrStdout(), err)
	}
	if st.opts.output != "" {
		if err := persistence.WriteJSON(p, st.opts.output); err != nil {
			return fmt.Errorf("write %s: %w", st.opts.output, err)
		}
	}
	if err := printJSON(cmd.OutOrStdout(), p); err != nil {
		return err
	}
	if p.Outcome != result.OutcomeSuccess {
		return &exitError{code: exitHostFailed}
	}
	return nil
}

func newInventoryCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Inspect the host inventory",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List hosts and groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := st.app.Orchestrator.ListTargets(cmd.Context())
			if err != nil {
				return fail(cmd.OutOrStdout(), err)
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}, &cobra.Command{
		Use:   "check",
		Short: "Load and validate the inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := st.app.Orchestrator.ReloadInventory(cmd.Context())
			if err != nil {
				return fail(cmd.OutOrStdout(), err)
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	})
	return cmd
}

func newGettersCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "getters",
		Short: "List the available getters and their platforms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), st.app.Orchestrator.Getters())
		},
	}
}

func newCapabilitiesCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "List the advertised operations of every backend, including common CLI commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), st.app.Orchestrator.Capabilities())
		},
	}
}

func newGetCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "get <getter>",
		Short: "Run a getter and print structured data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.dispatch(cmd, st.app.Orchestrator.RunGetter, st.request(args[0], nil))
		},
	}
}

func newCLICmd(st *cliState) *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "cli <command>...",
		Short: "Send a command to CLI devices over SSH or telnet",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra := map[string]string{}
			if prompt != "" {
				extra[cli.ArgExpectPrompt] = prompt
			}
			return st.dispatch(cmd, st.app.Orchestrator.RunCommand, st.request(strings.Join(args, " "), extra))
		},
	}
	cmd.Flags().StringVar(&prompt, "expect-prompt", "", "prompt regex for telnet devices")
	return cmd
}

func newShellCmd(st *cliState) *cobra.Command {
	var allowFailure bool
	cmd := &cobra.Command{
		Use:   "shell <command>...",
		Short: "Run a shell command on servers over SSH",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra := map[string]string{}
			if allowFailure {
				extra[shell.ArgAllowFailure] = "true"
			}
			return st.dispatch(cmd, st.app.Orchestrator.RunShell, st.request(strings.Join(args, " "), extra))
		},
	}
	cmd.Flags().BoolVar(&allowFailure, "allow-failure", false, "report a non-zero exit status as success")
	return cmd
}

func newTransferCmds(st *cliState) []*cobra.Command {
	pathCmd := func(use, op, short string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <local> <remote>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				extra := map[string]string{
					transfer.ArgLocalPath:  args[0],
					transfer.ArgRemotePath: args[1],
				}
				if f := cmd.Flags().Lookup("per-host"); f != nil && f.Changed {
					extra[transfer.ArgPerHost] = f.Value.String()
				}
				return st.dispatch(cmd, st.app.Orchestrator.RunTransfer, st.request(op, extra))
			},
		}
	}

	upload := pathCmd("upload", transfer.OpUpload, "Upload a file to every host")
	uploadDir := pathCmd("upload-dir", transfer.OpUploadDir, "Upload a directory tree to every host")
	download := pathCmd("download", transfer.OpDownload, "Download a file from every host")
	download.Flags().Bool("per-host", false, "name the local file <host>_<name> (default when several hosts are selected)")
	downloadDir := pathCmd("download-dir", transfer.OpDownloadDir, "Download a directory tree from every host")
	downloadDir.Flags().Bool("per-host", false, "write each host's tree to <local>/<host> (default when several hosts are selected)")

	ls := &cobra.Command{
		Use:   "ls <remote>",
		Short: "List a remote directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.dispatch(cmd, st.app.Orchestrator.RunTransfer,
				st.request(transfer.OpList, map[string]string{transfer.ArgRemotePath: args[0]}))
		},
	}
	return []*cobra.Command{upload, download, uploadDir, downloadDir, ls}
}
