// Package shell runs commands on general-purpose hosts over SSH.
package shell

import (
	"context"
	"strings"

	"github.com/andrej220/fanout/pkg/backend"
	"github.com/andrej220/fanout/pkg/executor"
	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/result"
)

// ArgAllowFailure keeps a non-zero exit status a success; the status is still reported.
const ArgAllowFailure = "allow_failure"

type Output struct {
	Command    string `json:"command"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitStatus int    `json:"exit_status"`
	Success    bool   `json:"success"`
}

var _ backend.Adapter[Output] = (*Adapter)(nil)

type Adapter struct {
	runner executor.Runner
}

// New takes an SSH runner; shell commands are never sent over telnet.
func New(runner executor.Runner) *Adapter {
	return &Adapter{runner: runner}
}

func (a *Adapter) Kind() backend.Kind { return backend.KindShell }

func (a *Adapter) Supports(operation string) bool {
	return strings.TrimSpace(operation) != ""
}

func (a *Adapter) Validate(task backend.Task) error {
	if !a.Supports(task.Operation) {
		return result.Errorf(result.KindValidation, "command must not be empty")
	}
	_, err := task.BoolArg(ArgAllowFailure)
	return err
}

func (a *Adapter) ExecuteOne(ctx context.Context, host *inventory.Host, task backend.Task) result.Result[Output] {
	out, err := a.runner.Run(ctx, host, executor.Command{Line: task.Operation})
	if err != nil {
		return backend.Fail[Output](host.Name, err)
	}
	res := Output{
		Command:    task.Operation,
		Stdout:     out.Stdout,
		Stderr:     out.Stderr,
		ExitStatus: out.ExitStatus,
		Success:    out.ExitStatus == 0,
	}
	if !res.Success {
		if allow, _ := task.BoolArg(ArgAllowFailure); !allow {
			return backend.Remote[Output](host.Name, "exit status %d: %s", out.ExitStatus, backend.Tail(out.Stderr, 512))
		}
	}
	return result.Success(res)
}
