// Package cli sends free-form commands to CLI devices over SSH or telnet.
package cli

import (
	"context"
	"regexp"
	"strings"

	"github.com/andrej220/fanout/pkg/backend"
	"github.com/andrej220/fanout/pkg/executor"
	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/result"
)

// ArgExpectPrompt overrides the prompt pattern used to detect end of output on telnet.
const ArgExpectPrompt = "expect_prompt"

var _ backend.Adapter[string] = (*Adapter)(nil)

type Adapter struct {
	runner executor.Runner
}

func New(runner executor.Runner) *Adapter {
	return &Adapter{runner: runner}
}

func (a *Adapter) Kind() backend.Kind { return backend.KindCLI }

// Supports accepts any non-blank command; the command set is not restricted.
func (a *Adapter) Supports(operation string) bool {
	return strings.TrimSpace(operation) != ""
}

func (a *Adapter) Validate(task backend.Task) error {
	if !a.Supports(task.Operation) {
		return result.Errorf(result.KindValidation, "command must not be empty")
	}
	if p := task.Arg(ArgExpectPrompt); p != "" {
		if _, err := regexp.Compile(p); err != nil {
			return result.Errorf(result.KindValidation, "invalid %s pattern: %v", ArgExpectPrompt, err)
		}
	}
	return nil
}

func (a *Adapter) ExecuteOne(ctx context.Context, host *inventory.Host, task backend.Task) result.Result[string] {
	cmd := strings.TrimSpace(task.Operation)
	out, err := a.runner.Run(ctx, host, executor.Command{Line: cmd, Prompt: task.Arg(ArgExpectPrompt)})
	if err != nil {
		return backend.Fail[string](host.Name, err)
	}
	if out.ExitStatus != 0 && strings.TrimSpace(out.Stdout) == "" {
		return backend.Remote[string](host.Name, "%q exited with status %d: %s",
			cmd, out.ExitStatus, backend.Tail(out.Stderr, 256))
	}
	return result.Success(strings.TrimRight(out.Stdout, "\r\n"))
}
