package executor

import (
	"context"

	"github.com/andrej220/fanout/pkg/inventory"
)

// Output is what a remote command produced.
type Output struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

// Command is a single line to run. Prompt overrides the telnet prompt pattern.
type Command struct {
	Line   string
	Prompt string
}

// Runner executes one command on one host. Errors are transport failures;
// a non-zero exit status is reported in Output.
type Runner interface {
	Run(ctx context.Context, host *inventory.Host, cmd Command) (*Output, error)
}
