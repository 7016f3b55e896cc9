package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/andrej220/fanout/pkg/inventory"
	"golang.org/x/crypto/ssh"
)

// SSHRunner runs commands in an exec channel, one connection per command.
type SSHRunner struct {
	Dialer *Dialer
}

func NewSSHRunner(d *Dialer) *SSHRunner {
	return &SSHRunner{Dialer: d}
}

func (r *SSHRunner) Run(ctx context.Context, host *inventory.Host, cmd Command) (*Output, error) {
	var out *Output
	err := r.Dialer.WithClient(ctx, host, func(client *ssh.Client) error {
		sess, err := client.NewSession()
		if err != nil {
			return fmt.Errorf("new session: %w", err)
		}
		defer sess.Close()

		var stdout, stderr bytes.Buffer
		sess.Stdout = &stdout
		sess.Stderr = &stderr

		runErr := sess.Run(cmd.Line)
		out = &Output{Stdout: stdout.String(), Stderr: stderr.String()}

		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			out.ExitStatus = exitErr.ExitStatus()
			return nil
		}
		if runErr != nil {
			return fmt.Errorf("run %q: %w", cmd.Line, runErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
