package executor

import (
	"context"

	"github.com/andrej220/fanout/pkg/inventory"
)

// DriverRunner picks the runner matching the host's driver; ssh is the default.
type DriverRunner struct {
	SSH    Runner
	Telnet Runner
}

func NewDriverRunner(d *Dialer) *DriverRunner {
	return &DriverRunner{SSH: NewSSHRunner(d), Telnet: NewTelnetRunner()}
}

func (r *DriverRunner) Run(ctx context.Context, host *inventory.Host, cmd Command) (*Output, error) {
	if host.Conn.Driver == inventory.DriverTelnet {
		return r.Telnet.Run(ctx, host, cmd)
	}
	return r.SSH.Run(ctx, host, cmd)
}
