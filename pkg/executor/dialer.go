package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrAuth marks credential rejections; they are never retried.
var ErrAuth = errors.New("authentication failed")

const DefaultDialTimeout = 10 * time.Second

type Options struct {
	KnownHostsFile string // empty disables host key checking
	UseAgent       bool
	DialTimeout    time.Duration
	Resilience     *ResilienceConfig
}

// Dialer opens SSH connections to inventory hosts with retries and a
// per-host circuit breaker.
type Dialer struct {
	opts     Options
	hostKeys ssh.HostKeyCallback
	breakers *breakers
	netDial  func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewDialer(opts Options) (*Dialer, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Resilience == nil {
		opts.Resilience = DefaultResilienceConfig(3, 5)
	}
	hostKeys := ssh.InsecureIgnoreHostKey()
	if opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts %s: %w", opts.KnownHostsFile, err)
		}
		hostKeys = cb
	}
	var d net.Dialer
	return &Dialer{
		opts:     opts,
		hostKeys: hostKeys,
		breakers: newBreakers(opts.Resilience.CircuitBreakerSettings),
		netDial:  d.DialContext,
	}, nil
}

// BreakerState reports the circuit breaker state for a host.
func (d *Dialer) BreakerState(host string) gobreaker.State {
	return d.breakers.State(host)
}

// DialSSH connects and authenticates to host. The caller closes the client.
func (d *Dialer) DialSSH(ctx context.Context, host *inventory.Host) (*ssh.Client, error) {
	cfg, cleanup, err := d.clientConfig(host)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	addr := host.Address()
	res, err := d.breakers.get(host.Name).Execute(func() (any, error) {
		var client *ssh.Client
		operation := func() error {
			c, err := d.dialOnce(ctx, addr, cfg)
			if err != nil {
				if errors.Is(err, ErrAuth) || ctx.Err() != nil {
					return backoff.Permanent(err)
				}
				return err
			}
			client = c
			return nil
		}
		b := backoff.WithContext(d.opts.Resilience.newBackOff(), ctx)
		if err := backoff.Retry(operation, b); err != nil {
			return nil, err
		}
		return client, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ssh %s: %w", addr, ctxErr)
		}
		return nil, fmt.Errorf("ssh %s: %w", addr, err)
	}
	return res.(*ssh.Client), nil
}

// WithClient dials host, runs fn and closes the client. The connection is
// torn down as soon as ctx is done so fn cannot outlive it.
func (d *Dialer) WithClient(ctx context.Context, host *inventory.Host, fn func(*ssh.Client) error) error {
	client, err := d.DialSSH(ctx, host)
	if err != nil {
		return err
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	err = fn(client)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (d *Dialer) dialOnce(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	conn, err := d.netDial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(d.opts.DialTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	cConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(cConn, chans, reqs), nil
}

// clientConfig collects auth methods: password, key file (or the user's
// default keys when none is set) and the SSH agent.
func (d *Dialer) clientConfig(host *inventory.Host) (*ssh.ClientConfig, func(), error) {
	cleanup := func() {}
	var authMethods []ssh.AuthMethod

	if host.Conn.Password != "" {
		authMethods = append(authMethods, ssh.Password(host.Conn.Password))
		authMethods = append(authMethods, ssh.KeyboardInteractive(
			func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = host.Conn.Password
				}
				return answers, nil
			}))
	}

	if host.Conn.KeyPath != "" {
		signer, err := readSigner(host.Conn.KeyPath)
		if err != nil {
			return nil, cleanup, fmt.Errorf("%w: %v", ErrAuth, err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	} else {
		for _, p := range defaultKeyPaths() {
			if signer, err := readSigner(p); err == nil {
				authMethods = append(authMethods, ssh.PublicKeys(signer))
			}
		}
	}

	if d.opts.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if conn, err := net.Dial("unix", sock); err == nil {
				authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
				cleanup = func() { conn.Close() }
			}
		}
	}

	if len(authMethods) == 0 {
		return nil, cleanup, fmt.Errorf("%w: no authentication methods available for %s", ErrAuth, host.Name)
	}

	return &ssh.ClientConfig{
		User:            host.Conn.Username,
		Auth:            authMethods,
		HostKeyCallback: d.hostKeys,
		Timeout:         d.opts.DialTimeout,
		BannerCallback:  func(message string) error { return nil }, //ignore banner
	}, cleanup, nil
}

func readSigner(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}
	return signer, nil
}

func defaultKeyPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
}
