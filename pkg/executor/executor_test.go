package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/andrej220/fanout/internal/sshtest"
	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/result"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func testDialer(t *testing.T, retries uint64, threshold uint32) *Dialer {
	t.Helper()
	d, err := NewDialer(Options{
		DialTimeout: 2 * time.Second,
		Resilience:  DefaultResilienceConfig(retries, threshold),
	})
	require.NoError(t, err)
	return d
}

func hostFor(name, addr string, port int, user, password string) *inventory.Host {
	return &inventory.Host{
		Name: name,
		Conn: inventory.ConnectionParams{
			Hostname: addr,
			Port:     port,
			Username: user,
			Password: password,
			KeyPath:  "",
			Driver:   inventory.DriverSSH,
		},
	}
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want result.ErrorKind
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), result.KindTimeout},
		{"cancelled", context.Canceled, result.KindTimeout},
		{"auth sentinel", fmt.Errorf("%w: login rejected", ErrAuth), result.KindAuth},
		{"ssh auth text", errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]"), result.KindAuth},
		{"breaker open", gobreaker.ErrOpenState, result.KindConnection},
		{"breaker half open", gobreaker.ErrTooManyRequests, result.KindConnection},
		{"op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, result.KindConnection},
		{"eof", io.EOF, result.KindConnection},
		{"already classified", result.Errorf(result.KindValidation, "bad"), result.KindValidation},
		{"exit missing", &ssh.ExitMissingError{}, result.KindRemoteExecution},
		{"anything else", errors.New("boom"), result.KindRemoteExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestToError(t *testing.T) {
	assert.Nil(t, ToError("R1", nil))

	e := ToError("R1", context.DeadlineExceeded)
	assert.Equal(t, result.KindTimeout, e.Kind)
	assert.Equal(t, "R1", e.Host)

	pre := result.Errorf(result.KindAuth, "nope")
	scoped := ToError("R2", pre)
	assert.Equal(t, "R2", scoped.Host)
	assert.Empty(t, pre.Host, "original left untouched")
}

func TestSSHRunner(t *testing.T) {
	srv := sshtest.Start(t, "admin", "secret", func(cmd string) sshtest.Reply {
		switch cmd {
		case "uptime":
			return sshtest.Reply{Stdout: "up 3 days\n"}
		default:
			return sshtest.Reply{Stderr: "command not found\n", Status: 127}
		}
	})
	runner := NewSSHRunner(testDialer(t, 0, 5))
	host := hostFor("srv1", srv.Host, srv.Port, "admin", "secret")

	out, err := runner.Run(context.Background(), host, Command{Line: "uptime"})
	require.NoError(t, err)
	assert.Equal(t, "up 3 days\n", out.Stdout)
	assert.Equal(t, 0, out.ExitStatus)

	out, err = runner.Run(context.Background(), host, Command{Line: "nope"})
	require.NoError(t, err)
	assert.Equal(t, 127, out.ExitStatus)
	assert.Equal(t, "command not found\n", out.Stderr)

	assert.Equal(t, []string{"uptime", "nope"}, srv.Commands())
}

func TestSSHRunnerBadPassword(t *testing.T) {
	srv := sshtest.Start(t, "admin", "secret", func(string) sshtest.Reply { return sshtest.Reply{} })
	d := testDialer(t, 3, 5)
	host := hostFor("srv1", srv.Host, srv.Port, "admin", "wrong")

	_, err := NewSSHRunner(d).Run(context.Background(), host, Command{Line: "uptime"})
	require.Error(t, err)
	assert.Equal(t, result.KindAuth, Classify(err))
	assert.Equal(t, gobreaker.StateClosed, d.BreakerState("srv1"), "auth failures do not trip the breaker")
}

func TestSSHRunnerConnectionRefusedTripsBreaker(t *testing.T) {
	d := testDialer(t, 0, 2)
	host := hostFor("gone", "127.0.0.1", closedPort(t), "admin", "secret")
	runner := NewSSHRunner(d)

	for i := 0; i < 2; i++ {
		_, err := runner.Run(context.Background(), host, Command{Line: "uptime"})
		require.Error(t, err)
		assert.Equal(t, result.KindConnection, Classify(err))
	}
	assert.Equal(t, gobreaker.StateOpen, d.BreakerState("gone"))

	_, err := runner.Run(context.Background(), host, Command{Line: "uptime"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestSSHRunnerHonoursContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close() // never speaks SSH
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	host := hostFor("mute", "127.0.0.1", ln.Addr().(*net.TCPAddr).Port, "admin", "secret")
	start := time.Now()
	_, err = NewSSHRunner(testDialer(t, 0, 5)).Run(ctx, host, Command{Line: "uptime"})
	require.Error(t, err)
	assert.Equal(t, result.KindTimeout, Classify(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

// fakeTelnet serves one login session: it expects user/pass and answers commands.
func fakeTelnet(t *testing.T, user, pass string, answers map[string]string) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				readLine := func() string {
					line, _ := r.ReadString('\n')
					return strings.TrimRight(line, "\r\n")
				}
				io.WriteString(conn, "\r\nUser Access Verification\r\n\r\nUsername: ")
				gotUser := readLine()
				io.WriteString(conn, "Password: ")
				gotPass := readLine()
				if gotUser != user || gotPass != pass {
					io.WriteString(conn, "\r\n% Login invalid\r\n\r\nUsername: ")
					return
				}
				io.WriteString(conn, "\r\nR1#")
				for {
					cmd := readLine()
					if cmd == "" {
						return
					}
					io.WriteString(conn, cmd+"\r\n"+answers[cmd]+"\r\nR1#")
				}
			}(conn)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func telnetHost(port int, user, pass string) *inventory.Host {
	h := hostFor("R1", "127.0.0.1", port, user, pass)
	h.Conn.Driver = inventory.DriverTelnet
	return h
}

func TestTelnetRunner(t *testing.T) {
	port := fakeTelnet(t, "admin", "secret", map[string]string{
		"show clock": "*10:00:00.000 UTC Mon Mar 1 2027",
	})
	r := &TelnetRunner{StepTimeout: 2 * time.Second}

	out, err := r.Run(context.Background(), telnetHost(port, "admin", "secret"), Command{Line: "show clock"})
	require.NoError(t, err)
	assert.Equal(t, "*10:00:00.000 UTC Mon Mar 1 2027", out.Stdout)
}

func TestTelnetRunnerLoginRejected(t *testing.T) {
	port := fakeTelnet(t, "admin", "secret", nil)
	r := &TelnetRunner{StepTimeout: 2 * time.Second}

	_, err := r.Run(context.Background(), telnetHost(port, "admin", "bad"), Command{Line: "show clock"})
	require.Error(t, err)
	assert.Equal(t, result.KindAuth, Classify(err))
}

func TestTelnetRunnerBadPrompt(t *testing.T) {
	r := NewTelnetRunner()
	_, err := r.Run(context.Background(), telnetHost(23, "a", "b"), Command{Line: "x", Prompt: "(["})
	assert.ErrorContains(t, err, "invalid prompt pattern")
}

func TestDriverRunnerPicksTelnet(t *testing.T) {
	port := fakeTelnet(t, "admin", "secret", map[string]string{"show ver": "IOS 15"})
	r := &DriverRunner{SSH: nil, Telnet: &TelnetRunner{StepTimeout: 2 * time.Second}}

	out, err := r.Run(context.Background(), telnetHost(port, "admin", "secret"), Command{Line: "show ver"})
	require.NoError(t, err)
	assert.Equal(t, "IOS 15", out.Stdout)
}

func TestCleanTelnetOutput(t *testing.T) {
	raw := "show ip int brief\r\nGi0/1 up\r\nGi0/2 down\r\nR1#"
	assert.Equal(t, "Gi0/1 up\nGi0/2 down", cleanTelnetOutput(raw, "show ip int brief", DefaultPrompt))
}

func TestDefaultPrompt(t *testing.T) {
	for _, p := range []string{"R1#", "sw1(config)#", "[admin@mt] >", "user@host:~$ ", "$ "} {
		assert.True(t, DefaultPrompt.MatchString(p), p)
	}
	for _, p := range []string{"costs $5 each", "Username: ", "% Login invalid", "%"} {
		assert.False(t, DefaultPrompt.MatchString(p), p)
	}
}

func TestAddressUsesPort(t *testing.T) {
	h := hostFor("x", "10.0.0.1", 2222, "", "")
	assert.Equal(t, "10.0.0.1:"+strconv.Itoa(2222), h.Address())
}
