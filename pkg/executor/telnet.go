package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/ziutek/telnet"
)

var (
	reLogin    = regexp.MustCompile(`(?i)(login|user\s*name|user)\s*:\s*$`)
	rePassword = regexp.MustCompile(`(?i)pass(word)?\s*:\s*$`)
	reFail     = regexp.MustCompile(`(?i)(incorrect|failed|denied|bad password|invalid)`)
	// DefaultPrompt matches a line holding only a device prompt such as
	// "R1#", "sw1(config)#", "[admin@mt] >" or "user@host:~$ ".
	DefaultPrompt = regexp.MustCompile(`(?m)^(?:[\w.\-@:/~()\[\]]+ ?[#$>%]|[$#])\s*$`)
)

const DefaultStepTimeout = 10 * time.Second

// TelnetRunner logs into a CLI device over telnet and runs a single command.
type TelnetRunner struct {
	StepTimeout time.Duration
}

func NewTelnetRunner() *TelnetRunner {
	return &TelnetRunner{StepTimeout: DefaultStepTimeout}
}

func (r *TelnetRunner) Run(ctx context.Context, host *inventory.Host, cmd Command) (*Output, error) {
	prompt := DefaultPrompt
	if cmd.Prompt != "" {
		re, err := regexp.Compile(cmd.Prompt)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt pattern: %w", err)
		}
		prompt = re
	}

	dialTimeout := r.step()
	if dl, ok := ctx.Deadline(); ok {
		dialTimeout = time.Until(dl)
		if dialTimeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	conn, err := telnet.DialTimeout("tcp", host.Address(), dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("telnet %s: %w", host.Address(), err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s := &telnetSession{conn: conn, ctx: ctx, step: r.step()}
	if err := s.login(host.Conn.Username, host.Conn.Password, prompt); err != nil {
		return nil, s.wrap(err)
	}
	if err := s.sendLine(cmd.Line); err != nil {
		return nil, s.wrap(err)
	}
	buf, err := s.readUntilMatch(prompt)
	if err != nil {
		return nil, s.wrap(fmt.Errorf("waiting for prompt after %q: %w", cmd.Line, err))
	}
	return &Output{Stdout: cleanTelnetOutput(string(buf), cmd.Line, prompt)}, nil
}

func (r *TelnetRunner) step() time.Duration {
	if r.StepTimeout <= 0 {
		return DefaultStepTimeout
	}
	return r.StepTimeout
}

type telnetSession struct {
	conn *telnet.Conn
	ctx  context.Context
	step time.Duration
}

// login handles the username/password exchange. Devices without
// authentication go straight to the prompt.
func (s *telnetSession) login(username, password string, prompt *regexp.Regexp) error {
	data, err := s.readUntilMatch(reLogin, rePassword, prompt)
	if err != nil {
		return fmt.Errorf("waiting for login prompt: %w", err)
	}
	if !reLogin.Match(data) && !rePassword.Match(data) {
		return nil
	}

	if !rePassword.Match(data) {
		if err := s.sendLine(username); err != nil {
			return err
		}
		if _, err := s.readUntilMatch(rePassword); err != nil {
			return fmt.Errorf("%w: no password prompt after username", ErrAuth)
		}
	}

	if err := s.sendLine(password); err != nil {
		return err
	}
	data, err = s.readUntilMatch(prompt, reFail, reLogin)
	if err != nil {
		return fmt.Errorf("waiting for prompt after login: %w", err)
	}
	if reFail.Match(data) || reLogin.Match(data) {
		return fmt.Errorf("%w: login rejected", ErrAuth)
	}
	return nil
}

// readUntilMatch reads byte by byte until any pattern matches the data read so far.
func (s *telnetSession) readUntilMatch(regexps ...*regexp.Regexp) ([]byte, error) {
	deadline := time.Now().Add(s.step)
	if dl, ok := s.ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = s.conn.SetReadDeadline(deadline)

	var buf []byte
	b := make([]byte, 1)
	for {
		n, err := s.conn.Read(b)
		if n > 0 {
			buf = append(buf, b[0])
			for _, re := range regexps {
				if re.Match(buf) {
					return buf, nil
				}
			}
		}
		if err != nil {
			return buf, err
		}
	}
}

func (s *telnetSession) sendLine(msg string) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.step))
	_, err := s.conn.Write([]byte(msg + "\r\n"))
	return err
}

// wrap reports a cancelled call as the context error rather than the
// closed-connection error the teardown provoked.
func (s *telnetSession) wrap(err error) error {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("telnet read timed out: %w", err)
	}
	return err
}

// cleanTelnetOutput drops the echoed command and the trailing prompt.
func cleanTelnetOutput(raw, command string, prompt *regexp.Regexp) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "")
	lines := strings.Split(raw, "\n")
	if len(lines) > 0 && strings.Contains(lines[0], command) {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 && prompt.MatchString(lines[n-1]) {
		lines = lines[:n-1]
	}
	return strings.Join(lines, "\n")
}
