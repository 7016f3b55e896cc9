package executor

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"

	"github.com/andrej220/fanout/pkg/result"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"
)

// Classify maps a transport or remote error to a stable result kind.
func Classify(err error) result.ErrorKind {
	if err == nil {
		return ""
	}

	var re *result.Error
	if errors.As(err, &re) {
		return re.Kind
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, os.ErrDeadlineExceeded):
		return result.KindTimeout
	case errors.Is(err, ErrAuth):
		return result.KindAuth
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return result.KindConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return result.KindTimeout
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return result.KindRemoteExecution
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return result.KindRemoteExecution
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return result.KindConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return result.KindConnection
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"):
		return result.KindAuth
	case errors.Is(err, io.EOF),
		strings.Contains(msg, "handshake failed"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no route to host"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "connection reset"):
		return result.KindConnection
	}
	return result.KindRemoteExecution
}

// ToError classifies err and scopes it to host.
func ToError(host string, err error) *result.Error {
	if err == nil {
		return nil
	}
	var re *result.Error
	if errors.As(err, &re) {
		return re.WithHost(host)
	}
	return result.NewError(Classify(err), host, err.Error())
}
