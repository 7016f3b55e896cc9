// Package backend defines the adapter contract every execution backend implements.
package backend

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/andrej220/fanout/pkg/executor"
	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/result"
)

// Kind names an adapter.
type Kind string

const (
	KindGetter   Kind = "getter"
	KindCLI      Kind = "cli"
	KindShell    Kind = "shell"
	KindTransfer Kind = "transfer"
)

// Task is one logical operation, applied unchanged to every target host.
type Task struct {
	Kind      Kind
	Operation string
	Args      map[string]string
	Timeout   time.Duration // per host; zero defers to the inventory
}

func (t Task) Arg(name string) string {
	return t.Args[name]
}

// BoolArg parses a boolean argument; absent means false.
func (t Task) BoolArg(name string) (bool, error) {
	v, ok := t.Args[name]
	if !ok || v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, result.Errorf(result.KindValidation, "argument %q must be a boolean, got %q", name, v)
	}
	return b, nil
}

// WithArg returns a copy of t with name set.
func (t Task) WithArg(name, value string) Task {
	args := make(map[string]string, len(t.Args)+1)
	for k, v := range t.Args {
		args[k] = v
	}
	args[name] = value
	t.Args = args
	return t
}

// Validator is the pre-dispatch half of an adapter. Validate returns only
// validation_error failures and never touches a host.
type Validator interface {
	Kind() Kind
	Supports(operation string) bool
	Validate(task Task) error
}

// Adapter executes a task against a single host. ExecuteOne never panics
// out and never returns raw errors: every failure is a classified Result.
type Adapter[T any] interface {
	Validator
	ExecuteOne(ctx context.Context, host *inventory.Host, task Task) result.Result[T]
}

// Capability describes one operation an adapter offers.
type Capability struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Platforms   []string `json:"platforms,omitempty"`
}

// Describer is implemented by adapters with a closed set of operations.
type Describer interface {
	Capabilities() []Capability
}

// RequireArgs fails with a validation error naming the first missing argument.
func RequireArgs(task Task, names ...string) error {
	for _, n := range names {
		if strings.TrimSpace(task.Args[n]) == "" {
			return result.Errorf(result.KindValidation, "missing required argument %q", n)
		}
	}
	return nil
}

// Fail turns err into a classified failure for host.
func Fail[T any](host string, err error) result.Result[T] {
	return result.Failure[T](executor.ToError(host, err))
}

// Remote reports a remote_execution_error for host.
func Remote[T any](host, format string, args ...any) result.Result[T] {
	return result.Failure[T](result.Errorf(result.KindRemoteExecution, format, args...).WithHost(host))
}

// Tail returns at most the last n bytes of s, trimmed.
func Tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
