// Package getter implements structured data retrieval from network devices
// through a closed set of named getters.
package getter

import (
	"context"
	"sort"
	"strings"

	"github.com/andrej220/fanout/pkg/backend"
	"github.com/andrej220/fanout/pkg/executor"
	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/processor"
	"github.com/andrej220/fanout/pkg/result"
)

// Result maps the getter name to its parsed data, e.g. {"facts": {...}}.
type Result = map[string]any

var _ backend.Adapter[Result] = (*Adapter)(nil)

type Adapter struct {
	runner  executor.Runner
	chain   *processor.ProcessorChain
	getters map[string]*Getter
	order   []string
}

func New(runner executor.Runner) *Adapter {
	a := &Adapter{
		runner:  runner,
		chain:   processor.NewProcessorChain(),
		getters: make(map[string]*Getter, len(catalog)),
	}
	for i := range catalog {
		g := &catalog[i]
		a.getters[g.Name] = g
		a.order = append(a.order, g.Name)
	}
	return a
}

func (a *Adapter) Kind() backend.Kind { return backend.KindGetter }

func (a *Adapter) Supports(operation string) bool {
	_, ok := a.getters[operation]
	return ok
}

func (a *Adapter) Validate(task backend.Task) error {
	if task.Operation == "" {
		return result.Errorf(result.KindValidation, "getter name is required")
	}
	if !a.Supports(task.Operation) {
		return result.Errorf(result.KindValidation, "unknown getter %q, available: %s",
			task.Operation, strings.Join(a.order, ", "))
	}
	return nil
}

// Capabilities lists every getter with the platforms that implement it.
func (a *Adapter) Capabilities() []backend.Capability {
	out := make([]backend.Capability, 0, len(a.order))
	for _, name := range a.order {
		g := a.getters[name]
		platforms := make([]string, 0, len(g.Recipes))
		for p := range g.Recipes {
			platforms = append(platforms, p)
		}
		sort.Strings(platforms)
		out = append(out, backend.Capability{Name: g.Name, Description: g.Description, Platforms: platforms})
	}
	return out
}

func (a *Adapter) ExecuteOne(ctx context.Context, host *inventory.Host, task backend.Task) result.Result[Result] {
	g, ok := a.getters[task.Operation]
	if !ok {
		return result.Failure[Result](result.Errorf(result.KindValidation, "unknown getter %q", task.Operation).WithHost(host.Name))
	}
	recipe, ok := g.Recipes[host.Platform]
	if !ok {
		return backend.Remote[Result](host.Name, "getter %q not available on platform %q", g.Name, host.Platform)
	}

	out, err := a.runner.Run(ctx, host, executor.Command{Line: recipe.Command, Prompt: task.Arg("expect_prompt")})
	if err != nil {
		return backend.Fail[Result](host.Name, err)
	}
	if out.ExitStatus != 0 {
		return backend.Remote[Result](host.Name, "%q exited with status %d: %s",
			recipe.Command, out.ExitStatus, backend.Tail(out.Stderr, 256))
	}

	parsed, err := a.chain.Parse(processor.SplitOutput(out.Stdout), recipe.Shape, recipe.Processors...)
	if err != nil {
		return backend.Remote[Result](host.Name, "parse %s output: %v", g.Name, err)
	}
	return result.Success(Result{g.Name: parsed})
}
