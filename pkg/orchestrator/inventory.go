package orchestrator

import (
	"context"
	"time"

	"github.com/andrej220/fanout/pkg/backend"
	"github.com/andrej220/fanout/pkg/lg"
	"github.com/andrej220/fanout/pkg/result"
)

type HostView struct {
	Name     string   `json:"name"`
	Hostname string   `json:"hostname"`
	Port     int      `json:"port,omitempty"`
	Platform string   `json:"platform,omitempty"`
	Driver   string   `json:"driver"`
	Groups   []string `json:"groups,omitempty"`
}

type GroupView struct {
	Name     string   `json:"name"`
	Platform string   `json:"platform,omitempty"`
	Members  []string `json:"members"`
}

// TargetList is the inventory as reported to callers. Credentials are never included.
type TargetList struct {
	Version     uint64      `json:"version"`
	LoadedAt    time.Time   `json:"loaded_at"`
	Hosts       []HostView  `json:"hosts"`
	Groups      []GroupView `json:"groups"`
	TotalHosts  int         `json:"total_hosts"`
	TotalGroups int         `json:"total_groups"`
}

type ReloadReport struct {
	Version  uint64    `json:"version"`
	Hosts    int       `json:"hosts"`
	Groups   int       `json:"groups"`
	LoadedAt time.Time `json:"loaded_at"`
}

// ListTargets describes every host and group of the current snapshot, in inventory order.
func (o *Orchestrator) ListTargets(ctx context.Context) (*TargetList, error) {
	snap, err := o.inv.Snapshot(ctx)
	if err != nil {
		return nil, result.AsError(err, result.KindLoad)
	}
	out := &TargetList{
		Version:     snap.Version(),
		LoadedAt:    snap.LoadedAt().UTC(),
		Hosts:       make([]HostView, 0, snap.Len()),
		TotalHosts:  snap.Len(),
		TotalGroups: len(snap.GroupNames()),
	}
	for _, h := range snap.Hosts() {
		out.Hosts = append(out.Hosts, HostView{
			Name:     h.Name,
			Hostname: h.Conn.Hostname,
			Port:     h.Conn.Port,
			Platform: h.Platform,
			Driver:   h.Conn.Driver,
			Groups:   append([]string(nil), h.Groups...),
		})
	}
	out.Groups = make([]GroupView, 0, out.TotalGroups)
	for _, g := range snap.Groups() {
		out.Groups = append(out.Groups, GroupView{
			Name:     g.Name,
			Platform: g.Platform,
			Members:  append([]string{}, g.Members...),
		})
	}
	return out, nil
}

// ReloadInventory re-reads the inventory source. On failure the previous
// snapshot stays in use and the load_error is returned.
func (o *Orchestrator) ReloadInventory(ctx context.Context) (*ReloadReport, error) {
	snap, err := o.inv.Reload(ctx)
	if err != nil {
		lg.FromContext(ctx).Warn("Inventory reload failed", lg.Err(err))
		return nil, result.AsError(err, result.KindLoad)
	}
	lg.FromContext(ctx).Info("Inventory reloaded", lg.Uint64("version", snap.Version()), lg.Int("hosts", snap.Len()))
	return &ReloadReport{
		Version:  snap.Version(),
		Hosts:    snap.Len(),
		Groups:   len(snap.GroupNames()),
		LoadedAt: snap.LoadedAt().UTC(),
	}, nil
}

// Getters lists the available getters with the platforms that implement them.
func (o *Orchestrator) Getters() []backend.Capability {
	return capabilities(o.adapters.Getter)
}

// Commands lists common CLI commands. Any other command is accepted too.
func (o *Orchestrator) Commands() []backend.Capability {
	return capabilities(o.adapters.CLI)
}

// Capabilities lists the advertised operations of every enabled backend.
// Shell is absent: it runs arbitrary commands and advertises none.
func (o *Orchestrator) Capabilities() map[backend.Kind][]backend.Capability {
	out := make(map[backend.Kind][]backend.Capability)
	for kind, a := range map[backend.Kind]any{
		backend.KindGetter:   o.adapters.Getter,
		backend.KindCLI:      o.adapters.CLI,
		backend.KindTransfer: o.adapters.Transfer,
	} {
		if caps := capabilities(a); caps != nil {
			out[kind] = caps
		}
	}
	return out
}

func capabilities(a any) []backend.Capability {
	if d, ok := a.(backend.Describer); ok {
		return d.Capabilities()
	}
	return nil
}
