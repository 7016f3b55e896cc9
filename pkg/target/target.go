// Package target turns host/group selectors into an ordered set of host names.
package target

import (
	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/result"
)

// Set is an ordered, duplicate-free, non-empty list of host names.
type Set []string

// Selector names at most one of Host or Group; both empty selects every host.
type Selector struct {
	Host  string `json:"host,omitempty"`
	Group string `json:"group,omitempty"`
}

// Describe renders the selector the way it is reported back to callers.
func (s Selector) Describe() string {
	switch {
	case s.Host != "":
		return s.Host
	case s.Group != "":
		return "group:" + s.Group
	default:
		return "all"
	}
}

// Validate checks the selector without looking at an inventory.
func (s Selector) Validate() error {
	if s.Host != "" && s.Group != "" {
		return result.Errorf(result.KindValidation, "host and group are mutually exclusive selectors")
	}
	return nil
}

// Resolve selects hosts from snap. Empty strings mean the selector is absent.
func Resolve(snap *inventory.Snapshot, host, group string) (Set, error) {
	sel := Selector{Host: host, Group: group}
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	var out Set
	switch {
	case host != "":
		if _, ok := snap.Host(host); !ok {
			return nil, result.Errorf(result.KindNotFound, "host %q not found in inventory", host)
		}
		out = Set{host}
	case group != "":
		g, ok := snap.Group(group)
		if !ok {
			return nil, result.Errorf(result.KindNotFound, "group %q not found in inventory", group)
		}
		seen := make(map[string]struct{}, len(g.Members))
		for _, m := range g.Members {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	default:
		out = Set(snap.HostNames())
	}

	if len(out) == 0 {
		return nil, result.Errorf(result.KindNotFound, "no targets match %s", sel.Describe())
	}
	return out, nil
}

// ResolveSelector is Resolve for a Selector value.
func ResolveSelector(snap *inventory.Snapshot, sel Selector) (Set, error) {
	return Resolve(snap, sel.Host, sel.Group)
}
