// Package inventory holds the host inventory: the stored document, the
// immutable Snapshot built from it and the Manager that publishes snapshots.
package inventory

import (
	"net"
	"strconv"
	"time"

	"github.com/andrej220/fanout/pkg/result"
)

const (
	DriverSSH    = "ssh"
	DriverTelnet = "telnet"
)

// ConnectionParams describe how to reach a host.
type ConnectionParams struct {
	Hostname string
	Port     int
	Username string
	Password string
	KeyPath  string
	Driver   string
	Timeout  time.Duration
}

type Host struct {
	Name     string
	Platform string
	Conn     ConnectionParams
	Groups   []string
	Data     map[string]string
}

// Address returns host:port, falling back to the driver's well-known port.
func (h *Host) Address() string {
	port := h.Conn.Port
	if port == 0 {
		port = 22
		if h.Conn.Driver == DriverTelnet {
			port = 23
		}
	}
	return net.JoinHostPort(h.Conn.Hostname, strconv.Itoa(port))
}

type Group struct {
	Name     string
	Platform string
	Members  []string
}

type Defaults struct {
	Platform    string
	Concurrency int
	Conn        ConnectionParams
}

// Snapshot is an immutable view of the inventory. It is never modified after
// it has been published by a Manager, so readers need no locking.
type Snapshot struct {
	hosts      map[string]*Host
	groups     map[string]*Group
	hostOrder  []string
	groupOrder []string
	defaults   Defaults
	version    uint64
	loadedAt   time.Time
}

func (s *Snapshot) Host(name string) (*Host, bool) {
	h, ok := s.hosts[name]
	return h, ok
}

func (s *Snapshot) Group(name string) (*Group, bool) {
	g, ok := s.groups[name]
	return g, ok
}

// HostNames returns host names in source order.
func (s *Snapshot) HostNames() []string {
	return append([]string(nil), s.hostOrder...)
}

// GroupNames returns group names in source order.
func (s *Snapshot) GroupNames() []string {
	return append([]string(nil), s.groupOrder...)
}

func (s *Snapshot) Hosts() []*Host {
	out := make([]*Host, 0, len(s.hostOrder))
	for _, n := range s.hostOrder {
		out = append(out, s.hosts[n])
	}
	return out
}

func (s *Snapshot) Groups() []*Group {
	out := make([]*Group, 0, len(s.groupOrder))
	for _, n := range s.groupOrder {
		out = append(out, s.groups[n])
	}
	return out
}

func (s *Snapshot) Len() int { return len(s.hostOrder) }

func (s *Snapshot) Defaults() Defaults { return s.defaults }

// Version is assigned by the Manager when the snapshot is published; 0 means unpublished.
func (s *Snapshot) Version() uint64 { return s.version }

func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Build validates doc and builds a snapshot from it. Every failure is a load_error.
func Build(doc *Document) (*Snapshot, error) {
	if doc == nil {
		return nil, result.Errorf(result.KindLoad, "inventory document is empty")
	}
	if err := doc.Validate(); err != nil {
		return nil, result.Errorf(result.KindLoad, "%v", err)
	}

	defConn, err := toConn(doc.Defaults.ConnDoc)
	if err != nil {
		return nil, result.Errorf(result.KindLoad, "defaults: %v", err)
	}
	if defConn.Driver == "" {
		defConn.Driver = DriverSSH
	}

	s := &Snapshot{
		hosts:  make(map[string]*Host, len(doc.Hosts)),
		groups: make(map[string]*Group, len(doc.Groups)),
		defaults: Defaults{
			Platform:    doc.Defaults.Platform,
			Concurrency: doc.Defaults.Concurrency,
			Conn:        defConn,
		},
		loadedAt: time.Now(),
	}

	groupDocs := make(map[string]*GroupDoc, len(doc.Groups))
	groupConns := make(map[string]ConnectionParams, len(doc.Groups))
	for i := range doc.Groups {
		gd := &doc.Groups[i]
		if _, dup := groupDocs[gd.Name]; dup {
			return nil, result.Errorf(result.KindLoad, "duplicate group %q", gd.Name)
		}
		gc, err := toConn(gd.ConnDoc)
		if err != nil {
			return nil, result.Errorf(result.KindLoad, "group %q: %v", gd.Name, err)
		}
		groupDocs[gd.Name] = gd
		groupConns[gd.Name] = gc
		s.groupOrder = append(s.groupOrder, gd.Name)
	}

	hostDocs := make(map[string]*HostDoc, len(doc.Hosts))
	for i := range doc.Hosts {
		hd := &doc.Hosts[i]
		if _, dup := hostDocs[hd.Name]; dup {
			return nil, result.Errorf(result.KindLoad, "duplicate host %q", hd.Name)
		}
		for _, g := range hd.Groups {
			if _, ok := groupDocs[g]; !ok {
				return nil, result.Errorf(result.KindLoad, "host %q references undefined group %q", hd.Name, g)
			}
		}
		hostDocs[hd.Name] = hd
		s.hostOrder = append(s.hostOrder, hd.Name)
	}

	// membership: explicit members first, then hosts naming the group
	hostGroups := make(map[string][]string, len(doc.Hosts))
	for _, hd := range doc.Hosts {
		hostGroups[hd.Name] = appendDistinct(nil, hd.Groups...)
	}
	for _, gname := range s.groupOrder {
		gd := groupDocs[gname]
		var members []string
		for _, m := range gd.Members {
			if _, ok := hostDocs[m]; !ok {
				return nil, result.Errorf(result.KindLoad, "group %q references undefined host %q", gname, m)
			}
			members = appendDistinct(members, m)
			hostGroups[m] = appendDistinct(hostGroups[m], gname)
		}
		for _, hname := range s.hostOrder {
			for _, g := range hostDocs[hname].Groups {
				if g == gname {
					members = appendDistinct(members, hname)
				}
			}
		}
		s.groups[gname] = &Group{Name: gname, Platform: gd.Platform, Members: members}
	}

	for _, hname := range s.hostOrder {
		hd := hostDocs[hname]
		conn, err := toConn(hd.ConnDoc)
		if err != nil {
			return nil, result.Errorf(result.KindLoad, "host %q: %v", hname, err)
		}
		h := &Host{
			Name:     hname,
			Platform: hd.Platform,
			Conn:     conn,
			Groups:   hostGroups[hname],
			Data:     copyData(hd.Data),
		}
		for _, g := range h.Groups {
			if h.Platform == "" {
				h.Platform = groupDocs[g].Platform
			}
			inheritConn(&h.Conn, groupConns[g])
		}
		if h.Platform == "" {
			h.Platform = s.defaults.Platform
		}
		inheritConn(&h.Conn, defConn)
		if h.Conn.Hostname == "" {
			h.Conn.Hostname = hname
		}
		s.hosts[hname] = h
	}

	return s, nil
}

func toConn(d ConnDoc) (ConnectionParams, error) {
	c := ConnectionParams{
		Hostname: d.Hostname,
		Port:     d.Port,
		Username: d.Username,
		Password: d.Password,
		KeyPath:  d.KeyPath,
		Driver:   d.Driver,
	}
	if d.Timeout != "" {
		t, err := time.ParseDuration(d.Timeout)
		if err != nil {
			return c, err
		}
		c.Timeout = t
	}
	return c, nil
}

// inheritConn fills the empty fields of dst from src. Hostname is never inherited.
func inheritConn(dst *ConnectionParams, src ConnectionParams) {
	if dst.Port == 0 {
		dst.Port = src.Port
	}
	if dst.Username == "" {
		dst.Username = src.Username
	}
	if dst.Password == "" {
		dst.Password = src.Password
	}
	if dst.KeyPath == "" {
		dst.KeyPath = src.KeyPath
	}
	if dst.Driver == "" {
		dst.Driver = src.Driver
	}
	if dst.Timeout == 0 {
		dst.Timeout = src.Timeout
	}
}

func appendDistinct(list []string, items ...string) []string {
	for _, it := range items {
		seen := false
		for _, x := range list {
			if x == it {
				seen = true
				break
			}
		}
		if !seen {
			list = append(list, it)
		}
	}
	return list
}

func copyData(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
