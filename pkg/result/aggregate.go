package result

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Outcome classifies an Aggregate as a whole. It never replaces per-entry inspection.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

type Entry[T any] struct {
	Host   string
	Result Result[T]
}

// Summary counts entries per outcome and per error kind.
type Summary struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	ByKind    map[ErrorKind]int `json:"by_kind,omitempty"`
}

// Aggregate is the ordered host -> Result mapping of one dispatch.
type Aggregate[T any] struct {
	entries []Entry[T]
	index   map[string]int
}

// NewAggregate takes ownership of entries. Host names must be distinct.
func NewAggregate[T any](entries []Entry[T]) *Aggregate[T] {
	idx := make(map[string]int, len(entries))
	for i, e := range entries {
		idx[e.Host] = i
	}
	return &Aggregate[T]{entries: entries, index: idx}
}

func (a *Aggregate[T]) Len() int { return len(a.entries) }

// Entries returns a copy of the entries in target order.
func (a *Aggregate[T]) Entries() []Entry[T] {
	out := make([]Entry[T], len(a.entries))
	copy(out, a.entries)
	return out
}

func (a *Aggregate[T]) Hosts() []string {
	hosts := make([]string, len(a.entries))
	for i, e := range a.entries {
		hosts[i] = e.Host
	}
	return hosts
}

func (a *Aggregate[T]) Get(host string) (Result[T], bool) {
	i, ok := a.index[host]
	if !ok {
		return Result[T]{}, false
	}
	return a.entries[i].Result, true
}

func (a *Aggregate[T]) Summary() Summary {
	s := Summary{Total: len(a.entries)}
	for _, e := range a.entries {
		if e.Result.Ok() {
			s.Succeeded++
			continue
		}
		s.Failed++
		if s.ByKind == nil {
			s.ByKind = make(map[ErrorKind]int)
		}
		s.ByKind[e.Result.Err().Kind]++
	}
	return s
}

func (a *Aggregate[T]) Outcome() Outcome {
	s := a.Summary()
	switch {
	case s.Failed == 0:
		return OutcomeSuccess
	case s.Succeeded == 0:
		return OutcomeFailure
	default:
		return OutcomePartial
	}
}

type errorBody struct {
	Error *Error `json:"error"`
}

// MarshalJSON writes a JSON object keyed by host in target order. Failed hosts
// are written as {"error": {"kind": ..., "message": ...}}.
func (a *Aggregate[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range a.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Host)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var val []byte
		if e.Result.Ok() {
			val, err = json.Marshal(e.Result.value)
		} else {
			val, err = json.Marshal(errorBody{Error: e.Result.Err()})
		}
		if err != nil {
			return nil, fmt.Errorf("marshal result for %s: %w", e.Host, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Erased converts the aggregate into an Aggregate[any] keeping order.
func (a *Aggregate[T]) Erased() *Aggregate[any] {
	out := make([]Entry[any], len(a.entries))
	for i, e := range a.entries {
		out[i] = Entry[any]{Host: e.Host, Result: Erase(e.Result)}
	}
	return NewAggregate(out)
}
