package inventory

import (
	"context"

	"github.com/andrej220/fanout/pkg/config/configstore"
	"github.com/andrej220/fanout/pkg/result"
)

// Source produces a freshly built snapshot on every Load.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Snapshot, error)

func (f SourceFunc) Load(ctx context.Context) (*Snapshot, error) { return f(ctx) }

// StoreSource reads the inventory document from a config store (YAML file or Mongo).
type StoreSource struct {
	Store configstore.ConfigStore
}

func NewStoreSource(store configstore.ConfigStore) *StoreSource {
	return &StoreSource{Store: store}
}

func (s *StoreSource) Load(ctx context.Context) (*Snapshot, error) {
	var doc Document
	if err := s.Store.Load(ctx, &doc); err != nil {
		return nil, result.Errorf(result.KindLoad, "%v", err)
	}
	return Build(&doc)
}
