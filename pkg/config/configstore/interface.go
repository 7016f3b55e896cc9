package configstore

import "context"

type ConfigStore interface {
	Load(ctx context.Context, out any) error
	Save(ctx context.Context, data any) error
}

// Watcher is implemented by stores that can report changes of the stored document.
// onChange is called from a background goroutine until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}
