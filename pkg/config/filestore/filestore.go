// Package filestore keeps a YAML document in a local file.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andrej220/fanout/pkg/config/configstore"
	"github.com/andrej220/fanout/pkg/lg"
	"github.com/andrej220/fanout/pkg/persistence"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

var (
	_ configstore.ConfigStore = (*FileStore)(nil)
	_ configstore.Watcher     = (*FileStore)(nil)
)

// editors write in bursts; collapse events closer than this
const debounce = 200 * time.Millisecond

type FileStore struct {
	Path string
}

func New(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Load(_ context.Context, out any) error {
	if out == nil {
		return fmt.Errorf("load %s: output must not be nil", f.Path)
	}
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("load %s: %w", f.Path, err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("load %s: file is empty", f.Path)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("load %s: failed to parse YAML: %w", f.Path, err)
	}
	return nil
}

// Save replaces the file atomically. Inventories carry credentials, so the
// file is only readable by its owner.
func (f *FileStore) Save(_ context.Context, in any) error {
	if in == nil {
		return fmt.Errorf("save %s: input must not be nil", f.Path)
	}
	raw, err := yaml.Marshal(in)
	if err != nil {
		return fmt.Errorf("save %s: failed to marshal YAML: %w", f.Path, err)
	}
	w := persistence.FileWriter{Overwrite: true, Perm: 0o600}
	if err := w.Write(f.Path, raw); err != nil {
		return fmt.Errorf("save %s: %w", f.Path, err)
	}
	return nil
}

// Watch watches the parent directory so that atomic renames done by editors
// and by Save are seen as changes of Path.
func (f *FileStore) Watch(ctx context.Context, onChange func()) error {
	if onChange == nil {
		return fmt.Errorf("onChange callback cannot be nil")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	target := filepath.Clean(f.Path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", f.Path, err)
	}

	logger := lg.FromContext(ctx).With(lg.String("file", target))
	go func() {
		defer watcher.Close()
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !modifies(event) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, onChange)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Watcher error", lg.Err(err))
			}
		}
	}()
	return nil
}

func modifies(e fsnotify.Event) bool {
	return e.Has(fsnotify.Write) || e.Has(fsnotify.Create) || e.Has(fsnotify.Rename)
}
