// Package persistence writes dispatch payloads to local files,
// with support for different serialization formats.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andrej220/fanout/pkg/lg"
	"github.com/andrej220/fanout/pkg/result"
)

const (
	Indent = "    " // default JSON indentation (4 spaces)
	Prefix = ""
)

type Serializer interface {
	Marshal(data any) ([]byte, error)
}

type Writer interface {
	Write(filename string, data []byte) error
}

type JSONSerializer struct {
	Prefix, Indent string
}

func (s JSONSerializer) Marshal(data any) ([]byte, error) {
	return json.MarshalIndent(data, s.Prefix, s.Indent)
}

// FileWriter writes through a temporary file in the target directory and
// renames it into place, so readers never see a half-written payload.
type FileWriter struct {
	Overwrite bool
	Perm      os.FileMode
}

func (w FileWriter) Write(filename string, data []byte) error {
	if filename == "" {
		return os.ErrInvalid
	}
	if _, err := os.Stat(filename); !os.IsNotExist(err) && !w.Overwrite {
		return os.ErrExist
	}
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	perm := w.Perm
	if perm == 0 {
		perm = 0o644
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filename)
}

// WriteJSONToFile persists data as JSON using the provided Serializer and Writer.
func WriteJSONToFile(data any, filename string, serializer Serializer, writer Writer) error {
	if filename == "" {
		return fmt.Errorf("invalid filename: %w", os.ErrInvalid)
	}

	bytes, err := serializer.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := writer.Write(filename, bytes); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return nil
}

// WriteJSON persists data as JSON with default settings (overwrite enabled, 4-space indent).
func WriteJSON(data any, filename string) error {
	serializer := JSONSerializer{Prefix: Prefix, Indent: Indent}
	writer := FileWriter{Overwrite: true}
	return WriteJSONToFile(data, filename, serializer, writer)
}

// DirSink stores every payload as <Dir>/<execution id>.json.
type DirSink struct {
	Dir        string
	Serializer Serializer
	Writer     Writer
}

func NewDirSink(dir string) *DirSink {
	return &DirSink{
		Dir:        dir,
		Serializer: JSONSerializer{Prefix: Prefix, Indent: Indent},
		Writer:     FileWriter{Overwrite: true},
	}
}

// Path returns the file a payload with the given id is written to.
func (s *DirSink) Path(p *result.Payload) string {
	return filepath.Join(s.Dir, p.ID.String()+".json")
}

func (s *DirSink) Store(ctx context.Context, p *result.Payload) error {
	if p == nil {
		return fmt.Errorf("nil payload: %w", os.ErrInvalid)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	name := s.Path(p)
	if err := WriteJSONToFile(p, name, s.Serializer, s.Writer); err != nil {
		return err
	}
	lg.FromContext(ctx).Debug("Payload written", lg.String("file", name), lg.String("id", p.ID.String()))
	return nil
}
