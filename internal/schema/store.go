package schema

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	appLog "scheditor/internal/log"
)

// Store watches a schema file and exposes the current field list.
//
// Editor sessions take a snapshot with Fields() when they open and keep it;
// a reload only affects sessions opened afterwards.
type Store struct {
	path    string
	val     atomic.Value // []Field
	reloads atomic.Int64
}

// NewStore loads the schema from path.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore wraps a fixed field list (no file, no watching).
func NewStaticStore(fields []Field) (*Store, error) {
	if err := Validate(fields); err != nil {
		return nil, err
	}
	s := &Store{}
	s.val.Store(cloneFields(fields))
	return s, nil
}

// Fields returns a copy of the current field list.
func (s *Store) Fields() []Field {
	if v := s.val.Load(); v != nil {
		return cloneFields(v.([]Field))
	}
	return nil
}

// Reloads returns how many successful reloads happened since start.
func (s *Store) Reloads() int64 { return s.reloads.Load() }

func (s *Store) load() error {
	fields, err := Load(s.path)
	if err != nil {
		return err
	}
	s.val.Store(fields)
	return nil
}

// Start watching the schema file for changes. A file that fails to parse
// leaves the previous schema in place.
func (s *Store) Start(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == target && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					if err := s.load(); err != nil {
						appLog.Warn("reload field schema", "err", err, "path", s.path)
					} else {
						s.reloads.Add(1)
						appLog.Info("field schema reloaded", "path", s.path)
					}
				}
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if err != nil {
					appLog.Warn("field schema watch error", "err", err)
				}
			}
		}
	}()
	return nil
}

func cloneFields(in []Field) []Field {
	out := make([]Field, len(in))
	copy(out, in)
	return out
}
