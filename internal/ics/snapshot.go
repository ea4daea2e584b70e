package ics

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/robfig/cron/v3"

	"scheditor/internal/config"
	appLog "scheditor/internal/log"
	"scheditor/internal/model"
)

const snapshotTempPattern = ".scheditor-events-*.tmp"

// LoadFile decodes the ICS file at path. A missing file is an empty
// collection.
func LoadFile(path string) ([]model.EventRecord, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	return Decode(body)
}

// Snapshotter writes the event collection to an ICS file, atomically, on
// demand or on a cron schedule.
type Snapshotter struct {
	Path    string
	Events  func() []model.EventRecord
	Options EncodeOptions

	mu sync.Mutex
}

// Snapshot writes the current events once.
func (s *Snapshotter) Snapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.Events()
	data := Encode(events, s.Options)
	if err := config.WriteFileAtomic(s.Path, data, snapshotTempPattern); err != nil {
		return err
	}
	appLog.Debug("ics snapshot written", "path", s.Path, "events", len(events))
	return nil
}

// Schedule runs fn on the cron expression expr (standard 5-field) until ctx is done.
// The cron scheduler is stopped, and running jobs awaited, on return.
func Schedule(ctx context.Context, expr, name string, fn func() error) error {
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		if err := fn(); err != nil {
			appLog.Error("scheduled job failed", err, "job", name)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	appLog.Info("scheduled job registered", "job", name, "expr", expr)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Run snapshots on the cron expression expr until ctx is done, then writes a final snapshot.
func (s *Snapshotter) Run(ctx context.Context, expr string) error {
	if expr == "" {
		<-ctx.Done()
		return s.Snapshot()
	}
	if err := Schedule(ctx, expr, "snapshot", s.Snapshot); err != nil {
		return err
	}
	return s.Snapshot()
}
