package events

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileDLQ appends failed events to a JSON lines file.
type FileDLQ struct {
	Path string

	mu sync.Mutex
}

type dlqEntry struct {
	Event     Event     `json:"event"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	FailedAt  time.Time `json:"failed_at"`
}

// Store appends the failed event.
func (q *FileDLQ) Store(_ context.Context, e Event, attempts int, lastErr string) error {
	if q == nil || q.Path == "" {
		return nil
	}
	line, err := json.Marshal(dlqEntry{Event: e, Attempts: attempts, LastError: lastErr, FailedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(q.Path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(q.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
