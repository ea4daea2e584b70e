package web

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"scheditor/internal/editor"
	appLog "scheditor/internal/log"
	"scheditor/internal/metrics"
)

type session struct {
	id       string
	ed       *editor.Editor
	lastUsed time.Time
}

// sessions holds the open editor sessions of the API by id. Sessions idle
// for longer than ttl are dropped by run.
type sessions struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]*session
	now func() time.Time
}

func newSessions(ttl time.Duration) *sessions {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &sessions{ttl: ttl, m: map[string]*session{}, now: time.Now}
}

func (s *sessions) add(ed *editor.Editor) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.m[id] = &session{id: id, ed: ed, lastUsed: s.now()}
	n := len(s.m)
	s.mu.Unlock()
	metrics.Sessions.Set(float64(n))
	return id
}

// get returns the session and refreshes its idle timer.
func (s *sessions) get(id string) (*editor.Editor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.m[id]
	if !ok {
		return nil, false
	}
	ss.lastUsed = s.now()
	return ss.ed, true
}

func (s *sessions) remove(id string) {
	s.mu.Lock()
	delete(s.m, id)
	n := len(s.m)
	s.mu.Unlock()
	metrics.Sessions.Set(float64(n))
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// expire drops idle sessions that have no commit in flight.
func (s *sessions) expire() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var dropped []*editor.Editor
	for id, ss := range s.m {
		if ss.lastUsed.Before(cutoff) && !ss.ed.Busy() {
			dropped = append(dropped, ss.ed)
			delete(s.m, id)
		}
	}
	n := len(s.m)
	s.mu.Unlock()

	for _, ed := range dropped {
		ed.HandleClose(true)
	}
	metrics.Sessions.Set(float64(n))
	return len(dropped)
}

func (s *sessions) run(ctx context.Context) {
	t := time.NewTicker(s.ttl / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.expire(); n > 0 {
				appLog.Debug("expired idle editor sessions", "count", n)
			}
		}
	}
}
