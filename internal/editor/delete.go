package editor

import (
	"context"
	"sync"
	"time"

	appLog "scheditor/internal/log"
	"scheditor/internal/metrics"
)

// DeletePipeline removes events from the host, through the Remover when
// one is installed. It is owned by whatever shows the event (a viewer).
type DeletePipeline struct {
	host    Host
	remover Remover

	mu   sync.Mutex
	busy bool
}

// NewDeletePipeline returns a pipeline for host. remover may be nil.
func NewDeletePipeline(host Host, remover Remover) *DeletePipeline {
	return &DeletePipeline{host: host, remover: remover}
}

// Busy reports whether a delete is in flight.
func (p *DeletePipeline) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// Delete removes id. With a Remover the id it returns is removed instead,
// and "" means nothing is removed. On removal view (if any) is closed.
// The returned string is the id that was removed locally.
func (p *DeletePipeline) Delete(ctx context.Context, id string, view DetailView) (string, error) {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return "", ErrBusy
	}
	p.busy = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
	}()

	target := id
	if p.remover != nil {
		started := time.Now()
		got, err := p.remover.Remove(ctx, id)
		metrics.CollaboratorLatency.WithLabelValues("delete").Observe(time.Since(started).Seconds())
		if err != nil {
			cerr := &CollaboratorError{Op: "delete", Err: err}
			appLog.Error("event delete failed", cerr, "event_id", id)
			metrics.Deletes.WithLabelValues("rejected").Inc()
			return "", cerr
		}
		target = got
	}
	if target == "" {
		appLog.Info("delete confirmed without local removal", "event_id", id)
		metrics.Deletes.WithLabelValues("kept").Inc()
		return "", nil
	}

	var found bool
	if err := callHost(func() { found = p.host.RemoveEvent(target) }); err != nil {
		cerr := &CollaboratorError{Op: "host.remove", Err: err}
		appLog.Error("host failed to remove event", cerr, "event_id", target)
		metrics.Deletes.WithLabelValues("rejected").Inc()
		return "", cerr
	}
	if !found {
		appLog.Debug("removed event was not in the collection", "event_id", target)
	}
	if view != nil {
		view.Close()
	}
	metrics.Deletes.WithLabelValues("removed").Inc()
	appLog.Info("event deleted", "event_id", target)
	return target, nil
}
