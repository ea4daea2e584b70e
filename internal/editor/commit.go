package editor

import (
	"context"
	"time"

	appLog "scheditor/internal/log"
	"scheditor/internal/metrics"
	"scheditor/internal/model"
)

// Phase is where a commit attempt ended up.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseValidating
	// PhaseInvalid: a required field is unmet; the form is now touched.
	PhaseInvalid
	PhaseSubmitting
	// PhaseCommitted: the host has the record and the session is closed.
	PhaseCommitted
	// PhaseRejected: the collaborator (or host) failed; the session is kept.
	PhaseRejected
	// PhaseStale: the session changed while the collaborator was awaited.
	PhaseStale
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseValidating:
		return "validating"
	case PhaseInvalid:
		return "invalid"
	case PhaseSubmitting:
		return "submitting"
	case PhaseCommitted:
		return "committed"
	case PhaseRejected:
		return "rejected"
	case PhaseStale:
		return "stale"
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Outcome describes a finished HandleConfirm call.
type Outcome struct {
	Phase  Phase             `json:"phase"`
	Action model.Action      `json:"action,omitempty"`
	Record model.EventRecord `json:"event"`
	// Invalid lists the unmet fields of a PhaseInvalid outcome.
	Invalid []string `json:"invalid,omitempty"`
}

// HandleConfirm runs the commit pipeline on a snapshot of the current
// state. Validation failures are reported through the Outcome, not as an
// error. A collaborator failure returns a *CollaboratorError and leaves the
// session open and untouched.
func (e *Editor) HandleConfirm(ctx context.Context) (Outcome, error) {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return Outcome{Phase: PhaseIdle}, ErrClosed
	}
	if e.busy {
		e.mu.Unlock()
		return Outcome{Phase: PhaseSubmitting}, ErrBusy
	}

	snap := e.state
	seed := e.seed
	gen := e.gen
	action := seed.action()

	if !snap.Valid() && e.opts.CustomEditor == nil {
		e.touch.MarkForm()
		e.mu.Unlock()
		metrics.ValidationFailures.Inc()
		metrics.Commits.WithLabelValues(string(action), PhaseInvalid.String()).Inc()
		return Outcome{Phase: PhaseInvalid, Action: action, Invalid: snap.Invalid()}, nil
	}

	e.busy = true
	e.loading = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.busy = false
		e.loading = false
		e.mu.Unlock()
	}()

	draft := snap.Record()
	repairRange(&draft, e.seedSpan(seed))

	final, err := e.confirm(ctx, draft, action, seed)
	if err != nil {
		appLog.Error("event confirm failed", err, "action", action, "event_id", draft.ID)
		metrics.Commits.WithLabelValues(string(action), PhaseRejected.String()).Inc()
		return Outcome{Phase: PhaseRejected, Action: action, Record: draft}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		appLog.Warn("discarding stale commit result", "action", action, "event_id", final.ID)
		metrics.Commits.WithLabelValues(string(action), PhaseStale.String()).Inc()
		return Outcome{Phase: PhaseStale, Action: action, Record: final}, nil
	}

	if err := callHost(func() { e.opts.Host.ConfirmEvent(final.Clone(), action) }); err != nil {
		cerr := &CollaboratorError{Op: "host.confirm", Err: err}
		appLog.Error("host rejected committed event", cerr, "action", action, "event_id", final.ID)
		metrics.Commits.WithLabelValues(string(action), PhaseRejected.String()).Inc()
		return Outcome{Phase: PhaseRejected, Action: action, Record: final}, cerr
	}

	e.reset()
	e.close(false)
	metrics.Commits.WithLabelValues(string(action), PhaseCommitted.String()).Inc()
	appLog.Info("event committed", "action", action, "event_id", final.ID)
	return Outcome{Phase: PhaseCommitted, Action: action, Record: final}, nil
}

// confirm produces the final record, through the Confirmer when one is
// installed.
func (e *Editor) confirm(ctx context.Context, draft model.EventRecord, action model.Action, seed Seed) (model.EventRecord, error) {
	if e.opts.Confirmer == nil {
		if action == model.ActionCreate {
			draft.ID = e.opts.IDs.NewID()
		} else {
			draft.ID = seed.Event.ID
		}
		return draft, nil
	}

	started := time.Now()
	final, err := e.opts.Confirmer.Confirm(ctx, draft.Clone(), action)
	metrics.CollaboratorLatency.WithLabelValues("confirm").Observe(time.Since(started).Seconds())
	if err != nil {
		return model.EventRecord{}, &CollaboratorError{Op: "confirm", Err: err}
	}
	return final.Clone(), nil
}

// seedSpan is the duration used for date repair: the quick-create range,
// else the edited record's own span, else the configured default.
func (e *Editor) seedSpan(seed Seed) time.Duration {
	if seed.Range != nil {
		if d := seed.Range.Duration(); d > 0 {
			return d
		}
	}
	if seed.Event != nil {
		r := model.SelectedRange{Start: seed.Event.Start, End: seed.Event.End}
		if d := r.Duration(); d > 0 {
			return d
		}
	}
	return e.opts.DefaultDuration
}

// repairRange moves End to Start+span when End is not after Start.
func repairRange(rec *model.EventRecord, span time.Duration) {
	if rec.Start.Before(rec.End) {
		return
	}
	rec.End = rec.Start.Add(span)
}
