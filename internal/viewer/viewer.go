// Package viewer is the read-only detail view of one event: display slots,
// assigned resources, and the two-step delete confirmation.
package viewer

import (
	"context"
	"errors"
	"sync"

	"scheditor/internal/editor"
	"scheditor/internal/model"
	"scheditor/internal/normalize"
)

var (
	ErrDisabled           = errors.New("event is disabled")
	ErrNotOpen            = errors.New("viewer is not open")
	ErrDeleteNotRequested = errors.New("delete was not requested")
)

// DisabledField is the event field that, when truthy, keeps the viewer
// from opening.
const DisabledField = "disabled"

// Options configures a Viewer. Host is required to delete.
type Options struct {
	Host    editor.Host
	Remover editor.Remover

	Title    Content[string]
	Subtitle Content[string]
	Extra    Content[any]

	Resources      []Resource
	ResourceFields ResourceFields
}

// Viewer shows at most one event at a time.
type Viewer struct {
	opts     Options
	pipeline *editor.DeletePipeline

	mu            sync.Mutex
	event         *model.EventRecord
	deleteConfirm bool
}

// New returns a closed viewer.
func New(opts Options) *Viewer {
	return &Viewer{
		opts:     opts,
		pipeline: editor.NewDeletePipeline(opts.Host, opts.Remover),
	}
}

// Open shows ev. Disabled events are refused.
func (v *Viewer) Open(ev model.EventRecord) error {
	if normalize.Truthy(ev.Value(DisabledField)) {
		return ErrDisabled
	}
	c := ev.Clone()

	v.mu.Lock()
	defer v.mu.Unlock()
	v.event = &c
	v.deleteConfirm = false
	return nil
}

// Close hides the viewer and drops a pending delete confirmation.
func (v *Viewer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.event = nil
	v.deleteConfirm = false
}

// Current returns the open event.
func (v *Viewer) Current() (model.EventRecord, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.event == nil {
		return model.EventRecord{}, false
	}
	return v.event.Clone(), true
}

// RequestDelete arms the delete confirmation.
func (v *Viewer) RequestDelete() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.event == nil {
		return ErrNotOpen
	}
	v.deleteConfirm = true
	return nil
}

// CancelDelete disarms the delete confirmation.
func (v *Viewer) CancelDelete() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deleteConfirm = false
}

// DeleteRequested reports whether the confirmation is armed.
func (v *Viewer) DeleteRequested() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deleteConfirm
}

// Deleting reports whether a delete is in flight.
func (v *Viewer) Deleting() bool { return v.pipeline.Busy() }

// ConfirmDelete runs the delete pipeline for the open event. The viewer
// closes itself when the event is removed.
func (v *Viewer) ConfirmDelete(ctx context.Context) (string, error) {
	v.mu.Lock()
	if v.event == nil {
		v.mu.Unlock()
		return "", ErrNotOpen
	}
	if !v.deleteConfirm {
		v.mu.Unlock()
		return "", ErrDeleteNotRequested
	}
	id := v.event.ID
	v.mu.Unlock()

	return v.pipeline.Delete(ctx, id, v)
}

// Edit closes the viewer and returns the seed for an editor session.
func (v *Viewer) Edit() (editor.Seed, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.event == nil {
		return editor.Seed{}, ErrNotOpen
	}
	ev := v.event.Clone()
	v.event = nil
	v.deleteConfirm = false
	return editor.Seed{Event: &ev}, nil
}

// View is the rendered detail of the open event.
type View struct {
	Event         model.EventRecord `json:"event"`
	Title         string            `json:"title"`
	Subtitle      string            `json:"subtitle,omitempty"`
	Extra         any               `json:"extra,omitempty"`
	Resources     string            `json:"resources,omitempty"`
	DeleteConfirm bool              `json:"delete_confirm"`
	Deleting      bool              `json:"deleting"`
}

// Render resolves every slot against the open event.
func (v *Viewer) Render() (View, error) {
	ev, ok := v.Current()
	if !ok {
		return View{}, ErrNotOpen
	}
	args := Args{Event: ev, Close: v.Close}

	out := View{
		Event:         ev,
		Title:         ev.Title,
		Resources:     ResourceText(ev, v.opts.Resources, v.opts.ResourceFields),
		DeleteConfirm: v.DeleteRequested(),
		Deleting:      v.Deleting(),
	}
	if v.opts.Title.IsSet() {
		out.Title = v.opts.Title.Resolve(args)
	}
	if v.opts.Subtitle.IsSet() {
		out.Subtitle = v.opts.Subtitle.Resolve(args)
	}
	if v.opts.Extra.IsSet() {
		out.Extra = v.opts.Extra.Resolve(args)
	}
	return out, nil
}
