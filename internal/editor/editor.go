// Package editor holds the editing session of one event: the ordered field
// state, touch tracking, and the commit and delete pipelines.
package editor

import (
	"fmt"
	"sync"
	"time"

	appLog "scheditor/internal/log"
	"scheditor/internal/model"
	"scheditor/internal/normalize"
	"scheditor/internal/schema"
)

// DefaultDuration is used to repair an inverted start/end when the session
// has no seeding range.
const DefaultDuration = 30 * time.Minute

// Options wires an Editor to its schema and collaborators. Only Fields and
// Host are required.
type Options struct {
	Fields []schema.Field
	Host   Host

	// Confirmer, when set, is awaited before the host is updated.
	Confirmer Confirmer
	// IDs names new records when there is no Confirmer. Defaults to UUIDs.
	IDs IDGenerator
	// CustomEditor replaces the built-in form and skips local validation.
	CustomEditor CustomEditor
	Clock        Clock

	DefaultDuration time.Duration
}

// Editor is one event editing session. All methods are safe for concurrent
// use; collaborators are awaited without holding the editor lock.
type Editor struct {
	mu sync.Mutex

	opts   Options
	fields []schema.Field

	open    bool
	seed    Seed
	state   State
	touch   Tracker
	loading bool
	busy    bool

	// gen changes on every open, close and reset. A pipeline completion
	// from an older generation is discarded.
	gen uint64
}

// New returns a closed editor whose state is the unseeded initial state.
func New(opts Options) *Editor {
	if opts.IDs == nil {
		opts.IDs = UUIDGenerator{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = DefaultDuration
	}
	fields := make([]schema.Field, 0, len(opts.Fields))
	for _, f := range opts.Fields {
		if model.IsBuiltin(f.Name) {
			appLog.Warn("custom field shadows a built-in field; ignored", "field", f.Name)
			continue
		}
		fields = append(fields, f)
	}

	e := &Editor{opts: opts, fields: fields}
	e.state = InitialState(fields, Seed{}, opts.Clock)
	return e
}

// Open starts a session from seed. An open session is replaced.
func (e *Editor) Open(seed Seed) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if seed.Event != nil {
		c := seed.Event.Clone()
		seed.Event = &c
	}
	if seed.Range != nil {
		r := *seed.Range
		seed.Range = &r
	}
	e.seed = seed
	e.state = InitialState(e.fields, seed, e.opts.Clock)
	e.touch.Reset()
	e.open = true
	e.gen++
}

// IsOpen reports whether a session is active.
func (e *Editor) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// Fields returns the schema the editor was built with.
func (e *Editor) Fields() []schema.Field {
	out := make([]schema.Field, len(e.fields))
	copy(out, e.fields)
	return out
}

// State returns the current state. The returned value is immutable.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Edited returns a copy of the record being edited, or nil for a create.
func (e *Editor) Edited() *model.EventRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.edited()
}

func (e *Editor) edited() *model.EventRecord {
	if e.seed.Event == nil {
		return nil
	}
	c := e.seed.Event.Clone()
	return &c
}

// Action is the action a commit of the current session would carry.
func (e *Editor) Action() model.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seed.action()
}

func (s Seed) action() model.Action {
	if s.Event != nil && s.Event.ID != "" {
		return model.ActionEdit
	}
	return model.ActionCreate
}

// HandleEditorState stores value and validity for name as given and marks
// the input touched. The value is shaped by the field's declaration.
func (e *Editor) HandleEditorState(name string, value any, validity bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := e.state.Set(name, value, validity)
	if err != nil {
		return err
	}
	e.state = next
	e.touch.Blur(name)
	return nil
}

// HandleInput is HandleEditorState with validity computed by the field's
// input rules.
func (e *Editor) HandleInput(name string, raw any) (normalize.Verdict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	it, ok := e.state.Get(name)
	if !ok {
		return normalize.Verdict{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	res, verdict := normalize.CheckRaw(it.Field(), raw)
	next, err := e.state.Set(name, res.Value, verdict.Valid)
	if err != nil {
		return verdict, err
	}
	e.state = next
	e.touch.Blur(name)
	return verdict, nil
}

// Blur marks name touched without changing its value.
func (e *Editor) Blur(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.state.Get(name); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	e.touch.Blur(name)
	return nil
}

// Touch sets the form touched and re-validates every item.
func (e *Editor) Touch() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.touch.MarkForm()
	e.state = e.state.Revalidate()
}

// FormTouched reports the form-level touched flag.
func (e *Editor) FormTouched() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.touch.Form()
}

// Touched reports whether the input name has been touched.
func (e *Editor) Touched(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.touch.Touched(name)
}

// ErrorText returns the visible error for name.
func (e *Editor) ErrorText(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.touch.ErrorText(e.state, name)
}

// Errors returns all visible errors in field order.
func (e *Editor) Errors() []FieldError {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.touch.Errors(e.state)
}

// HandleClose ends the session. With clear the state is reset as well.
func (e *Editor) HandleClose(clear bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.close(clear)
}

func (e *Editor) close(clear bool) {
	e.open = false
	e.gen++
	if clear {
		e.reset()
	}
}

// Reset rebuilds the state from the schema with no seed. Calling it twice
// is the same as calling it once.
func (e *Editor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *Editor) reset() {
	e.seed = Seed{}
	e.state = InitialState(e.fields, Seed{}, e.opts.Clock)
	e.touch.Reset()
	e.gen++
}

// Loading reports the loading flag shown by the presentation layer.
func (e *Editor) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// SetLoading sets the loading flag. Custom editors use it through Helpers.
func (e *Editor) SetLoading(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loading = v
}

// Busy reports whether a commit is in flight.
func (e *Editor) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Helpers returns the callbacks handed to a custom editor.
func (e *Editor) Helpers() Helpers {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Helpers{
		State:   e.state,
		Close:   func() { e.HandleClose(false) },
		Loading: e.SetLoading,
		Edited:  e.edited(),
		OnConfirm: func(rec model.EventRecord, action model.Action) {
			if err := callHost(func() { e.opts.Host.ConfirmEvent(rec.Clone(), action) }); err != nil {
				appLog.Error("custom editor confirm failed", err, "event_id", rec.ID)
			}
		},
	}
}

// RenderCustom runs the installed custom editor. ok is false when none is
// installed.
func (e *Editor) RenderCustom() (out any, ok bool) {
	if e.opts.CustomEditor == nil {
		return nil, false
	}
	return e.opts.CustomEditor(e.Helpers()), true
}

// callHost runs fn and turns a panic into an error.
func callHost(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHostPanic, r)
		}
	}()
	fn()
	return nil
}
