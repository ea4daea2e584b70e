package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"scheditor/internal/model"
	"scheditor/internal/normalize"
	"scheditor/internal/schema"
)

type confirmCall struct {
	rec    model.EventRecord
	action model.Action
}

type fakeHost struct {
	mu        sync.Mutex
	confirmed []confirmCall
	removed   []string
	panicMsg  string
}

func (h *fakeHost) ConfirmEvent(rec model.EventRecord, action model.Action) {
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.confirmed = append(h.confirmed, confirmCall{rec: rec, action: action})
}

func (h *fakeHost) RemoveEvent(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = append(h.removed, id)
	return true
}

type fakeView struct{ closed int }

func (v *fakeView) Close() { v.closed++ }

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return t0 }

func testFields() []schema.Field {
	return []schema.Field{
		{Name: "room", Config: schema.InputConfig{}},
		{
			Name:    "admin_id",
			Default: schema.Static("u1"),
			Config: schema.SelectConfig{
				InputProps: schema.InputProps{Label: "Admins", Required: true},
				Multiple:   schema.MultipleChips,
			},
			Options: []schema.Option{{ID: "u1", Text: "Ann"}, {ID: "u2", Text: "Bo"}},
		},
		{Name: "note", Config: schema.InputConfig{InputProps: schema.InputProps{Required: true, ErrMsg: "Say something"}}},
	}
}

func newTestEditor(host Host, opts ...func(*Options)) *Editor {
	o := Options{
		Fields: testFields(),
		Host:   host,
		Clock:  fixedClock,
		IDs:    IDFunc(func() string { return "generated-1" }),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return New(o)
}

func TestInitialStateOrder(t *testing.T) {
	s := InitialState(testFields(), Seed{}, fixedClock)
	want := []string{"event_id", "title", "start", "end", "room", "admin_id", "note"}
	if diff := cmp.Diff(want, s.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	if s.Len() != len(testFields())+4 {
		t.Fatalf("len = %d", s.Len())
	}
}

func TestInitialStateUnseeded(t *testing.T) {
	s := InitialState(testFields(), Seed{}, fixedClock)

	id, _ := s.Get("event_id")
	if id.Value.Raw() != nil || !id.Validity {
		t.Fatalf("event_id: %+v", id)
	}
	title, _ := s.Get("title")
	if title.Validity {
		t.Fatal("empty title must start invalid")
	}
	start, _ := s.Get("start")
	if got := start.Value.Raw(); got != t0 {
		t.Fatalf("start = %v, want clock value", got)
	}
	admins, _ := s.Get("admin_id")
	if !admins.Value.Equal(normalize.List("u1")) || !admins.Validity {
		t.Fatalf("default should fill admin_id: %+v", admins)
	}
	note, _ := s.Get("note")
	if note.Validity || !note.Value.Equal(normalize.Empty(false)) {
		t.Fatalf("required note without value or default: %+v", note)
	}
	room, _ := s.Get("room")
	if !room.Validity {
		t.Fatal("optional fields are always valid")
	}
}

func TestInitialStateFromEvent(t *testing.T) {
	ev := &model.EventRecord{ID: "e1", Title: "Standup", Start: t0, End: t0.Add(15 * time.Minute)}
	ev.Fields.Set("admin_id", "u2")
	ev.Fields.Set("note", "daily")

	s := InitialState(testFields(), Seed{Event: ev}, fixedClock)
	admins, _ := s.Get("admin_id")
	if !admins.Value.Equal(normalize.List("u2")) {
		t.Fatalf("stored scalar should be wrapped: %+v", admins.Value.Raw())
	}
	rec := s.Record()
	if rec.ID != "e1" || rec.Title != "Standup" || !rec.End.Equal(t0.Add(15*time.Minute)) {
		t.Fatalf("record: %+v", rec)
	}
	if !s.Valid() {
		t.Fatalf("invalid: %v", s.Invalid())
	}
}

func TestRangeSeedOnlySetsTimes(t *testing.T) {
	r := &model.SelectedRange{Start: t0, End: t0.Add(time.Hour)}
	s := InitialState(testFields(), Seed{Range: r}, func() time.Time { return time.Time{} })
	end, _ := s.Get("end")
	if got := end.Value.Raw(); got != t0.Add(time.Hour) {
		t.Fatalf("end = %v", got)
	}
	id, _ := s.Get("event_id")
	if id.Value.Raw() != nil {
		t.Fatal("range seed must not set an id")
	}
}

func TestStateSetIsCopyOnWrite(t *testing.T) {
	s := InitialState(testFields(), Seed{}, fixedClock)
	next, err := s.Set("room", "A-101", true)
	if err != nil {
		t.Fatal(err)
	}
	if it, _ := s.Get("room"); it.Value.Raw() != "" {
		t.Fatalf("original changed: %v", it.Value.Raw())
	}
	if it, _ := next.Get("room"); it.Value.Raw() != "A-101" {
		t.Fatalf("new state: %v", it.Value.Raw())
	}
	if diff := cmp.Diff(s.Names(), next.Names()); diff != "" {
		t.Fatalf("order changed (-want +got):\n%s", diff)
	}

	_, err = s.Set("nope", 1, true)
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("err = %v", err)
	}
}

func TestResetIdempotent(t *testing.T) {
	e := newTestEditor(&fakeHost{})
	e.Open(Seed{Event: &model.EventRecord{ID: "x", Title: "Old"}})
	if err := e.HandleEditorState("room", "B", true); err != nil {
		t.Fatal(err)
	}

	e.Reset()
	once := e.State().Items()
	e.Reset()
	twice := e.State().Items()
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("reset twice differs (-once +twice):\n%s", diff)
	}
	if e.FormTouched() || e.Touched("room") {
		t.Fatal("reset must clear touch flags")
	}
}

func TestTouchTracking(t *testing.T) {
	e := newTestEditor(&fakeHost{})
	e.Open(Seed{})

	if msg := e.ErrorText("note"); msg != "" {
		t.Fatalf("untouched input shows %q", msg)
	}
	if err := e.Blur("note"); err != nil {
		t.Fatal(err)
	}
	if msg := e.ErrorText("note"); msg != "Say something" {
		t.Fatalf("err_msg not used: %q", msg)
	}

	verdict, err := e.HandleInput("title", "ab")
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Valid || e.ErrorText("title") != "Minimum 3 letters" {
		t.Fatalf("verdict %+v, text %q", verdict, e.ErrorText("title"))
	}

	e.Touch()
	want := []FieldError{
		{Field: "title", Message: "Minimum 3 letters"},
		{Field: "note", Message: "Say something"},
	}
	if diff := cmp.Diff(want, e.Errors()); diff != "" {
		t.Fatalf("errors (-want +got):\n%s", diff)
	}
}

func TestTouchRevalidates(t *testing.T) {
	e := newTestEditor(&fakeHost{})
	e.Open(Seed{})
	// stored as valid by the caller, but empty
	if err := e.HandleEditorState("note", "", true); err != nil {
		t.Fatal(err)
	}
	e.Touch()
	if it, _ := e.State().Get("note"); it.Validity {
		t.Fatal("touch must re-check required fields")
	}
	if !e.FormTouched() {
		t.Fatal("form should be touched")
	}
}

func fillValid(t *testing.T, e *Editor) {
	t.Helper()
	for name, v := range map[string]any{"title": "Meeting", "note": "n"} {
		if _, err := e.HandleInput(name, v); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDateRepairUsesRangeDuration(t *testing.T) {
	host := &fakeHost{}
	e := newTestEditor(host)
	e.Open(Seed{Range: &model.SelectedRange{Start: t0, End: t0.Add(30 * time.Minute)}})
	fillValid(t, e)
	if err := e.HandleEditorState("end", t0.Add(-5*time.Minute), true); err != nil {
		t.Fatal(err)
	}

	out, err := e.HandleConfirm(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Phase != PhaseCommitted {
		t.Fatalf("phase = %v", out.Phase)
	}
	if want := t0.Add(30 * time.Minute); !host.confirmed[0].rec.End.Equal(want) {
		t.Fatalf("end = %v, want %v", host.confirmed[0].rec.End, want)
	}
}

func TestScenarioALocalCreate(t *testing.T) {
	host := &fakeHost{}
	e := newTestEditor(host)
	e.Open(Seed{Range: &model.SelectedRange{Start: t0, End: t0.Add(time.Hour)}})
	fillValid(t, e)
	if err := e.HandleEditorState("start", "2024-01-01T10:00", true); err != nil {
		t.Fatal(err)
	}
	if err := e.HandleEditorState("end", "2024-01-01T09:00", true); err != nil {
		t.Fatal(err)
	}

	out, err := e.HandleConfirm(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(host.confirmed) != 1 {
		t.Fatalf("host calls = %d", len(host.confirmed))
	}
	got := host.confirmed[0]
	if got.action != model.ActionCreate || out.Action != model.ActionCreate {
		t.Fatalf("action = %v", got.action)
	}
	if got.rec.ID != "generated-1" {
		t.Fatalf("id = %q", got.rec.ID)
	}
	if want := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC); !got.rec.End.Equal(want) {
		t.Fatalf("end = %v", got.rec.End)
	}
	if got.rec.Title != "Meeting" {
		t.Fatalf("title = %q", got.rec.Title)
	}
	if e.IsOpen() {
		t.Fatal("editor should close after commit")
	}
	if it, _ := e.State().Get("title"); it.Value.Raw() != "" {
		t.Fatal("state should be reset after commit")
	}
}

func TestScenarioBRemoteRejectsEdit(t *testing.T) {
	host := &fakeHost{}
	boom := errors.New("503 from upstream")
	var gotAction model.Action
	e := newTestEditor(host, func(o *Options) {
		o.Confirmer = ConfirmFunc(func(_ context.Context, _ model.EventRecord, a model.Action) (model.EventRecord, error) {
			gotAction = a
			return model.EventRecord{}, boom
		})
	})
	ev := &model.EventRecord{ID: "e1", Title: "Review", Start: t0, End: t0.Add(time.Hour)}
	ev.Fields.Set("note", "x")
	e.Open(Seed{Event: ev})
	before := e.State().Items()

	out, err := e.HandleConfirm(context.Background())
	if !errors.Is(err, ErrCollaborator) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	var cerr *CollaboratorError
	if !errors.As(err, &cerr) || cerr.Op != "confirm" {
		t.Fatalf("not a collaborator error: %v", err)
	}
	if out.Phase != PhaseRejected || gotAction != model.ActionEdit {
		t.Fatalf("phase %v action %v", out.Phase, gotAction)
	}
	if len(host.confirmed) != 0 {
		t.Fatal("host must not be touched")
	}
	if !e.IsOpen() || e.Busy() || e.Loading() {
		t.Fatalf("open=%v busy=%v loading=%v", e.IsOpen(), e.Busy(), e.Loading())
	}
	if diff := cmp.Diff(before, e.State().Items()); diff != "" {
		t.Fatalf("state changed (-before +after):\n%s", diff)
	}
}

func TestScenarioDRequiredEmpty(t *testing.T) {
	host := &fakeHost{}
	called := false
	e := newTestEditor(host, func(o *Options) {
		o.Confirmer = ConfirmFunc(func(context.Context, model.EventRecord, model.Action) (model.EventRecord, error) {
			called = true
			return model.EventRecord{}, nil
		})
	})
	e.Open(Seed{})
	if err := e.HandleEditorState("title", "", false); err != nil {
		t.Fatal(err)
	}

	out, err := e.HandleConfirm(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Phase != PhaseInvalid {
		t.Fatalf("phase = %v", out.Phase)
	}
	if !e.IsOpen() || !e.FormTouched() || called || len(host.confirmed) != 0 || e.Busy() {
		t.Fatalf("open=%v touched=%v called=%v", e.IsOpen(), e.FormTouched(), called)
	}
	if diff := cmp.Diff([]string{"title", "note"}, out.Invalid); diff != "" {
		t.Fatalf("invalid (-want +got):\n%s", diff)
	}
}

func TestConfirmerResultIsMerged(t *testing.T) {
	host := &fakeHost{}
	e := newTestEditor(host, func(o *Options) {
		o.Confirmer = ConfirmFunc(func(_ context.Context, d model.EventRecord, _ model.Action) (model.EventRecord, error) {
			d.ID = "srv-42"
			return d, nil
		})
	})
	e.Open(Seed{})
	fillValid(t, e)

	out, err := e.HandleConfirm(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Record.ID != "srv-42" || host.confirmed[0].rec.ID != "srv-42" {
		t.Fatalf("server id not used: %+v", out.Record)
	}
}

func TestEditKeepsSeedIDAndDoesNotAliasSeed(t *testing.T) {
	host := &fakeHost{}
	e := newTestEditor(host)
	ev := &model.EventRecord{ID: "e7", Title: "Old title", Start: t0, End: t0.Add(time.Hour)}
	ev.Fields.Set("note", "keep")
	e.Open(Seed{Event: ev})
	if _, err := e.HandleInput("title", "New title"); err != nil {
		t.Fatal(err)
	}

	if _, err := e.HandleConfirm(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := host.confirmed[0]
	if got.rec.ID != "e7" || got.action != model.ActionEdit {
		t.Fatalf("got %+v", got)
	}
	if ev.Title != "Old title" {
		t.Fatal("seed record was mutated")
	}
}

func TestStaleCompletionIsDiscarded(t *testing.T) {
	host := &fakeHost{}
	release := make(chan struct{})
	entered := make(chan struct{})
	e := newTestEditor(host, func(o *Options) {
		o.Confirmer = ConfirmFunc(func(_ context.Context, d model.EventRecord, _ model.Action) (model.EventRecord, error) {
			close(entered)
			<-release
			return d, nil
		})
	})
	e.Open(Seed{})
	fillValid(t, e)

	done := make(chan Outcome, 1)
	go func() {
		out, _ := e.HandleConfirm(context.Background())
		done <- out
	}()
	<-entered
	if _, err := e.HandleConfirm(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second confirm err = %v", err)
	}
	e.HandleClose(true)
	close(release)

	out := <-done
	if out.Phase != PhaseStale {
		t.Fatalf("phase = %v", out.Phase)
	}
	if len(host.confirmed) != 0 {
		t.Fatal("stale result reached the host")
	}
	if e.Busy() {
		t.Fatal("busy must be cleared")
	}
}

func TestCustomEditorBypassesValidation(t *testing.T) {
	host := &fakeHost{}
	var seen Helpers
	e := newTestEditor(host, func(o *Options) {
		o.CustomEditor = func(h Helpers) any {
			seen = h
			return "custom form"
		}
	})
	e.Open(Seed{})

	out, ok := e.RenderCustom()
	if !ok || out != "custom form" || seen.State.Len() != 7 || seen.Edited != nil {
		t.Fatalf("render: %v %v", out, ok)
	}
	seen.Loading(true)
	if !e.Loading() {
		t.Fatal("loading helper not wired")
	}
	seen.Loading(false)

	res, err := e.HandleConfirm(context.Background())
	if err != nil || res.Phase != PhaseCommitted {
		t.Fatalf("phase %v err %v", res.Phase, err)
	}

	seen.OnConfirm(model.EventRecord{ID: "c1", Title: "From custom"}, model.ActionCreate)
	if len(host.confirmed) != 2 || host.confirmed[1].rec.ID != "c1" {
		t.Fatalf("host calls: %+v", host.confirmed)
	}
}

func TestCustomEditorCloseKeepsState(t *testing.T) {
	var seen Helpers
	e := newTestEditor(&fakeHost{}, func(o *Options) {
		o.CustomEditor = func(h Helpers) any {
			seen = h
			return nil
		}
	})
	e.Open(Seed{})
	if err := e.HandleEditorState("title", "Draft", true); err != nil {
		t.Fatal(err)
	}
	e.RenderCustom()
	seen.Close()

	if e.IsOpen() {
		t.Fatal("close helper should end the session")
	}
	if title, _ := e.State().Get("title"); title.Value.Raw() != "Draft" {
		t.Fatalf("close helper cleared the state: %+v", title)
	}
}

func TestBuiltinNamedCustomFieldIsIgnored(t *testing.T) {
	shadow := append(testFields(), schema.Field{Name: "title", Config: schema.InputConfig{}})
	e := newTestEditor(&fakeHost{}, func(o *Options) { o.Fields = shadow })
	e.Open(Seed{})

	want := []string{"event_id", "title", "start", "end", "room", "admin_id", "note"}
	if diff := cmp.Diff(want, e.State().Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, InitialState(shadow, Seed{}, fixedClock).Names()); diff != "" {
		t.Fatalf("InitialState names (-want +got):\n%s", diff)
	}

	if err := e.HandleEditorState("title", "Planning", true); err != nil {
		t.Fatal(err)
	}
	if title, _ := e.State().Get("title"); !title.Validity || title.Type != schema.TypeInput {
		t.Fatalf("built-in title not updated: %+v", title)
	}
}

func TestHostPanicIsRejected(t *testing.T) {
	host := &fakeHost{panicMsg: "collection locked"}
	e := newTestEditor(host)
	e.Open(Seed{})
	fillValid(t, e)

	out, err := e.HandleConfirm(context.Background())
	if !errors.Is(err, ErrHostPanic) || out.Phase != PhaseRejected {
		t.Fatalf("phase %v err %v", out.Phase, err)
	}
	if !e.IsOpen() || e.Busy() {
		t.Fatal("editor should stay open and idle")
	}
}

func TestConfirmClosedEditor(t *testing.T) {
	e := newTestEditor(&fakeHost{})
	if _, err := e.HandleConfirm(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v", err)
	}
}

func TestSeedSpanFallbacks(t *testing.T) {
	e := newTestEditor(&fakeHost{}, func(o *Options) { o.DefaultDuration = 45 * time.Minute })
	cases := []struct {
		name string
		seed Seed
		want time.Duration
	}{
		{"range", Seed{Range: &model.SelectedRange{Start: t0, End: t0.Add(90*time.Minute + 30*time.Second)}}, 90 * time.Minute},
		{"edited span", Seed{Event: &model.EventRecord{ID: "e", Start: t0, End: t0.Add(2 * time.Hour)}}, 2 * time.Hour},
		{"zero range", Seed{Range: &model.SelectedRange{Start: t0, End: t0}}, 45 * time.Minute},
		{"none", Seed{}, 45 * time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.seedSpan(tc.seed); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDeleteScenarioCFalsyRemote(t *testing.T) {
	host := &fakeHost{}
	view := &fakeView{}
	p := NewDeletePipeline(host, RemoveFunc(func(context.Context, string) (string, error) { return "", nil }))

	id, err := p.Delete(context.Background(), "e1", view)
	if err != nil || id != "" {
		t.Fatalf("id %q err %v", id, err)
	}
	if len(host.removed) != 0 || view.closed != 0 {
		t.Fatalf("removed=%v closed=%d", host.removed, view.closed)
	}
	if p.Busy() {
		t.Fatal("busy must be cleared")
	}
}

func TestDeleteUsesReturnedID(t *testing.T) {
	host := &fakeHost{}
	view := &fakeView{}
	p := NewDeletePipeline(host, RemoveFunc(func(_ context.Context, id string) (string, error) { return id + "-series", nil }))

	id, err := p.Delete(context.Background(), "e1", view)
	if err != nil || id != "e1-series" {
		t.Fatalf("id %q err %v", id, err)
	}
	if diff := cmp.Diff([]string{"e1-series"}, host.removed); diff != "" {
		t.Fatalf("removed (-want +got):\n%s", diff)
	}
	if view.closed != 1 {
		t.Fatal("view should close after removal")
	}
}

func TestDeleteWithoutRemoverAndOnError(t *testing.T) {
	host := &fakeHost{}
	p := NewDeletePipeline(host, nil)
	if id, err := p.Delete(context.Background(), "e2", nil); err != nil || id != "e2" {
		t.Fatalf("id %q err %v", id, err)
	}

	failing := NewDeletePipeline(host, RemoveFunc(func(context.Context, string) (string, error) {
		return "", errors.New("timeout")
	}))
	view := &fakeView{}
	_, err := failing.Delete(context.Background(), "e3", view)
	if !errors.Is(err, ErrCollaborator) {
		t.Fatalf("err = %v", err)
	}
	if len(host.removed) != 1 || view.closed != 0 || failing.Busy() {
		t.Fatalf("removed=%v closed=%d", host.removed, view.closed)
	}
}
