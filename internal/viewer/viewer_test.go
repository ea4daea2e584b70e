package viewer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"scheditor/internal/editor"
	"scheditor/internal/model"
)

type fakeHost struct{ removed []string }

func (h *fakeHost) ConfirmEvent(model.EventRecord, model.Action) {}

func (h *fakeHost) RemoveEvent(id string) bool {
	h.removed = append(h.removed, id)
	return true
}

func sampleEvent() model.EventRecord {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ev := model.EventRecord{ID: "e1", Title: "Planning", Start: start, End: start.Add(time.Hour)}
	ev.Fields.Set("room_id", []any{1, "r3"})
	return ev
}

var rooms = []Resource{
	{"room_id": 1, "name": "Aurora"},
	{"room_id": 2, "name": "Borealis"},
	{"room_id": "r3", "name": "Cellar"},
}

var roomFields = ResourceFields{IDField: "room_id", TextField: "name"}

func TestContentVariants(t *testing.T) {
	args := Args{Event: sampleEvent()}

	if got := Static("fixed").Resolve(args); got != "fixed" {
		t.Fatalf("static = %q", got)
	}
	c := Computed(func(a Args) string { return "#" + a.Event.ID })
	if got := c.Resolve(args); got != "#e1" {
		t.Fatalf("computed = %q", got)
	}
	var unset Content[string]
	if unset.IsSet() {
		t.Fatal("zero content must be unset")
	}
	boom := Computed(func(Args) string { panic("bad component") })
	if got := boom.Resolve(args); got != "" {
		t.Fatalf("panicking component = %q", got)
	}
}

func TestMatchResources(t *testing.T) {
	ev := sampleEvent()
	got := MatchResources(ev, rooms, roomFields)
	want := []Resource{rooms[0], rooms[2]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("matched (-want +got):\n%s", diff)
	}
	if text := ResourceText(ev, rooms, roomFields); text != "Aurora, Cellar" {
		t.Fatalf("text = %q", text)
	}

	single := sampleEvent()
	single.Fields.Set("room_id", float64(2))
	if text := ResourceText(single, rooms, roomFields); text != "Borealis" {
		t.Fatalf("scalar id match = %q", text)
	}

	none := sampleEvent()
	none.Fields.Delete("room_id")
	if got := MatchResources(none, rooms, roomFields); got != nil {
		t.Fatalf("unassigned event matched %v", got)
	}
}

func TestDisabledEventsDoNotOpen(t *testing.T) {
	v := New(Options{Host: &fakeHost{}})
	ev := sampleEvent()
	ev.Fields.Set(DisabledField, true)
	if err := v.Open(ev); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := v.Current(); ok {
		t.Fatal("viewer should stay closed")
	}
}

func TestDeleteFlow(t *testing.T) {
	host := &fakeHost{}
	v := New(Options{Host: host})
	if err := v.Open(sampleEvent()); err != nil {
		t.Fatal(err)
	}

	if _, err := v.ConfirmDelete(context.Background()); !errors.Is(err, ErrDeleteNotRequested) {
		t.Fatalf("err = %v", err)
	}
	if err := v.RequestDelete(); err != nil {
		t.Fatal(err)
	}
	v.CancelDelete()
	if v.DeleteRequested() {
		t.Fatal("cancel should disarm")
	}
	_ = v.RequestDelete()

	id, err := v.ConfirmDelete(context.Background())
	if err != nil || id != "e1" {
		t.Fatalf("id %q err %v", id, err)
	}
	if diff := cmp.Diff([]string{"e1"}, host.removed); diff != "" {
		t.Fatalf("removed (-want +got):\n%s", diff)
	}
	if _, ok := v.Current(); ok {
		t.Fatal("viewer should close after delete")
	}
}

func TestSoftDeleteKeepsViewerOpen(t *testing.T) {
	host := &fakeHost{}
	v := New(Options{
		Host:    host,
		Remover: editor.RemoveFunc(func(context.Context, string) (string, error) { return "", nil }),
	})
	_ = v.Open(sampleEvent())
	_ = v.RequestDelete()

	if _, err := v.ConfirmDelete(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(host.removed) != 0 {
		t.Fatal("nothing should be removed")
	}
	if _, ok := v.Current(); !ok {
		t.Fatal("viewer should stay open")
	}
}

func TestCloseClearsDeleteConfirm(t *testing.T) {
	v := New(Options{Host: &fakeHost{}})
	_ = v.Open(sampleEvent())
	_ = v.RequestDelete()
	v.Close()
	_ = v.Open(sampleEvent())
	if v.DeleteRequested() {
		t.Fatal("reopening must not keep the confirmation")
	}
}

func TestEditReturnsSeed(t *testing.T) {
	v := New(Options{Host: &fakeHost{}})
	_ = v.Open(sampleEvent())
	seed, err := v.Edit()
	if err != nil {
		t.Fatal(err)
	}
	if seed.Event == nil || seed.Event.ID != "e1" {
		t.Fatalf("seed = %+v", seed)
	}
	if _, ok := v.Current(); ok {
		t.Fatal("edit should close the viewer")
	}
	if _, err := v.Edit(); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("err = %v", err)
	}
}

func TestRender(t *testing.T) {
	v := New(Options{
		Host:           &fakeHost{},
		Title:          Computed(func(a Args) string { return a.Event.Title + " (1h)" }),
		Extra:          Static[any](map[string]any{"badge": "new"}),
		Resources:      rooms,
		ResourceFields: roomFields,
	})
	if _, err := v.Render(); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("err = %v", err)
	}
	_ = v.Open(sampleEvent())

	view, err := v.Render()
	if err != nil {
		t.Fatal(err)
	}
	if view.Title != "Planning (1h)" || view.Resources != "Aurora, Cellar" || view.Subtitle != "" {
		t.Fatalf("view = %+v", view)
	}
	if diff := cmp.Diff(map[string]any{"badge": "new"}, view.Extra); diff != "" {
		t.Fatalf("extra (-want +got):\n%s", diff)
	}
}
