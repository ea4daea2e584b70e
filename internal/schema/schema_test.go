package schema

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"scheditor/internal/model"
)

const sampleYAML = `version: 1
fields:
  - name: admin_id
    type: select
    default: [1]
    options:
      - {id: 1, text: John, value: 1}
      - {id: 2, text: Mark, value: 2}
    config: {label: Assignee, required: true, multiple: chips}
  - name: description
    type: input
    config: {label: Details, multiline: true, rows: 4, min: 2}
  - name: reminder_at
    type: date
    default_from: start
  - name: room
    type: hidden
`

func TestParseYAML(t *testing.T) {
	fields, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var names []string
	var types []FieldType
	for _, f := range fields {
		names = append(names, f.Name)
		types = append(types, f.Type())
	}
	if diff := cmp.Diff([]string{"admin_id", "description", "reminder_at", "room"}, names); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]FieldType{TypeSelect, TypeInput, TypeDate, TypeHidden}, types); diff != "" {
		t.Fatalf("types (-want +got):\n%s", diff)
	}

	admin := fields[0]
	if !admin.Multi() || !admin.Required() {
		t.Fatalf("admin_id should be required multi select: %+v", admin.Config)
	}
	if len(admin.Options) != 2 || admin.Options[1].Text != "Mark" {
		t.Fatalf("options not decoded: %+v", admin.Options)
	}

	desc := fields[1].Config.(InputConfig)
	if desc.Min == nil || *desc.Min != 2 || !desc.Multiline || desc.Rows != 4 {
		t.Fatalf("input config not decoded: %+v", desc)
	}

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	v, ok := fields[2].Default.Resolve(&model.EventRecord{Start: start})
	if !ok || v != start {
		t.Fatalf("default_from start = %v, %v", v, ok)
	}
}

func TestParseJSONMatchesYAML(t *testing.T) {
	doc := `{"version":1,"fields":[{"name":"admin_id","type":"select","default":[1],"config":{"label":"Assignee","required":true,"multiple":"default"}}]}`
	fields, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(fields) != 1 || !fields[0].Multi() {
		t.Fatalf("unexpected fields: %+v", fields)
	}
	if fields[0].Props().Label != "Assignee" {
		t.Fatalf("label lost: %+v", fields[0].Props())
	}
}

func TestParseCustomKeepsProps(t *testing.T) {
	doc := `fields:
  - name: color
    type: custom
    config:
      label: Color
      props: {palette: [red, blue], swatch: true}
`
	fields, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c, ok := fields[0].Config.(CustomConfig)
	if !ok {
		t.Fatalf("config = %T, want CustomConfig", fields[0].Config)
	}
	if c.Props().Label != "Color" {
		t.Fatalf("label lost: %+v", c.Props())
	}
	want := map[string]any{"palette": []any{"red", "blue"}, "swatch": true}
	if diff := cmp.Diff(want, c.Extra); diff != "" {
		t.Fatalf("props (-want +got):\n%s", diff)
	}

	b, err := json.Marshal(fields[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Field
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	if diff := cmp.Diff(want, back.Config.(CustomConfig).Extra); diff != "" {
		t.Fatalf("props after JSON (-want +got):\n%s", diff)
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want error
	}{
		{"unknown type", "fields:\n  - {name: x, type: slider}\n", ErrUnknownFieldType},
		{"duplicate", "fields:\n  - {name: x, type: input}\n  - {name: x, type: date}\n", ErrDuplicateField},
		{"reserved", "fields:\n  - {name: title, type: input}\n", ErrReservedField},
		{"empty", "fields:\n  - {type: input}\n", ErrEmptyFieldName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := Parse([]byte("fields:\n  - {name: x, type: select, config: {multiple: tags}}\n")); err == nil {
		t.Fatal("expected unknown multiple mode error")
	}
}

type typeNamer struct{}

func (typeNamer) Hidden(HiddenConfig) string { return "hidden" }
func (typeNamer) Input(InputConfig) string   { return "input" }
func (typeNamer) Date(DateConfig) string     { return "date" }
func (typeNamer) Select(SelectConfig) string { return "select" }
func (typeNamer) Custom(CustomConfig) string { return "custom" }

func TestVisitDispatchesEveryVariant(t *testing.T) {
	for _, cfg := range []FieldConfig{HiddenConfig{}, InputConfig{}, DateConfig{}, SelectConfig{}, CustomConfig{}} {
		if got := Visit[string](cfg, typeNamer{}); got != string(cfg.Type()) {
			t.Fatalf("Visit(%T) = %s", cfg, got)
		}
	}
	if got := Visit[string](nil, typeNamer{}); got != "hidden" {
		t.Fatalf("nil config should visit Hidden, got %s", got)
	}
}

func TestComputedDefaultPanicIsContained(t *testing.T) {
	d := Computed(func(*model.EventRecord) any { panic("bad host callback") })
	v, ok := d.Resolve(nil)
	if ok || v != nil {
		t.Fatalf("expected (nil,false), got (%v,%v)", v, ok)
	}
}

func TestFieldMarshalJSON(t *testing.T) {
	f := Field{
		Name:    "admin_id",
		Default: Static([]any{1}),
		Config:  SelectConfig{InputProps: InputProps{Label: "Assignee", Required: true}, Multiple: MultipleChips},
		Options: []Option{{ID: 1, Text: "John", Value: 1}},
	}
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	var back Field
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("round trip: %v (%s)", err, b)
	}
	if !back.Multi() || back.Props().Label != "Assignee" || back.Name != "admin_id" {
		t.Fatalf("round trip lost data: %s", b)
	}
}

func TestStoreHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fields.yaml")
	if err := os.WriteFile(path, []byte("fields:\n  - {name: room, type: input}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := st.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	before := st.Fields()
	if len(before) != 1 || before[0].Name != "room" {
		t.Fatalf("initial fields: %+v", before)
	}

	if err := os.WriteFile(path, []byte("fields:\n  - {name: room, type: input}\n  - {name: color, type: hidden}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(st.Fields()) != 2 {
		time.Sleep(20 * time.Millisecond)
	}
	if got := len(st.Fields()); got != 2 {
		t.Fatalf("reload failed, have %d fields", got)
	}
	if len(before) != 1 {
		t.Fatalf("snapshot taken before reload must not change")
	}

	// A broken file keeps the last good schema.
	if err := os.WriteFile(path, []byte("fields:\n  - {name: x, type: slider}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := len(st.Fields()); got != 2 {
		t.Fatalf("broken file should not replace schema, have %d", got)
	}
}
