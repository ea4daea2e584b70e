package editor

import (
	"encoding/json"
	"fmt"
	"time"

	"scheditor/internal/model"
	"scheditor/internal/normalize"
	"scheditor/internal/schema"
)

// StateItem is the editing state of one field.
type StateItem struct {
	Name     string
	Value    normalize.Value
	Validity bool
	Type     schema.FieldType
	Config   schema.FieldConfig
}

// Field rebuilds the schema view of the item (used for rule checks).
func (it StateItem) Field() schema.Field {
	return schema.Field{Name: it.Name, Config: it.Config}
}

// State is an immutable, ordered mapping of field name to StateItem:
// event_id, title, start, end, then custom fields in schema order.
// Every mutator returns a new State.
type State struct {
	items []StateItem
	index map[string]int
}

func newState(items []StateItem) State {
	idx := make(map[string]int, len(items))
	for i, it := range items {
		idx[it.Name] = i
	}
	return State{items: items, index: idx}
}

// Len returns the number of items.
func (s State) Len() int { return len(s.items) }

// Get returns the item named name.
func (s State) Get(name string) (StateItem, bool) {
	i, ok := s.index[name]
	if !ok {
		return StateItem{}, false
	}
	return s.items[i], true
}

// Names returns the field names in order.
func (s State) Names() []string {
	out := make([]string, len(s.items))
	for i, it := range s.items {
		out[i] = it.Name
	}
	return out
}

// Items returns a copy of the items in order.
func (s State) Items() []StateItem {
	out := make([]StateItem, len(s.items))
	copy(out, s.items)
	return out
}

// Each calls fn for every item in order until fn returns false.
func (s State) Each(fn func(StateItem) bool) {
	for _, it := range s.items {
		if !fn(it) {
			return
		}
	}
}

// Set replaces exactly one item's value and validity. The value is shaped
// per the item's declaration; all other items and the order are unchanged.
func (s State) Set(name string, value any, validity bool) (State, error) {
	i, ok := s.index[name]
	if !ok {
		return s, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	items := make([]StateItem, len(s.items))
	copy(items, s.items)
	it := items[i]
	it.Value = normalize.Normalize(it.Field(), value).Value
	it.Validity = validity
	items[i] = it
	return State{items: items, index: s.index}, nil
}

// Valid reports whether every item is valid.
func (s State) Valid() bool {
	for _, it := range s.items {
		if !it.Validity {
			return false
		}
	}
	return true
}

// Invalid returns the names of invalid items in order.
func (s State) Invalid() []string {
	var out []string
	for _, it := range s.items {
		if !it.Validity {
			out = append(out, it.Name)
		}
	}
	return out
}

// Revalidate re-normalizes every item's current value and, for required
// items, re-applies the input rules.
func (s State) Revalidate() State {
	items := make([]StateItem, len(s.items))
	for i, it := range s.items {
		field := it.Field()
		res, verdict := normalize.CheckRaw(field, it.Value.Raw())
		it.Value = res.Value
		if field.Required() {
			it.Validity = verdict.Valid
		} else {
			it.Validity = true
		}
		items[i] = it
	}
	return State{items: items, index: s.index}
}

// Record flattens the state into a new EventRecord. The result shares no
// memory with the state.
func (s State) Record() model.EventRecord {
	var rec model.EventRecord
	for _, it := range s.items {
		raw := it.Value.Raw()
		switch it.Name {
		case model.FieldEventID:
			rec.ID = idText(raw)
		case model.FieldTitle:
			rec.Title, _ = raw.(string)
		case model.FieldStart:
			rec.Start, _ = raw.(time.Time)
		case model.FieldEnd:
			rec.End, _ = raw.(time.Time)
		default:
			rec.Fields.Set(it.Name, raw)
		}
	}
	return rec
}

// MarshalJSON renders the ordered mapping as a list so the order survives
// JSON object semantics.
func (s State) MarshalJSON() ([]byte, error) {
	type item struct {
		Name     string             `json:"name"`
		Value    normalize.Value    `json:"value"`
		Validity bool               `json:"validity"`
		Type     schema.FieldType   `json:"type"`
		Config   schema.FieldConfig `json:"config,omitempty"`
	}
	out := make([]item, len(s.items))
	for i, it := range s.items {
		out[i] = item{Name: it.Name, Value: it.Value, Validity: it.Validity, Type: it.Type, Config: it.Config}
	}
	return json.Marshal(out)
}

func idText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Seed is what an editing session starts from: an existing record (edit),
// a selected range (quick-create), or neither (plain create).
type Seed struct {
	Event *model.EventRecord
	Range *model.SelectedRange
}

// seedEvent returns the record used to look up existing values: the edited
// record, or a start/end-only record built from the range.
func (s Seed) seedEvent() *model.EventRecord {
	if s.Event != nil {
		return s.Event
	}
	if s.Range != nil {
		return &model.EventRecord{Start: s.Range.Start, End: s.Range.End}
	}
	return nil
}

var (
	titleConfig = schema.InputConfig{
		InputProps: schema.InputProps{Label: "Title", Required: true},
		Min:        schema.IntPtr(3),
	}
	startConfig = schema.DateConfig{InputProps: schema.InputProps{Label: "Start", SM: 6}}
	endConfig   = schema.DateConfig{InputProps: schema.InputProps{Label: "End", SM: 6}}
)

// InitialState builds the ordered state for fields and seed. clock is only
// consulted for start/end of a session with no seed times. Custom fields
// named like a built-in field are skipped.
func InitialState(fields []schema.Field, seed Seed, clock Clock) State {
	if clock == nil {
		clock = time.Now
	}
	ev := seed.seedEvent()

	items := make([]StateItem, 0, len(fields)+len(model.BuiltinFields))

	var id any
	if ev != nil && ev.ID != "" {
		id = ev.ID
	}
	items = append(items, StateItem{
		Name:     model.FieldEventID,
		Value:    normalize.Scalar(id),
		Validity: true,
		Type:     schema.TypeHidden,
		Config:   schema.HiddenConfig{},
	})

	var title string
	if ev != nil {
		title = ev.Title
	}
	items = append(items, StateItem{
		Name:     model.FieldTitle,
		Value:    normalize.Scalar(title),
		Validity: title != "",
		Type:     schema.TypeInput,
		Config:   titleConfig,
	})

	start, end := seedTimes(ev, clock)
	items = append(items,
		StateItem{Name: model.FieldStart, Value: normalize.Scalar(start), Validity: true, Type: schema.TypeDate, Config: startConfig},
		StateItem{Name: model.FieldEnd, Value: normalize.Scalar(end), Validity: true, Type: schema.TypeDate, Config: endConfig},
	)

	for _, f := range fields {
		if model.IsBuiltin(f.Name) {
			continue
		}
		items = append(items, initialItem(f, ev))
	}
	return newState(items)
}

func seedTimes(ev *model.EventRecord, clock Clock) (time.Time, time.Time) {
	var start, end time.Time
	if ev != nil {
		start, end = ev.Start, ev.End
	}
	if start.IsZero() || end.IsZero() {
		now := clock()
		if start.IsZero() {
			start = now
		}
		if end.IsZero() {
			end = now
		}
	}
	return start, end
}

// initialItem picks the existing value, else the default, else empty.
// A required field is valid if either the existing or the default value
// passed normalization.
func initialItem(f schema.Field, ev *model.EventRecord) StateItem {
	defVal := normalize.NormalizeDefault(f, ev)
	eveVal := normalize.NormalizeStored(f, ev)

	value := normalize.Empty(f.Multi())
	switch {
	case !eveVal.Value.IsEmpty():
		value = eveVal.Value
	case !defVal.Value.IsEmpty():
		value = defVal.Value
	}

	validity := true
	if f.Required() {
		validity = eveVal.Validity || defVal.Validity
	}
	return StateItem{
		Name:     f.Name,
		Value:    value,
		Validity: validity,
		Type:     f.Type(),
		Config:   f.Config,
	}
}
