package ics

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "scheditor/internal/log"
	"scheditor/internal/model"
)

// EncodeOptions control calendar-level properties.
type EncodeOptions struct {
	ProductID string
	Name      string
	// Now stamps DTSTAMP; zero means time.Now().
	Now time.Time
}

// Encode renders records as a VCALENDAR. Records without an id get a
// random UID. Custom fields other than the mapped ones travel in an
// X-SCHEDITOR-FIELDS property so Decode can restore them.
func Encode(records []model.EventRecord, opts EncodeOptions) []byte {
	if opts.ProductID == "" {
		opts.ProductID = "-//scheditor//EN"
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetProductId(opts.ProductID)
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	for _, rec := range records {
		uid := rec.ID
		if uid == "" {
			uid = uuid.NewString()
		}
		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(opts.Now)
		ev.SetSummary(rec.Title)

		if allDay, _ := rec.Value(AllDayField).(bool); allDay {
			ev.SetAllDayStartAt(rec.Start)
			ev.SetAllDayEndAt(rec.End)
		} else {
			ev.SetStartAt(rec.Start)
			ev.SetEndAt(rec.End)
		}

		if s, ok := rec.Value(DescriptionField).(string); ok && s != "" {
			ev.SetDescription(s)
		}
		if s, ok := rec.Value(LocationField).(string); ok && s != "" {
			ev.SetLocation(s)
		}
		if s, ok := rec.Value(RecurrenceField).(string); ok && s != "" {
			if err := ValidateRRule(s); err == nil {
				ev.AddRrule(strings.TrimPrefix(strings.TrimSpace(s), "RRULE:"))
			} else {
				appLog.Warn("ics export: recurrence rule dropped", "event_id", uid, "rrule", s)
			}
		}
		for _, x := range exDateList(rec.Value(ExDateField)) {
			ev.AddExdate(x.UTC().Format("20060102T150405Z"))
		}

		if blob, err := encodeFields(rec); err != nil {
			appLog.Warn("ics export: custom fields dropped", "event_id", uid, "err", err.Error())
		} else if blob != "" {
			ev.SetProperty(fieldsProperty, blob)
		}
	}
	return []byte(cal.Serialize())
}

// encodeFields packs the custom fields that have no VEVENT property.
func encodeFields(rec model.EventRecord) (string, error) {
	var carrier model.EventRecord
	for _, name := range rec.Fields.Names() {
		switch name {
		case DescriptionField, LocationField, AllDayField, RecurrenceField, ExDateField:
			continue
		}
		v, _ := rec.Fields.Get(name)
		carrier.Fields.Set(name, v)
	}
	if carrier.Fields.Len() == 0 {
		return "", nil
	}
	b, err := json.Marshal(carrier)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func exDateList(v any) []time.Time {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []string:
		for _, s := range t {
			items = append(items, s)
		}
	case nil:
		return nil
	default:
		items = []any{t}
	}
	out := make([]time.Time, 0, len(items))
	for _, it := range items {
		ts, err := model.ParseTime(it)
		if err == nil && !ts.IsZero() {
			out = append(out, ts)
		}
	}
	return out
}
