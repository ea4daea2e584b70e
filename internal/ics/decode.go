package ics

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "scheditor/internal/log"
	"scheditor/internal/model"
)

// Custom fields mapped onto standard VEVENT properties.
const (
	DescriptionField = "description"
	LocationField    = "location"
	AllDayField      = "all_day"
	ExDateField      = "exdate"
)

// fieldsProperty carries the remaining custom fields as base64 JSON.
const fieldsProperty ical.ComponentProperty = "X-SCHEDITOR-FIELDS"

// Decode parses an ICS payload into event records. VEVENTs without a UID
// and RECURRENCE-ID overrides are skipped; the editor works on series
// masters only.
func Decode(body []byte) ([]model.EventRecord, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make([]model.EventRecord, 0)
	for _, comp := range cal.Events() {
		rec, ok, perr := decodeVEvent(comp)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Warn("ics vevent skipped", "err", perr.Error())
			continue
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func decodeVEvent(ve *ical.VEvent) (model.EventRecord, bool, error) {
	var rec model.EventRecord

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return rec, false, errors.New("missing UID")
	}
	rec.ID = uid.Value

	if ve.GetProperty(ical.ComponentPropertyRecurrenceId) != nil {
		appLog.Debug("ics override instance ignored", "uid", rec.ID)
		return rec, false, nil
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		rec.Title = p.Value
	}

	allDay := isAllDay(ve.GetProperty(ical.ComponentPropertyDtStart))
	getStart, getEnd := ve.GetStartAt, ve.GetEndAt
	if allDay {
		getStart, getEnd = ve.GetAllDayStartAt, ve.GetAllDayEndAt
	}
	// NOTE: GetStartAt/GetEndAt 는 TZID/VTIMEZONE 처리를 라이브러리에 맡긴다.
	start, err := getStart()
	if err != nil {
		appLog.Debug("ics vevent with unreadable DTSTART skipped", "uid", rec.ID, "err", err.Error())
		return rec, false, nil
	}
	end, err := getEnd()
	if err != nil && !errors.Is(err, ical.ErrorPropertyNotFound) {
		appLog.Debug("ics vevent with unreadable DTEND skipped", "uid", rec.ID, "err", err.Error())
		return rec, false, nil
	}
	rec.Start, rec.End = start, end
	if allDay && !rec.End.After(rec.Start) {
		rec.End = rec.Start.Add(24 * time.Hour)
	}
	if rec.End.IsZero() {
		rec.End = rec.Start
	}
	if rec.Start.IsZero() {
		return rec, false, errors.New("missing DTSTART")
	}

	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil && p.Value != "" {
		rec.Fields.Set(DescriptionField, p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil && p.Value != "" {
		rec.Fields.Set(LocationField, p.Value)
	}
	if allDay {
		rec.Fields.Set(AllDayField, true)
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		rec.Fields.Set(RecurrenceField, p.Value)
	}
	if ex := exDates(ve); len(ex) > 0 {
		rec.Fields.Set(ExDateField, ex)
	}
	if p := ve.GetProperty(fieldsProperty); p != nil && p.Value != "" {
		if err := mergeFields(&rec, p.Value); err != nil {
			appLog.Warn("ics custom fields ignored", "uid", rec.ID, "err", err.Error())
		}
	}
	return rec, true, nil
}

// isAllDay: VALUE=DATE or no 'T' in the value.
func isAllDay(p *ical.IANAProperty) bool {
	if p == nil {
		return false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// exDates returns EXDATE values as RFC3339 strings.
func exDates(ve *ical.VEvent) []any {
	var out []any
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			t, err := parseICSTime(part)
			if err != nil {
				continue
			}
			out = append(out, t.Format(time.RFC3339))
		}
	}
	return out
}

func mergeFields(rec *model.EventRecord, blob string) error {
	raw, err := base64.RawURLEncoding.DecodeString(blob)
	if err != nil {
		return err
	}
	var carrier model.EventRecord
	if err := json.Unmarshal(raw, &carrier); err != nil {
		return err
	}
	for _, name := range carrier.Fields.Names() {
		v, _ := carrier.Fields.Get(name)
		rec.Fields.Set(name, v)
	}
	return nil
}

// parseICSTime parses a basic ICS date/date-time string. Zone-less values
// are read as UTC.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	}
	return time.ParseInLocation("20060102", v, time.UTC)
}
