package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "scheditor/internal/log"
	"scheditor/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// Occurrence is one concrete instance of an event within a range.
type Occurrence struct {
	EventID string    `json:"event_id"`
	Title   string    `json:"title"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	AllDay  bool      `json:"all_day,omitempty"`
	// InstanceKey is stable per instance (start time, RFC3339).
	InstanceKey string `json:"instance_key"`
}

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, time.UTC is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap to avoid infinite or extremely
	// large expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the list of expanded occurrences and optionally
// information about truncation.
type ExpandResult struct {
	Occurrences []Occurrence `json:"occurrences"`
	// TruncatedEvents records ids that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string `json:"truncated_events,omitempty"`
}

// ExpandOccurrences expands records into concrete occurrences within the
// configured range. Records with a valid recurrence field are expanded with
// their exdate list applied; others are kept when they overlap the range.
// Results are sorted by start.
func ExpandOccurrences(records []model.EventRecord, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.UTC
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	all := make([]Occurrence, 0)
	for _, rec := range records {
		occ, hitCap := expandRecord(rec, cfg)
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, rec.ID)
			appLog.Warn("expand: truncated occurrences due to cap",
				"event_id", rec.ID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		all = append(all, occ...)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })
	result.Occurrences = all
	return result, nil
}

func expandRecord(rec model.EventRecord, cfg ExpandConfig) ([]Occurrence, bool) {
	rule, _ := rec.Value(RecurrenceField).(string)
	if rule == "" {
		return expandSingle(rec, cfg), false
	}
	return expandRecurring(rec, rule, cfg)
}

func expandSingle(rec model.EventRecord, cfg ExpandConfig) []Occurrence {
	if !timeRangesOverlap(rec.Start, rec.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []Occurrence{makeOccurrence(rec, rec.Start, rec.End, cfg.DisplayLocation)}
}

func expandRecurring(rec model.EventRecord, rule string, cfg ExpandConfig) ([]Occurrence, bool) {
	r, err := ParseRRule(rule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "event_id", rec.ID, "rrule", rule)
		return expandSingle(rec, cfg), false
	}
	r.DTStart(rec.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range exDateList(rec.Value(ExDateField)) {
		set.ExDate(ex.In(rec.Start.Location()))
	}

	dur := rec.End.Sub(rec.Start)
	// Include instances that started before the window but still run into it.
	rangeStart := cfg.RangeStart.Add(-dur).In(rec.Start.Location())
	rangeEnd := cfg.RangeEnd.In(rec.Start.Location())

	times := set.Between(rangeStart, rangeEnd, true)
	hitCap := false
	if len(times) > cfg.MaxOccurrencesPerEvent {
		times = times[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]Occurrence, 0, len(times))
	for _, start := range times {
		end := start.Add(dur)
		if !timeRangesOverlap(start, end, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, makeOccurrence(rec, start, end, cfg.DisplayLocation))
	}
	return out, hitCap
}

func makeOccurrence(rec model.EventRecord, start, end time.Time, loc *time.Location) Occurrence {
	allDay, _ := rec.Value(AllDayField).(bool)
	s := start.In(loc)
	return Occurrence{
		EventID:     rec.ID,
		Title:       rec.Title,
		Start:       s,
		End:         end.In(loc),
		AllDay:      allDay,
		InstanceKey: s.Format(time.RFC3339Nano),
	}
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
