// Package store keeps the host's event collection in memory.
package store

import (
	"sort"
	"sync"

	appLog "scheditor/internal/log"
	"scheditor/internal/metrics"
	"scheditor/internal/model"
)

// Change describes one mutation of the collection. Record is a copy of
// the stored (or removed) event.
type Change struct {
	Action model.Action
	Record model.EventRecord
}

// Collection is the host's list of events. It implements editor.Host.
type Collection struct {
	mu        sync.RWMutex
	events    []model.EventRecord
	observers []func(Change)
}

// New returns a collection holding copies of events.
func New(events []model.EventRecord) *Collection {
	c := &Collection{}
	c.Replace(events)
	return c
}

// OnChange registers fn to run after every mutation. Observers run outside
// the collection lock, in registration order.
func (c *Collection) OnChange(fn func(Change)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// ConfirmEvent appends a created record, or replaces the record with the
// same id on edit (appending when it is missing).
func (c *Collection) ConfirmEvent(rec model.EventRecord, action model.Action) {
	rec = rec.Clone()

	c.mu.Lock()
	idx := c.indexOf(rec.ID)
	switch {
	case action == model.ActionEdit && idx >= 0:
		c.events[idx] = rec
	default:
		if action == model.ActionCreate && idx >= 0 {
			appLog.Warn("created event id already exists; keeping both", "event_id", rec.ID)
		}
		c.events = append(c.events, rec)
	}
	n := len(c.events)
	obs := c.snapshotObservers()
	c.mu.Unlock()

	metrics.Events.Set(float64(n))
	notify(obs, Change{Action: action, Record: rec.Clone()})
}

// RemoveEvent drops every record with id. It reports whether any was
// found.
func (c *Collection) RemoveEvent(id string) bool {
	return c.RemoveMatching(id, nil)
}

// RemoveMatching drops the records with id for which match returns true
// (all of them when match is nil). Observers get one delete per removed
// record, carrying a copy of it.
func (c *Collection) RemoveMatching(id string, match func(model.EventRecord) bool) bool {
	c.mu.Lock()
	kept := c.events[:0:0]
	var removed []model.EventRecord
	for _, ev := range c.events {
		if ev.ID == id && (match == nil || match(ev)) {
			removed = append(removed, ev)
			continue
		}
		kept = append(kept, ev)
	}
	c.events = kept
	n := len(c.events)
	obs := c.snapshotObservers()
	c.mu.Unlock()

	if len(removed) == 0 {
		return false
	}
	metrics.Events.Set(float64(n))
	for _, ev := range removed {
		notify(obs, Change{Action: model.ActionDelete, Record: ev.Clone()})
	}
	return true
}

// Replace swaps the whole collection without notifying observers.
func (c *Collection) Replace(events []model.EventRecord) {
	cp := make([]model.EventRecord, len(events))
	for i, ev := range events {
		cp[i] = ev.Clone()
	}
	c.mu.Lock()
	c.events = cp
	c.mu.Unlock()
	metrics.Events.Set(float64(len(cp)))
}

// Events returns copies of all events ordered by start time.
func (c *Collection) Events() []model.EventRecord {
	c.mu.RLock()
	out := make([]model.EventRecord, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Clone()
	}
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// Get returns a copy of the event with id.
func (c *Collection) Get(id string) (model.EventRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(id); i >= 0 {
		return c.events[i].Clone(), true
	}
	return model.EventRecord{}, false
}

// Len returns the number of events.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

func (c *Collection) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, ev := range c.events {
		if ev.ID == id {
			return i
		}
	}
	return -1
}

func (c *Collection) snapshotObservers() []func(Change) {
	out := make([]func(Change), len(c.observers))
	copy(out, c.observers)
	return out
}

func notify(obs []func(Change), ch Change) {
	for _, fn := range obs {
		fn(ch)
	}
}
