package ics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	appLog "scheditor/internal/log"
	"scheditor/internal/model"
)

// Feed event markers. Imported events are disabled so the viewer will not
// open them for editing.
const (
	SourceField   = "source"
	DisabledField = "disabled"
)

// Collection is the part of the event store the importer needs.
type Collection interface {
	Events() []model.EventRecord
	ConfirmEvent(rec model.EventRecord, action model.Action)
	RemoveMatching(id string, match func(model.EventRecord) bool) bool
}

// Importer merges ICS subscriptions into a collection.
type Importer struct {
	Fetcher *Fetcher
	Sources []Source
	Target  Collection
}

// SyncResult counts what one feed sync changed.
type SyncResult struct {
	Upserted  int
	Removed   int
	Unchanged int
	// Skipped counts feed events whose UID is already taken by a local
	// event or another feed.
	Skipped int
}

// SyncAll syncs every source. One failing feed does not stop the others.
func (im *Importer) SyncAll(ctx context.Context) error {
	var errs []error
	for _, src := range im.Sources {
		res, err := im.Sync(ctx, src)
		if err != nil {
			appLog.Error("feed sync failed", err, "id", src.ID, "url", redactURL(src.URL))
			errs = append(errs, fmt.Errorf("feed %s: %w", src.ID, err))
			continue
		}
		appLog.Info("feed synced", "id", src.ID, "upserted", res.Upserted, "removed", res.Removed, "unchanged", res.Unchanged, "skipped", res.Skipped)
	}
	return errors.Join(errs...)
}

// Sync fetches src and makes the collection hold exactly its events,
// tagged with the source id. Unchanged events are not re-confirmed.
func (im *Importer) Sync(ctx context.Context, src Source) (SyncResult, error) {
	var res SyncResult
	fr, err := im.Fetcher.FetchOne(ctx, src)
	if err != nil {
		return res, err
	}
	records, err := Decode(fr.Body)
	if err != nil {
		return res, err
	}

	existing := map[string]model.EventRecord{}
	taken := map[string]bool{}
	for _, ev := range im.Target.Events() {
		if sourceOf(ev) == src.ID {
			existing[ev.ID] = ev
		} else {
			taken[ev.ID] = true
		}
	}

	for _, rec := range records {
		if taken[rec.ID] {
			appLog.Warn("feed event id already used; skipping", "source", src.ID, "event_id", rec.ID)
			res.Skipped++
			continue
		}
		rec.Fields.Set(SourceField, src.ID)
		rec.Fields.Set(DisabledField, true)
		if old, ok := existing[rec.ID]; ok {
			delete(existing, rec.ID)
			if sameRecord(old, rec) {
				res.Unchanged++
				continue
			}
		}
		im.Target.ConfirmEvent(rec, model.ActionEdit)
		res.Upserted++
	}
	fromSource := func(ev model.EventRecord) bool { return sourceOf(ev) == src.ID }
	for id := range existing {
		if im.Target.RemoveMatching(id, fromSource) {
			res.Removed++
		}
	}
	return res, nil
}

func sourceOf(ev model.EventRecord) string {
	s, _ := ev.Value(SourceField).(string)
	return s
}

func sameRecord(a, b model.EventRecord) bool {
	ja, err1 := json.Marshal(a)
	jb, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && bytes.Equal(ja, jb)
}
