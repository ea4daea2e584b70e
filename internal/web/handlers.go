package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"scheditor/internal/editor"
	"scheditor/internal/ics"
	appLog "scheditor/internal/log"
	"scheditor/internal/model"
	"scheditor/internal/normalize"
	"scheditor/internal/schema"
	"scheditor/internal/viewer"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) fields() []schema.Field {
	if s.deps.Schema == nil {
		return nil
	}
	return s.deps.Schema.Fields()
}

func (s *Server) handleFields(w http.ResponseWriter, _ *http.Request) {
	fields := s.fields()
	if fields == nil {
		fields = []schema.Field{}
	}
	writeJSON(w, http.StatusOK, fields)
}

type openRequest struct {
	EventID string               `json:"event_id,omitempty"`
	Range   *model.SelectedRange `json:"range,omitempty"`
}

type sessionResponse struct {
	ID          string              `json:"id"`
	Open        bool                `json:"open"`
	Action      model.Action        `json:"action"`
	FormTouched bool                `json:"form_touched"`
	Loading     bool                `json:"loading"`
	State       editor.State        `json:"state"`
	Errors      []editor.FieldError `json:"errors"`
	// Message is the rule message of the last HandleInput call, if any.
	Message string `json:"message,omitempty"`
}

func renderSession(id string, ed *editor.Editor) sessionResponse {
	errs := ed.Errors()
	if errs == nil {
		errs = []editor.FieldError{}
	}
	return sessionResponse{
		ID:          id,
		Open:        ed.IsOpen(),
		Action:      ed.Action(),
		FormTouched: ed.FormTouched(),
		Loading:     ed.Loading(),
		State:       ed.State(),
		Errors:      errs,
	}
}

// handleOpenSession starts an editor session.
//
// POST /api/sessions
//   - {}                         : 빈 새 일정
//   - {"range": {start, end}}    : 캘린더에서 선택한 구간으로 새 일정
//   - {"event_id": "..."}        : 기존 일정 편집
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var seed editor.Seed
	if req.EventID != "" {
		ev, ok := s.deps.Events.Get(req.EventID)
		if !ok {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		if normalize.Truthy(ev.Value(viewer.DisabledField)) {
			writeError(w, http.StatusForbidden, "event is read-only")
			return
		}
		seed.Event = &ev
	}
	if req.Range != nil {
		if req.Range.End.Before(req.Range.Start) {
			writeError(w, http.StatusBadRequest, "range end is before start")
			return
		}
		seed.Range = req.Range
	}

	ed := editor.New(editor.Options{
		Fields:          s.fields(),
		Host:            s.deps.Events,
		Confirmer:       s.deps.Confirmer,
		Clock:           s.deps.Clock,
		DefaultDuration: s.cfg.DefaultDuration,
	})
	ed.Open(seed)
	id := s.sessions.add(ed)
	appLog.Debug("editor session opened", "session", id, "action", ed.Action())
	writeJSON(w, http.StatusCreated, renderSession(id, ed))
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *editor.Editor, bool) {
	id := chi.URLParam(r, "sid")
	ed, ok := s.sessions.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return id, nil, false
	}
	return id, ed, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ed, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, renderSession(id, ed))
}

// handleCloseSession ends a session. ?clear=1 also resets its state.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id, ed, ok := s.session(w, r)
	if !ok {
		return
	}
	ed.HandleClose(r.URL.Query().Get("clear") == "1")
	s.sessions.remove(id)
	w.WriteHeader(http.StatusNoContent)
}

type fieldRequest struct {
	Value any `json:"value"`
	// Validity, when present, is stored as given (custom inputs). Otherwise
	// the field's input rules decide.
	Validity *bool `json:"validity,omitempty"`
}

func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	id, ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var req fieldRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	name := chi.URLParam(r, "name")

	var msg string
	var err error
	if req.Validity != nil {
		err = ed.HandleEditorState(name, req.Value, *req.Validity)
	} else {
		var verdict normalize.Verdict
		verdict, err = ed.HandleInput(name, req.Value)
		msg = verdict.Message
	}
	if err != nil {
		writeFieldError(w, err)
		return
	}
	resp := renderSession(id, ed)
	resp.Message = msg
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBlur(w http.ResponseWriter, r *http.Request) {
	id, ed, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := ed.Blur(chi.URLParam(r, "name")); err != nil {
		writeFieldError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderSession(id, ed))
}

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	id, ed, ok := s.session(w, r)
	if !ok {
		return
	}
	ed.Touch()
	writeJSON(w, http.StatusOK, renderSession(id, ed))
}

func writeFieldError(w http.ResponseWriter, err error) {
	if errors.Is(err, editor.ErrUnknownField) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

type confirmResponse struct {
	editor.Outcome
	Errors []editor.FieldError `json:"errors,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// handleConfirm runs the commit pipeline.
//
//	200 committed (session is gone)
//	422 invalid   (form is now touched; errors lists what to show)
//	409 busy, stale or closed
//	502 the confirmer or host refused the record
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id, ed, ok := s.session(w, r)
	if !ok {
		return
	}

	out, err := ed.HandleConfirm(r.Context())
	resp := confirmResponse{Outcome: out}
	switch {
	case errors.Is(err, editor.ErrBusy), errors.Is(err, editor.ErrClosed):
		resp.Error = err.Error()
		writeJSON(w, http.StatusConflict, resp)
	case err != nil:
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
	case out.Phase == editor.PhaseInvalid:
		resp.Errors = ed.Errors()
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case out.Phase == editor.PhaseStale:
		resp.Error = "session changed while the commit was in flight"
		writeJSON(w, http.StatusConflict, resp)
	default:
		s.sessions.remove(id)
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Events.Events())
}

func (s *Server) handleEventsICS(w http.ResponseWriter, _ *http.Request) {
	body := ics.Encode(s.deps.Events.Events(), ics.EncodeOptions{Name: "scheditor"})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) newViewer() *viewer.Viewer {
	opts := s.deps.Viewer
	opts.Host = s.deps.Events
	opts.Remover = s.deps.Remover
	return viewer.New(opts)
}

// openViewer loads id into a fresh viewer, writing the error response on
// failure.
func (s *Server) openViewer(w http.ResponseWriter, r *http.Request) (*viewer.Viewer, bool) {
	ev, ok := s.deps.Events.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return nil, false
	}
	v := s.newViewer()
	if err := v.Open(ev); err != nil {
		if errors.Is(err, viewer.ErrDisabled) {
			writeError(w, http.StatusForbidden, err.Error())
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return v, true
}

func (s *Server) handleViewEvent(w http.ResponseWriter, r *http.Request) {
	v, ok := s.openViewer(w, r)
	if !ok {
		return
	}
	view, err := v.Render()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type deleteResponse struct {
	// Removed is the id dropped from the collection; empty when the
	// remote side asked to keep the event.
	Removed string `json:"removed"`
	Kept    bool   `json:"kept"`
}

// handleDeleteEvent runs the delete pipeline. The HTTP DELETE itself is
// the confirmation step.
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	v, ok := s.openViewer(w, r)
	if !ok {
		return
	}
	if err := v.RequestDelete(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	removed, err := v.ConfirmDelete(r.Context())
	if err != nil {
		var cerr *editor.CollaboratorError
		if errors.As(err, &cerr) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Removed: removed, Kept: removed == ""})
}

type occurrencesResponse struct {
	Occurrences     []ics.Occurrence `json:"occurrences"`
	TruncatedEvents []string         `json:"truncated_events,omitempty"`
	RangeStart      time.Time        `json:"range_start"`
	RangeEnd        time.Time        `json:"range_end"`
	DisplayTimeZone string           `json:"display_timezone"`
}

// handleOccurrences expands recurring events within a window.
//
// GET /api/occurrences?from=RFC3339&to=RFC3339
// GET /api/occurrences?days=7&backfill=1
//   - days:     앞으로 몇 일을 볼 것인지 (기본 7)
//   - backfill: 과거 몇 일을 포함할지 (기본 1)
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := s.cfg.Location()

	var rangeStart, rangeEnd time.Time
	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		var err1, err2 error
		rangeStart, err1 = time.Parse(time.RFC3339, from)
		rangeEnd, err2 = time.Parse(time.RFC3339, to)
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusBadRequest, "from and to must both be RFC3339 times")
			return
		}
	} else {
		days := parseIntDefault(q.Get("days"), 7)
		if days <= 0 {
			days = 7
		}
		backfill := parseIntDefault(q.Get("backfill"), 1)
		if backfill < 0 {
			backfill = 0
		}
		now := time.Now().In(loc)
		rangeStart = now.AddDate(0, 0, -backfill)
		rangeEnd = now.AddDate(0, 0, days)
	}

	res, err := ics.ExpandOccurrences(s.deps.Events.Events(), ics.ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, occurrencesResponse{
		Occurrences:     res.Occurrences,
		TruncatedEvents: res.TruncatedEvents,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
		DisplayTimeZone: loc.String(),
	})
}
