package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scheditor/internal/editor"
	"scheditor/internal/model"
)

var (
	_ editor.Confirmer = (*Client)(nil)
	_ editor.Remover   = (*Client)(nil)
)

func TestConfirmWireFormat(t *testing.T) {
	var gotBody map[string]json.RawMessage
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/events/confirm" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"event_id":99,"title":"Sync","start":"2024-01-01T10:00:00Z","end":"2024-01-01T11:00:00Z","room":"b2"}`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1/", WithToken("s3cret"), WithTimeout(time.Second))
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	draft := model.EventRecord{Title: "Sync", Start: start, End: start.Add(time.Hour)}
	draft.Fields.Set("room", "b2")

	got, err := c.Confirm(context.Background(), draft, model.ActionCreate)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "99" || got.Title != "Sync" || got.Value("room") != "b2" {
		t.Fatalf("record = %+v", got)
	}
	if gotAuth != "Bearer s3cret" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if string(gotBody["action"]) != `"create"` {
		t.Fatalf("action = %s", gotBody["action"])
	}
	if !strings.Contains(string(gotBody["event"]), `"event_id":null`) {
		t.Fatalf("event = %s", gotBody["event"])
	}
}

func TestConfirmHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "title taken", http.StatusConflict)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Confirm(context.Background(), model.EventRecord{ID: "e1"}, model.ActionEdit)
	if err == nil || !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "title taken") {
		t.Fatalf("err = %v", err)
	}
}

func TestRemove(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"same id", `{"event_id":"e1"}`, "e1"},
		{"other id", `{"event_id":"series-1"}`, "series-1"},
		{"numeric", `{"event_id":12}`, "12"},
		{"soft delete", `{"event_id":""}`, ""},
		{"null", `{"event_id":null}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req struct {
				EventID string `json:"event_id"`
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&req)
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			got, err := New(srv.URL).Remove(context.Background(), "e1")
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want || req.EventID != "e1" {
				t.Fatalf("got %q (sent %q), want %q", got, req.EventID, tc.want)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).Remove(context.Background(), "e1")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var ne interface{ Timeout() bool }
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Logf("non-timeout error type: %T %v", err, err)
	}
}
