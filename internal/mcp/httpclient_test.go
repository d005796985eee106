package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/claude/repcounter/internal/models"
	"github.com/claude/repcounter/internal/storage"
	"github.com/google/uuid"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by path. Verifies the HTTP client sends correct paths and query params.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestQueryRepSessions verifies the HTTP client sends the time range and
// exercise filter and parses the session list.
func TestQueryRepSessions(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("exercise"); got != "squat" {
				t.Errorf("exercise=%q, want squat", got)
			}
			if got := r.URL.Query().Get("start"); got != "2026-01-01T00:00:00Z" {
				t.Errorf("start=%q", got)
			}
			writeTestJSON(t, w, []models.RepSessionRow{{Exercise: "squat", Reps: 15}})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL + "/")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions, err := client.QueryRepSessions(context.Background(), start, start.AddDate(0, 0, 7), 1, "squat")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].Reps != 15 {
		t.Errorf("sessions = %+v", sessions)
	}
}

// TestGetRepSession verifies the detail path and that 404 maps to
// storage.ErrNotFound.
func TestGetRepSession(t *testing.T) {
	known := uuid.New()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sessions/"+known.String() {
			http.NotFound(w, r)
			return
		}
		writeTestJSON(t, w, storage.RepSessionDetail{
			RepSessionRow: models.RepSessionRow{ID: known, Reps: 2},
			Events:        []models.RepEventRow{{Number: 1}, {Number: 2}},
		})
	}))
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	detail, err := client.GetRepSession(context.Background(), known, 1)
	if err != nil {
		t.Fatal(err)
	}
	if detail.ID != known || len(detail.Events) != 2 {
		t.Errorf("detail = %+v", detail)
	}

	_, err = client.GetRepSession(context.Background(), uuid.New(), 1)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want storage.ErrNotFound", err)
	}
}

// TestStats verifies both stats methods read the shared stats endpoint.
func TestStats(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions/stats": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, map[string]any{
				"totals":  storage.DataStats{TotalSessions: 3, TotalReps: 40},
				"periods": []storage.ExercisePeriod{{Period: "2026-01-05", Exercise: "pushup", TotalReps: 40}},
			})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	totals, err := client.GetDataStats(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if totals.TotalReps != 40 {
		t.Errorf("total reps = %d, want 40", totals.TotalReps)
	}

	periods, err := client.GetExerciseStats(context.Background(), time.Now().AddDate(0, -1, 0), time.Now(), "1 week", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(periods) != 1 || periods[0].Exercise != "pushup" {
		t.Errorf("periods = %+v", periods)
	}
}

// TestBucketToAgg verifies MCP bucket names map to the stats agg parameter.
func TestBucketToAgg(t *testing.T) {
	tests := map[string]string{
		"1 day":   "daily",
		"1 week":  "weekly",
		"1 month": "monthly",
		"":        "weekly",
	}
	for bucket, want := range tests {
		if got := bucketToAgg(bucket); got != want {
			t.Errorf("bucketToAgg(%q) = %q, want %q", bucket, got, want)
		}
	}
}

// TestHTTPClientServerError verifies non-200 responses surface as errors.
func TestHTTPClientServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	if _, err := client.QueryRepSessions(context.Background(), time.Now(), time.Now(), 1, ""); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
