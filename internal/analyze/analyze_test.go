package analyze

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/claude/repcounter/internal/models"
	"github.com/claude/repcounter/internal/pose"
	"github.com/claude/repcounter/internal/repcount"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pushupJSONL is two push-ups on the left arm (170, 80, 170, 60 degrees)
// recorded one second apart.
const pushupJSONL = `{"t":"2026-03-01T08:00:00Z","joints":{"left_shoulder":{"x":0.5,"y":0.3},"left_elbow":{"x":0.5,"y":0.5},"left_wrist":{"x":0.5347,"y":0.6970}}}
{"t":"2026-03-01T08:00:01Z","joints":{"left_shoulder":{"x":0.5,"y":0.3},"left_elbow":{"x":0.5,"y":0.5},"left_wrist":{"x":0.6970,"y":0.4653}}}
{"t":"2026-03-01T08:00:02Z","joints":{"left_shoulder":{"x":0.5,"y":0.3},"left_elbow":{"x":0.5,"y":0.5},"left_wrist":{"x":0.5347,"y":0.6970}}}
{"t":"2026-03-01T08:00:03Z","joints":{"left_shoulder":{"x":0.5,"y":0.3},"left_elbow":{"x":0.5,"y":0.5},"left_wrist":{"x":0.6732,"y":0.4}}}
`

// squatCSV is one squat on the left leg (170 then 60 degrees at the knee).
const squatCSV = `seq,joint,x,y,visibility
1,left_hip,0.5,0.3,0.9
1,left_knee,0.5,0.5,0.9
1,left_ankle,0.5347,0.6970,0.9
2,left_hip,0.5,0.3,0.9
2,left_knee,0.5,0.5,0.9
2,left_ankle,0.6732,0.4,0.9
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testOptions() Options {
	return Options{
		Exercise: repcount.Pushup,
		Layout:   pose.MediaPipe,
		Counter:  repcount.DefaultOptions(),
	}
}

// TestAnalyzeFile verifies a single file is counted and the session spans
// the frame timestamps.
func TestAnalyzeFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "morning.jsonl", pushupJSONL)

	res, err := AnalyzeFile(context.Background(), path, repcount.Pushup, pose.MediaPipe, repcount.DefaultOptions(), quietLog())
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary.Reps != 2 {
		t.Errorf("reps = %d, want 2", res.Summary.Reps)
	}
	wantStart := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if !res.StartedAt.Equal(wantStart) || !res.EndedAt.Equal(wantStart.Add(3*time.Second)) {
		t.Errorf("span = %v .. %v", res.StartedAt, res.EndedAt)
	}
	if res.Source != "morning.jsonl" {
		t.Errorf("source = %q", res.Source)
	}
}

// TestAnalyzeFileMalformed verifies a broken stream is an error.
func TestAnalyzeFileMalformed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.jsonl", "{not json\n")
	if _, err := AnalyzeFile(context.Background(), path, repcount.Pushup, pose.MediaPipe, repcount.DefaultOptions(), quietLog()); err == nil {
		t.Fatal("expected error")
	}

	other := writeFile(t, t.TempDir(), "notes.txt", "hello")
	if _, err := AnalyzeFile(context.Background(), other, repcount.Pushup, pose.MediaPipe, repcount.DefaultOptions(), quietLog()); err == nil {
		t.Fatal("expected error for unknown extension")
	}
}

// TestExerciseFromPath verifies exercise names are picked out of file names.
func TestExerciseFromPath(t *testing.T) {
	tests := []struct {
		path string
		want repcount.Exercise
	}{
		{"2026-03-01-squats.jsonl", repcount.Squat},
		{"/data/evening_push-ups.csv", repcount.Pushup},
		{"set1 pushup.jsonl", repcount.Pushup},
		{"SQUAT.CSV", repcount.Squat},
		{"recording.jsonl", repcount.Squat},
	}
	for _, tt := range tests {
		if got := ExerciseFromPath(tt.path, repcount.Squat); got != tt.want {
			t.Errorf("ExerciseFromPath(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

// TestRunUploadsAndJournals verifies a run sends each new file once and a
// second run skips everything already journaled.
func TestRunUploadsAndJournals(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a-pushups.jsonl", pushupJSONL)
	writeFile(t, dir, "sub/b-squats.csv", squatCSV)
	writeFile(t, dir, "readme.txt", "ignored")

	var mu sync.Mutex
	var uploads []models.RepSessionUpload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var u models.RepSessionUpload
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			t.Errorf("decode upload: %v", err)
		}
		mu.Lock()
		uploads = append(uploads, u)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	journal, err := OpenJournal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	var seen []string
	a := New(NewClient(ts.URL, "k"), journal, dir, testOptions(), quietLog())
	a.OnFile = func(rel string) { seen = append(seen, rel) }

	stats, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesTotal != 2 || stats.FilesAnalyzed != 2 || stats.SessionsSent != 2 || stats.RepsTotal != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if len(seen) != 2 {
		t.Errorf("OnFile called %d times, want 2", len(seen))
	}

	if len(uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(uploads))
	}
	if uploads[0].Session.Exercise != "pushup" || uploads[0].Session.Reps != 2 || len(uploads[0].Events) != 2 {
		t.Errorf("first upload = %+v", uploads[0].Session)
	}
	if uploads[1].Session.Exercise != "squat" || uploads[1].Session.Reps != 1 {
		t.Errorf("second upload = %+v", uploads[1].Session)
	}
	if uploads[0].Session.SourceHash == "" || uploads[0].Session.UserID != 1 {
		t.Errorf("upload missing hash or user: %+v", uploads[0].Session)
	}

	again, err := New(NewClient(ts.URL, "k"), journal, dir, testOptions(), quietLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again.FilesSkipped != 2 || again.SessionsSent != 0 {
		t.Errorf("second run stats = %+v", again)
	}
	if len(uploads) != 2 {
		t.Errorf("second run uploaded again: %d", len(uploads))
	}
}

// TestRunDryRun verifies a dry run neither uploads nor journals.
func TestRunDryRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pushups.jsonl", pushupJSONL)

	journal, err := OpenJournal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	opts := testOptions()
	opts.DryRun = true
	for range 2 {
		stats, err := New(nil, journal, dir, opts, quietLog()).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if stats.FilesAnalyzed != 1 || stats.FilesSkipped != 0 {
			t.Errorf("stats = %+v", stats)
		}
	}
}

// TestRunCountsErrors verifies a broken file is counted and the run continues.
func TestRunCountsErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", "{oops\n")
	writeFile(t, dir, "b.jsonl", pushupJSONL)

	journal, err := OpenJournal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	stats, err := New(nil, journal, dir, testOptions(), quietLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesErrored != 1 || stats.FilesAnalyzed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

// TestRunCancelled verifies a cancelled context stops the run.
func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", pushupJSONL)

	journal, err := OpenJournal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(nil, journal, dir, testOptions(), quietLog()).Run(ctx); err == nil {
		t.Fatal("expected context error")
	}
}
