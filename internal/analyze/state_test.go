package analyze

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestJournal verifies entries round-trip by path and that recording the
// same path again replaces the previous entry.
func TestJournal(t *testing.T) {
	ctx := context.Background()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "nested"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	if _, ok, err := j.Lookup(ctx, "a.jsonl"); err != nil || ok {
		t.Fatalf("fresh journal: ok=%v err=%v", ok, err)
	}

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if err := j.Record(ctx, JournalEntry{Path: "a.jsonl", Size: 10, Hash: "abc", SessionID: "id-1", Reps: 4, AnalyzedAt: at}); err != nil {
		t.Fatal(err)
	}
	got, ok, err := j.Lookup(ctx, "a.jsonl")
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if got.SessionID != "id-1" || got.Reps != 4 || !got.AnalyzedAt.Equal(at) {
		t.Errorf("entry = %+v", got)
	}
	if !got.matches(10, "abc") || got.matches(10, "changed") || got.matches(11, "abc") {
		t.Error("matches should require both size and hash")
	}

	if err := j.Record(ctx, JournalEntry{Path: "a.jsonl", Size: 12, Hash: "def", SessionID: "id-2", Reps: 5}); err != nil {
		t.Fatal(err)
	}
	got, _, _ = j.Lookup(ctx, "a.jsonl")
	if got.SessionID != "id-2" || got.matches(10, "abc") {
		t.Errorf("entry after replace = %+v", got)
	}
	if got.AnalyzedAt.IsZero() {
		t.Error("AnalyzedAt not defaulted")
	}
}

// TestJournalReopen verifies entries survive closing and reopening the file.
func TestJournalReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	j, err := OpenJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Record(ctx, JournalEntry{Path: "b.csv", Size: 1, Hash: "h", SessionID: "s", Reps: 2}); err != nil {
		t.Fatal(err)
	}
	j.Close()

	j, err = OpenJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	if got, ok, _ := j.Lookup(ctx, "b.csv"); !ok || got.Reps != 2 {
		t.Errorf("after reopen: ok=%v entry=%+v", ok, got)
	}
}

// TestRunReanalyzesChangedFile verifies an edited file is counted again.
func TestRunReanalyzesChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pushups.jsonl", pushupJSONL)

	j, err := OpenJournal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	if _, err := New(nil, j, dir, testOptions(), quietLog()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(pushupJSONL+pushupJSONL), 0o644); err != nil {
		t.Fatal(err)
	}

	stats, err := New(nil, j, dir, testOptions(), quietLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesAnalyzed != 1 || stats.FilesSkipped != 0 {
		t.Errorf("stats after edit = %+v", stats)
	}
}

// TestHashFile verifies the SHA-256 of a known input.
func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("HashFile = %s, want %s", got, want)
	}

	if _, err := HashFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
