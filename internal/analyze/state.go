package analyze

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS analyzed_files (
	path        TEXT PRIMARY KEY,
	size        INTEGER NOT NULL,
	hash        TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	reps        INTEGER NOT NULL,
	analyzed_at TEXT NOT NULL
)`

// JournalEntry is what the journal remembers about one landmark file.
type JournalEntry struct {
	Path       string
	Size       int64
	Hash       string
	SessionID  string
	Reps       int
	AnalyzedAt time.Time
}

// matches reports whether the entry still describes a file of this size
// and content.
func (e JournalEntry) matches(size int64, hash string) bool {
	return e.Size == size && e.Hash == hash
}

// Journal is a SQLite record of analyzed files, keyed by path relative to
// the watched directory.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens or creates dir/state.db.
func OpenJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal dir %s: %w", dir, err)
	}

	dsn := "file:" + filepath.Join(dir, "state.db") +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Lookup returns the entry for relPath. ok is false when the file has never
// been analyzed.
func (j *Journal) Lookup(ctx context.Context, relPath string) (entry JournalEntry, ok bool, err error) {
	var at string
	err = j.db.QueryRowContext(ctx,
		`SELECT path, size, hash, session_id, reps, analyzed_at FROM analyzed_files WHERE path = ?`,
		relPath,
	).Scan(&entry.Path, &entry.Size, &entry.Hash, &entry.SessionID, &entry.Reps, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return JournalEntry{}, false, nil
	}
	if err != nil {
		return JournalEntry{}, false, fmt.Errorf("journal lookup %s: %w", relPath, err)
	}
	entry.AnalyzedAt, _ = time.Parse(time.RFC3339, at)
	return entry, true, nil
}

// Record stores e, replacing what was known about the same path.
func (j *Journal) Record(ctx context.Context, e JournalEntry) error {
	if e.AnalyzedAt.IsZero() {
		e.AnalyzedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO analyzed_files (path, size, hash, session_id, reps, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			hash = excluded.hash,
			session_id = excluded.session_id,
			reps = excluded.reps,
			analyzed_at = excluded.analyzed_at`,
		e.Path, e.Size, e.Hash, e.SessionID, e.Reps, e.AnalyzedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal record %s: %w", e.Path, err)
	}
	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// HashFile returns the hex SHA-256 of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
