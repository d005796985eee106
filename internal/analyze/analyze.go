// Package analyze counts repetitions in recorded landmark files and sends
// the results to a repcounter server.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/claude/repcounter/internal/models"
	"github.com/claude/repcounter/internal/pose"
	"github.com/claude/repcounter/internal/repcount"
	"github.com/claude/repcounter/internal/session"
)

// Stats tracks analyzer progress.
type Stats struct {
	FilesTotal    int
	FilesAnalyzed int
	FilesSkipped  int
	FilesErrored  int

	FramesTotal  int
	RepsTotal    int
	SessionsSent int
}

// Options configures how files are counted.
type Options struct {
	// Exercise is used for files whose name does not name one.
	Exercise repcount.Exercise
	Layout   pose.Layout
	Counter  repcount.Options
	UserID   int
	DryRun   bool
}

// Analyzer walks a directory of landmark files, counts each one and POSTs
// the session to the server. Without a client, results are only journaled.
type Analyzer struct {
	client  *Client
	journal *Journal
	dir     string
	opts    Options
	log     *slog.Logger
	stats   Stats

	// OnFile, if set, is called after each file is handled.
	OnFile func(relPath string)
}

// New creates an Analyzer.
func New(client *Client, journal *Journal, dir string, opts Options, log *slog.Logger) *Analyzer {
	if opts.UserID == 0 {
		opts.UserID = 1
	}
	return &Analyzer{
		client:  client,
		journal: journal,
		dir:     dir,
		opts:    opts,
		log:     log,
	}
}

// Files lists the landmark files under the analyzer's directory, sorted.
func (a *Analyzer) Files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(a.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := pose.FormatFromPath(path); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", a.dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// Run analyzes every file not already journaled. A failing file is logged
// and counted; only a failure to list the directory or a cancelled context
// stops the run.
func (a *Analyzer) Run(ctx context.Context) (*Stats, error) {
	files, err := a.Files()
	if err != nil {
		return &a.stats, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return &a.stats, err
		}

		a.stats.FilesTotal++
		relPath, _ := filepath.Rel(a.dir, f)
		if err := a.processFile(ctx, f, relPath); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return &a.stats, err
			}
			a.log.Warn("analyze failed", "file", relPath, "error", err)
			a.stats.FilesErrored++
		}
		if a.OnFile != nil {
			a.OnFile(relPath)
		}
	}

	return &a.stats, nil
}

func (a *Analyzer) processFile(ctx context.Context, path, relPath string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	hash, err := HashFile(path)
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}

	prev, known, err := a.journal.Lookup(ctx, relPath)
	if err != nil {
		return err
	}
	if known && prev.matches(info.Size(), hash) {
		a.stats.FilesSkipped++
		return nil
	}
	if known {
		a.log.Info("file changed since last analysis",
			"file", relPath,
			"previous_session", prev.SessionID,
			"previous_reps", prev.Reps,
		)
	}

	e := ExerciseFromPath(path, a.opts.Exercise)
	res, err := AnalyzeFile(ctx, path, e, a.opts.Layout, a.opts.Counter, a.log)
	if err != nil {
		return err
	}
	a.stats.FilesAnalyzed++
	a.stats.FramesTotal += res.Summary.FramesTotal
	a.stats.RepsTotal += res.Summary.Reps

	row, events := res.Rows(a.opts.UserID)
	row.SourceHash = hash
	upload := models.RepSessionUpload{Session: row, Events: events}

	if a.opts.DryRun {
		a.log.Info("dry-run: would send",
			"file", relPath,
			"exercise", row.Exercise,
			"reps", row.Reps,
			"frames", row.FramesTotal,
		)
		return nil
	}

	if a.client != nil {
		if err := a.client.SendSession(upload); err != nil {
			return fmt.Errorf("sending session: %w", err)
		}
		a.stats.SessionsSent++
	}

	entry := JournalEntry{
		Path:      relPath,
		Size:      info.Size(),
		Hash:      hash,
		SessionID: res.ID.String(),
		Reps:      res.Summary.Reps,
	}
	if err := a.journal.Record(ctx, entry); err != nil {
		a.log.Warn("failed to mark analyzed", "file", relPath, "error", err)
	}

	a.log.Info("analyzed file",
		"file", relPath,
		"exercise", row.Exercise,
		"reps", row.Reps,
		"frames", row.FramesTotal,
		"skipped_frames", row.FramesSkipped,
	)
	return nil
}

// AnalyzeFile counts reps in one landmark file. The session spans the
// first to last frame timestamp when the file carries them, and otherwise
// ends at the file's modification time.
func AnalyzeFile(ctx context.Context, path string, e repcount.Exercise, layout pose.Layout, opts repcount.Options, log *slog.Logger) (session.Result, error) {
	format, ok := pose.FormatFromPath(path)
	if !ok {
		return session.Result{}, fmt.Errorf("unrecognized landmark file %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return session.Result{}, err
	}
	defer f.Close()

	dec, err := pose.NewDecoder(format, f, layout)
	if err != nil {
		return session.Result{}, err
	}
	td := &timedDecoder{dec: dec}

	sess, err := session.New(e, filepath.Base(path), opts, log)
	if err != nil {
		return session.Result{}, err
	}
	if err := sess.Run(ctx, td, nil); err != nil {
		return session.Result{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	end := td.last
	if td.first.IsZero() {
		info, err := f.Stat()
		if err != nil {
			return session.Result{}, err
		}
		end = info.ModTime()
		sess.StartedAt = end
	} else {
		sess.StartedAt = td.first
	}
	return sess.Finish(end), nil
}

// timedDecoder records the first and last frame timestamps it passes on.
type timedDecoder struct {
	dec         pose.Decoder
	first, last time.Time
}

func (d *timedDecoder) Next() (pose.Frame, error) {
	f, err := d.dec.Next()
	if err == nil && !f.Time.IsZero() {
		if d.first.IsZero() {
			d.first = f.Time
		}
		d.last = f.Time
	}
	return f, err
}

// ExerciseFromPath picks the exercise named in a file's base name, e.g.
// "2026-03-01-squats.jsonl", falling back to def.
func ExerciseFromPath(path string, def repcount.Exercise) repcount.Exercise {
	name := strings.ToLower(filepath.Base(path))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if strings.Contains(name, "push-up") || strings.Contains(name, "push_up") {
		return repcount.Pushup
	}
	for _, word := range strings.FieldsFunc(name, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if e, err := repcount.ParseExercise(word); err == nil {
			return e
		}
	}
	return def
}
