// Package session drives a repetition tracker over a stream of frames and
// keeps the live sessions fed by remote pose estimators.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/repcounter/internal/models"
	"github.com/claude/repcounter/internal/pose"
	"github.com/claude/repcounter/internal/repcount"
	"github.com/google/uuid"
)

// Session is one counting session. Frames are applied one at a time under
// the session's lock, so a session has a single writer.
type Session struct {
	ID        uuid.UUID
	Owner     int
	Source    string
	StartedAt time.Time

	mu       sync.Mutex
	tracker  *repcount.Tracker
	lastSeen time.Time
	closed   bool

	subsMu sync.Mutex
	subs   map[chan repcount.Snapshot]struct{}
}

// New starts a session for an exercise.
func New(e repcount.Exercise, source string, opts repcount.Options, log *slog.Logger) (*Session, error) {
	tr, err := repcount.NewTracker(e, opts, log)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		ID:        uuid.New(),
		Source:    source,
		StartedAt: now,
		tracker:   tr,
		lastSeen:  now,
		subs:      make(map[chan repcount.Snapshot]struct{}),
	}, nil
}

// ErrClosed is returned when changing a session that has already finished.
var ErrClosed = errors.New("session finished")

// Apply feeds frames in order and returns the snapshot after the last one.
func (s *Session) Apply(frames []pose.Frame) (repcount.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return repcount.Snapshot{}, ErrClosed
	}
	s.lastSeen = time.Now()
	for _, f := range frames {
		s.broadcast(s.tracker.Observe(f))
	}
	return s.tracker.Last(), nil
}

// Snapshot returns the current overlay view without applying a frame.
func (s *Session) Snapshot() repcount.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Last()
}

// Reset zeroes the count and stage.
func (s *Session) Reset() (repcount.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return repcount.Snapshot{}, ErrClosed
	}
	s.lastSeen = time.Now()
	s.tracker.Reset()
	s.broadcast(s.tracker.Last())
	return s.tracker.Last(), nil
}

// SetExercise switches exercise, which also resets the count.
func (s *Session) SetExercise(e repcount.Exercise) (repcount.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return repcount.Snapshot{}, ErrClosed
	}
	s.lastSeen = time.Now()
	if err := s.tracker.SetExercise(e); err != nil {
		return repcount.Snapshot{}, err
	}
	s.broadcast(s.tracker.Last())
	return s.tracker.Last(), nil
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Result is a finished session.
type Result struct {
	ID        uuid.UUID        `json:"id"`
	Owner     int              `json:"-"`
	Source    string           `json:"source"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
	Summary   repcount.Summary `json:"summary"`
	Reps      []repcount.Rep   `json:"reps"`
}

// Finish closes the session at end and returns its result. Subscribers
// are disconnected.
func (s *Session) Finish(end time.Time) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.closeSubscribers()
	}

	return Result{
		ID:        s.ID,
		Owner:     s.Owner,
		Source:    s.Source,
		StartedAt: s.StartedAt,
		EndedAt:   end,
		Summary:   s.tracker.Summary(),
		Reps:      s.tracker.Reps(),
	}
}

// Rows converts a result into the rows persisted for a user.
func (r Result) Rows(userID int) (models.RepSessionRow, []models.RepEventRow) {
	row := models.RepSessionRow{
		ID:               r.ID,
		UserID:           userID,
		Exercise:         r.Summary.Exercise.String(),
		Source:           r.Source,
		StartedAt:        r.StartedAt,
		EndedAt:          r.EndedAt,
		Reps:             r.Summary.Reps,
		FramesTotal:      r.Summary.FramesTotal,
		FramesSkipped:    r.Summary.FramesSkipped,
		DegenerateFrames: r.Summary.DegenerateFrames,
	}
	if r.Summary.Reps > 0 {
		d := r.Summary.Depth
		row.DepthMean, row.DepthStdDev, row.DepthMin, row.DepthMax = &d.Mean, &d.StdDev, &d.Min, &d.Max
	}

	events := make([]models.RepEventRow, 0, len(r.Reps))
	for _, rep := range r.Reps {
		ev := models.RepEventRow{
			SessionID: r.ID,
			UserID:    userID,
			Number:    rep.Number,
			Seq:       int64(rep.Seq),
			MinAngle:  rep.MinAngle,
		}
		if !rep.At.IsZero() {
			at := rep.At
			ev.At = &at
		}
		events = append(events, ev)
	}
	return row, events
}

// Run feeds every frame from dec through the session, calling onFrame (if
// non-nil) with each snapshot. It stops between frames when ctx is done.
// No-pose frames are not errors; a malformed stream is.
func (s *Session) Run(ctx context.Context, dec pose.Decoder, onFrame func(repcount.Snapshot)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading frames: %w", err)
		}

		snap, err := s.Apply([]pose.Frame{f})
		if err != nil {
			return err
		}
		if onFrame != nil {
			onFrame(snap)
		}
	}
}
