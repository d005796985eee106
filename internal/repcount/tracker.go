package repcount

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/claude/repcounter/internal/pose"
)

// SideMode picks which body side supplies the joint triple.
type SideMode int

const (
	SideLeft SideMode = iota
	SideRight
	// SideAuto uses whichever side's three joints are most visible this frame.
	SideAuto
)

func (m SideMode) String() string {
	switch m {
	case SideRight:
		return "right"
	case SideAuto:
		return "auto"
	}
	return "left"
}

// ParseSideMode accepts left, right or auto. Empty means left.
func ParseSideMode(s string) (SideMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "left":
		return SideLeft, nil
	case "right":
		return SideRight, nil
	case "auto":
		return SideAuto, nil
	}
	return 0, fmt.Errorf("invalid side %q (want left, right or auto)", s)
}

// Options tune a Tracker.
type Options struct {
	Thresholds    Thresholds
	MinVisibility float64
	Side          SideMode
}

// DefaultOptions returns the stock 160/90 thresholds, 0.5 minimum
// visibility and the left side.
func DefaultOptions() Options {
	return Options{
		Thresholds:    DefaultThresholds,
		MinVisibility: 0.5,
		Side:          SideLeft,
	}
}

// Snapshot is what an overlay needs to draw for the current frame.
type Snapshot struct {
	Exercise Exercise `json:"exercise"`
	Reps     int      `json:"reps"`
	Stage    string   `json:"stage"`
	Seq      uint64   `json:"seq"`
	Detected bool     `json:"detected"`
	Angle    *float64 `json:"angle,omitempty"`
}

// Rep is one counted repetition. MinAngle is the deepest angle reached
// while contracted and keeps shrinking until the next relaxed phase.
type Rep struct {
	Number   int       `json:"number"`
	Seq      uint64    `json:"seq"`
	At       time.Time `json:"at,omitzero"`
	MinAngle float64   `json:"min_angle"`
}

// Tracker runs the state machine over frames for a single session. It is
// not safe for concurrent use.
type Tracker struct {
	opts  Options
	rule  Rule
	state State
	reps  []Rep
	log   *slog.Logger

	frames     int
	skipped    int
	degenerate int
	last       Snapshot
}

// NewTracker creates a tracker at the start-of-session state.
func NewTracker(e Exercise, opts Options, log *slog.Logger) (*Tracker, error) {
	rule, err := RuleFor(e)
	if err != nil {
		return nil, err
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	t := &Tracker{opts: opts, rule: rule, log: log}
	t.Reset()
	return t, nil
}

// Observe applies one frame. Frames without a pose, or without all three
// joints visible, leave the count and stage untouched.
func (t *Tracker) Observe(f pose.Frame) Snapshot {
	t.frames++

	a, b, c, ok := t.triple(f)
	if !ok {
		t.skipped++
		t.last = t.snapshot(f.Seq, false, nil)
		return t.last
	}

	// non-finite coordinates are treated like missing joints
	angle := Angle(a, b, c)
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		t.skipped++
		t.last = t.snapshot(f.Seq, false, nil)
		return t.last
	}

	if Degenerate(a, b, c) {
		t.degenerate++
		t.log.Debug("degenerate joint geometry",
			"seq", f.Seq,
			"exercise", t.state.Exercise.String(),
		)
	}

	next, counted := Step(t.state, t.opts.Thresholds, angle)
	t.state = next

	switch {
	case counted:
		t.reps = append(t.reps, Rep{Number: next.Reps, Seq: f.Seq, At: f.Time, MinAngle: angle})
	case next.Phase == PhaseContracted && len(t.reps) > 0:
		last := &t.reps[len(t.reps)-1]
		last.MinAngle = math.Min(last.MinAngle, angle)
	}

	t.last = t.snapshot(f.Seq, true, &angle)
	return t.last
}

func (t *Tracker) triple(f pose.Frame) (a, b, c pose.Point, ok bool) {
	p, detected := f.Pose()
	if !detected {
		return
	}

	switch t.opts.Side {
	case SideRight:
		return t.sideTriple(p, pose.Right)
	case SideAuto:
		la, lb, lc, lok, lvis := t.visibleTriple(p, pose.Left)
		ra, rb, rc, rok, rvis := t.visibleTriple(p, pose.Right)
		if rok && (!lok || rvis > lvis) {
			return ra, rb, rc, true
		}
		return la, lb, lc, lok
	}
	return t.sideTriple(p, pose.Left)
}

func (t *Tracker) sideTriple(p pose.Pose, side pose.Side) (a, b, c pose.Point, ok bool) {
	a, b, c, ok, _ = t.visibleTriple(p, side)
	return
}

// visibleTriple also returns the lowest visibility of the three joints.
func (t *Tracker) visibleTriple(p pose.Pose, side pose.Side) (a, b, c pose.Point, ok bool, minVis float64) {
	refs := t.rule.Triple(side)
	var pts [3]pose.Point
	minVis = math.Inf(1)
	for i, ref := range refs {
		lm, found := p.Landmark(ref, t.opts.MinVisibility)
		if !found {
			return pose.Point{}, pose.Point{}, pose.Point{}, false, 0
		}
		pts[i] = lm.Point()
		minVis = math.Min(minVis, lm.Visibility)
	}
	return pts[0], pts[1], pts[2], true, minVis
}

func (t *Tracker) snapshot(seq uint64, detected bool, angle *float64) Snapshot {
	return Snapshot{
		Exercise: t.state.Exercise,
		Reps:     t.state.Reps,
		Stage:    t.state.Stage(),
		Seq:      seq,
		Detected: detected,
		Angle:    angle,
	}
}

// State returns the current counter state.
func (t *Tracker) State() State {
	return t.state
}

// Last returns the snapshot produced by the most recent frame, or the
// start-of-session snapshot.
func (t *Tracker) Last() Snapshot {
	return t.last
}

// Reps returns a copy of the counted repetitions.
func (t *Tracker) Reps() []Rep {
	out := make([]Rep, len(t.reps))
	copy(out, t.reps)
	return out
}

// Reset zeroes the count, clears the stage and forgets frame counters.
func (t *Tracker) Reset() {
	t.state = NewState(t.rule.Exercise)
	t.reps = nil
	t.frames, t.skipped, t.degenerate = 0, 0, 0
	t.last = t.snapshot(0, false, nil)
}

// SetExercise switches the exercise and resets the session.
func (t *Tracker) SetExercise(e Exercise) error {
	rule, err := RuleFor(e)
	if err != nil {
		return err
	}
	t.rule = rule
	t.Reset()
	return nil
}

// Summary aggregates the session so far.
type Summary struct {
	Exercise         Exercise   `json:"exercise"`
	Reps             int        `json:"reps"`
	FramesTotal      int        `json:"frames_total"`
	FramesSkipped    int        `json:"frames_skipped"`
	DegenerateFrames int        `json:"degenerate_frames"`
	Depth            DepthStats `json:"depth"`
}

// Summary returns counters and depth statistics for the session so far.
func (t *Tracker) Summary() Summary {
	return Summary{
		Exercise:         t.state.Exercise,
		Reps:             t.state.Reps,
		FramesTotal:      t.frames,
		FramesSkipped:    t.skipped,
		DegenerateFrames: t.degenerate,
		Depth:            Depth(t.reps),
	}
}
