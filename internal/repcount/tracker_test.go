package repcount

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/claude/repcounter/internal/pose"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// armFrame builds a frame whose joint triple on side forms angle degrees.
func armFrame(seq uint64, e Exercise, side pose.Side, angle, vis float64) pose.Frame {
	rule, _ := RuleFor(e)
	refs := rule.Triple(side)
	rad := angle * math.Pi / 180
	vertex := pose.Landmark{X: 0.5, Y: 0.5, Visibility: vis}
	return pose.Frame{
		Seq:      seq,
		Detected: true,
		Landmarks: map[pose.JointRef]pose.Landmark{
			refs[0]: {X: 0.5, Y: 0.3, Visibility: vis},
			refs[1]: vertex,
			refs[2]: {X: 0.5 + 0.2*math.Sin(rad), Y: 0.5 - 0.2*math.Cos(rad), Visibility: vis},
		},
	}
}

func newTracker(t *testing.T, e Exercise, opts Options) *Tracker {
	t.Helper()
	tr, err := NewTracker(e, opts, quietLog())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr
}

// TestTrackerTrace verifies the tracker reproduces the push-up trace from
// landmark geometry and reports the measured angle.
func TestTrackerTrace(t *testing.T) {
	tr := newTracker(t, Pushup, DefaultOptions())
	angles := []float64{170, 175, 85, 80, 165, 88}
	want := []step{{"up", 0}, {"up", 0}, {"down", 1}, {"down", 1}, {"up", 1}, {"down", 2}}

	for i, a := range angles {
		snap := tr.Observe(armFrame(uint64(i+1), Pushup, pose.Left, a, 0.9))
		if got := (step{snap.Stage, snap.Reps}); got != want[i] {
			t.Errorf("frame %d = %+v, want %+v", i, got, want[i])
		}
		if snap.Angle == nil || !near(*snap.Angle, a) {
			t.Errorf("frame %d angle = %v, want %v", i, snap.Angle, a)
		}
	}

	reps := tr.Reps()
	if len(reps) != 2 {
		t.Fatalf("reps = %d, want 2", len(reps))
	}
	if !near(reps[0].MinAngle, 80) || reps[0].Seq != 3 {
		t.Errorf("rep 1 = %+v, want min 80 counted at seq 3", reps[0])
	}
}

// TestTrackerMissingLandmarks verifies that frames with no pose, missing
// joints or low visibility keep the previous count and stage in both modes.
func TestTrackerMissingLandmarks(t *testing.T) {
	for _, e := range Exercises {
		tr := newTracker(t, e, DefaultOptions())
		tr.Observe(armFrame(1, e, pose.Left, 170, 0.9))
		before := tr.Observe(armFrame(2, e, pose.Left, 60, 0.9))

		partial := armFrame(4, e, pose.Left, 170, 0.9)
		delete(partial.Landmarks, tr.rule.Triple(pose.Left)[2])

		for _, f := range []pose.Frame{
			pose.NoPose(3, time.Time{}),
			partial,
			armFrame(5, e, pose.Left, 170, 0.2),
			armFrame(6, e, pose.Right, 170, 0.9),
		} {
			snap := tr.Observe(f)
			if snap.Detected {
				t.Errorf("%s seq %d: Detected = true", e, f.Seq)
			}
			if snap.Reps != before.Reps || snap.Stage != before.Stage {
				t.Errorf("%s seq %d: %d/%q, want %d/%q", e, f.Seq, snap.Reps, snap.Stage, before.Reps, before.Stage)
			}
		}

		sum := tr.Summary()
		if sum.FramesSkipped != 4 || sum.FramesTotal != 6 {
			t.Errorf("%s summary = %+v, want 4 skipped of 6", e, sum)
		}
	}
}

// TestTrackerSides verifies right and auto side selection.
func TestTrackerSides(t *testing.T) {
	opts := DefaultOptions()
	opts.Side = SideRight
	tr := newTracker(t, Squat, opts)
	tr.Observe(armFrame(1, Squat, pose.Right, 170, 0.9))
	if snap := tr.Observe(armFrame(2, Squat, pose.Right, 70, 0.9)); snap.Reps != 1 {
		t.Errorf("right side reps = %d, want 1", snap.Reps)
	}

	opts.Side = SideAuto
	tr = newTracker(t, Squat, opts)

	// left says straight, right (more visible) says deep
	f := armFrame(1, Squat, pose.Left, 170, 0.6)
	for ref, lm := range armFrame(1, Squat, pose.Right, 70, 0.95).Landmarks {
		f.Landmarks[ref] = lm
	}
	snap := tr.Observe(f)
	if snap.Angle == nil || !near(*snap.Angle, 70) {
		t.Errorf("auto side angle = %v, want 70 from the right side", snap.Angle)
	}
}

// TestTrackerResetAndSwitch verifies Reset and SetExercise clear the count.
func TestTrackerResetAndSwitch(t *testing.T) {
	tr := newTracker(t, Pushup, DefaultOptions())
	tr.Observe(armFrame(1, Pushup, pose.Left, 170, 1))
	tr.Observe(armFrame(2, Pushup, pose.Left, 60, 1))
	if tr.State().Reps != 1 {
		t.Fatalf("reps = %d, want 1", tr.State().Reps)
	}

	tr.Reset()
	if s := tr.State(); s.Reps != 0 || s.Phase != PhaseUnset {
		t.Errorf("after Reset = %+v", s)
	}

	if err := tr.SetExercise(Squat); err != nil {
		t.Fatalf("SetExercise: %v", err)
	}
	if s := tr.Last(); s.Exercise != Squat || s.Stage != "" || s.Reps != 0 {
		t.Errorf("after switch = %+v", s)
	}
	if err := tr.SetExercise(Exercise(99)); err == nil {
		t.Error("expected error for unknown exercise")
	}
}

// TestTrackerDegenerate verifies coincident joints are counted as
// degenerate but processed.
func TestTrackerDegenerate(t *testing.T) {
	tr := newTracker(t, Pushup, DefaultOptions())
	p := pose.Landmark{X: 0.4, Y: 0.4, Visibility: 1}
	f := pose.Frame{Seq: 1, Detected: true, Landmarks: map[pose.JointRef]pose.Landmark{
		{Side: pose.Left, Joint: pose.Shoulder}: p,
		{Side: pose.Left, Joint: pose.Elbow}:    p,
		{Side: pose.Left, Joint: pose.Wrist}:    p,
	}}
	snap := tr.Observe(f)
	if !snap.Detected {
		t.Error("degenerate frame should still be processed")
	}
	if got := tr.Summary().DegenerateFrames; got != 1 {
		t.Errorf("DegenerateFrames = %d, want 1", got)
	}
}

// TestTrackerNonFinite verifies a frame with a NaN or infinite coordinate
// is skipped like a missing joint and never reaches the depth statistics.
func TestTrackerNonFinite(t *testing.T) {
	tr := newTracker(t, Pushup, DefaultOptions())
	tr.Observe(armFrame(1, Pushup, pose.Left, 170, 0.9))
	before := tr.Observe(armFrame(2, Pushup, pose.Left, 80, 0.9))

	wrist := pose.JointRef{Side: pose.Left, Joint: pose.Wrist}
	for i, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		f := armFrame(uint64(3+i), Pushup, pose.Left, 60, 0.9)
		lm := f.Landmarks[wrist]
		lm.X = v
		f.Landmarks[wrist] = lm

		snap := tr.Observe(f)
		if snap.Detected || snap.Angle != nil {
			t.Errorf("seq %d: snapshot = %+v, want undetected without angle", f.Seq, snap)
		}
		if snap.Reps != before.Reps || snap.Stage != before.Stage {
			t.Errorf("seq %d: %d/%q, want %d/%q", f.Seq, snap.Reps, snap.Stage, before.Reps, before.Stage)
		}
	}

	sum := tr.Summary()
	if sum.FramesSkipped != 3 {
		t.Errorf("FramesSkipped = %d, want 3", sum.FramesSkipped)
	}
	if !near(sum.Depth.Min, 80) || math.IsNaN(sum.Depth.Mean) {
		t.Errorf("depth = %+v, want min 80 and finite mean", sum.Depth)
	}
}

// TestNewTrackerRejectsBadThresholds verifies option validation.
func TestNewTrackerRejectsBadThresholds(t *testing.T) {
	opts := DefaultOptions()
	opts.Thresholds = Thresholds{Upper: 80, Lower: 100}
	if _, err := NewTracker(Pushup, opts, nil); err == nil {
		t.Fatal("expected error")
	}
}
