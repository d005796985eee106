package pose

import (
	"errors"
	"math"
	"strings"
	"testing"
)

const sampleJSONL = `{"seq":1,"joints":{"left_shoulder":{"x":0.5,"y":0.2,"visibility":0.9},"left_elbow":{"x":0.5,"y":0.4},"left_wrist":{"x":0.5,"y":0.6},"nose":{"x":0.5,"y":0.1}}}
{"seq":2,"detected":false}
{"layout":"coco","landmarks":[{"x":0},{"x":0},{"x":0},{"x":0},{"x":0},{"x":0.1,"y":0.2,"visibility":0.8}]}
`

// TestJSONLDecoder verifies named joints, explicit no-pose frames, indexed
// arrays with a per-frame layout, and positional seq numbering.
func TestJSONLDecoder(t *testing.T) {
	frames, err := ReadAll(NewJSONLDecoder(strings.NewReader(sampleJSONL), MediaPipe))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}

	p, ok := frames[0].Pose()
	if !ok {
		t.Fatal("frame 1: expected a pose")
	}
	if p.Len() != 3 {
		t.Errorf("frame 1 joints = %d, want 3 (nose ignored)", p.Len())
	}
	elbow, ok := p.Landmark(JointRef{Left, Elbow}, 0.5)
	if !ok {
		t.Fatal("frame 1: left elbow missing")
	}
	if elbow.Visibility != 1 {
		t.Errorf("default visibility = %v, want 1", elbow.Visibility)
	}

	if _, ok := frames[1].Pose(); ok {
		t.Error("frame 2: expected no pose")
	}

	if frames[2].Seq != 3 {
		t.Errorf("frame 3 seq = %d, want 3", frames[2].Seq)
	}
	p, ok = frames[2].Pose()
	if !ok {
		t.Fatal("frame 3: expected a pose")
	}
	sh, ok := p.Landmark(JointRef{Left, Shoulder}, 0)
	if !ok || sh.X != 0.1 || sh.Y != 0.2 {
		t.Errorf("frame 3 left shoulder = %+v, %v; want COCO index 5", sh, ok)
	}
}

// TestJSONLDecoderMalformed verifies that a broken line is an error, not a
// silently skipped frame.
func TestJSONLDecoderMalformed(t *testing.T) {
	dec := NewJSONLDecoder(strings.NewReader(`{"seq":1}`+"\n"+`{"seq":`), MediaPipe)
	if _, err := dec.Next(); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if _, err := dec.Next(); err == nil {
		t.Fatal("expected error for truncated frame")
	}
}

// TestJSONLDecoderUnknownLayout verifies the layout sentinel propagates.
func TestJSONLDecoderUnknownLayout(t *testing.T) {
	dec := NewJSONLDecoder(strings.NewReader(`{"layout":"openpose","landmarks":[{"x":1}]}`), MediaPipe)
	_, err := dec.Next()
	if !errors.Is(err, ErrUnknownLayout) {
		t.Fatalf("err = %v, want ErrUnknownLayout", err)
	}
}

const sampleCSV = `seq,joint,x,y,visibility
1,left_hip,0.4,0.5,0.9
1,left_knee,0.4,0.7,0.9
1,left_ankle,0.4,0.9,
2,none,,,
3,25,0.3,0.6,0.7
3,nose,0.1,0.1,1
`

// TestCSVDecoder verifies row grouping by seq, the none marker, numeric
// layout indices and skipping of untracked joints.
func TestCSVDecoder(t *testing.T) {
	frames, err := ReadAll(NewCSVDecoder(strings.NewReader(sampleCSV), MediaPipe))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}

	p, ok := frames[0].Pose()
	if !ok || p.Len() != 3 {
		t.Fatalf("frame 1 = %v joints, ok=%v; want 3", p.Len(), ok)
	}
	ankle, _ := p.Landmark(JointRef{Left, Ankle}, 0)
	if ankle.Visibility != 1 {
		t.Errorf("empty visibility column = %v, want 1", ankle.Visibility)
	}

	if _, ok := frames[1].Pose(); ok {
		t.Error("frame 2: expected no pose")
	}

	p, ok = frames[2].Pose()
	if !ok {
		t.Fatal("frame 3: expected a pose")
	}
	knee, ok := p.Landmark(JointRef{Left, Knee}, 0.5)
	if !ok || knee.X != 0.3 {
		t.Errorf("frame 3 left knee = %+v, %v; want index 25", knee, ok)
	}
}

// TestCSVDecoderBadNumber verifies numeric parse failures carry the line.
func TestCSVDecoderBadNumber(t *testing.T) {
	_, err := ReadAll(NewCSVDecoder(strings.NewReader("1,left_hip,abc,0.5\n"), MediaPipe))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "line 1") {
		t.Errorf("err = %v, want line number", err)
	}
}

// TestVisibilityThreshold verifies low-confidence joints read as absent.
func TestVisibilityThreshold(t *testing.T) {
	f := Frame{Detected: true, Landmarks: map[JointRef]Landmark{
		{Left, Wrist}: {X: 1, Y: 1, Visibility: 0.3},
	}}
	p, ok := f.Pose()
	if !ok {
		t.Fatal("expected pose")
	}
	if _, ok := p.Landmark(JointRef{Left, Wrist}, 0.5); ok {
		t.Error("landmark below threshold should be absent")
	}
	if _, ok := p.Landmark(JointRef{Left, Wrist}, 0.3); ok {
		t.Error("landmark exactly at threshold should be absent")
	}
	if _, ok := p.Landmark(JointRef{Left, Wrist}, 0.29); !ok {
		t.Error("landmark above threshold should be present")
	}
}

// TestCSVDecoderNonFinite verifies NaN and infinite values are rejected
// with the offending line rather than passed on to the angle math.
func TestCSVDecoderNonFinite(t *testing.T) {
	for _, in := range []string{
		"1,left_shoulder,NaN,0.5\n",
		"1,left_shoulder,0.5,-Inf\n",
		"1,left_shoulder,0.5,0.5,+Inf\n",
		"seq,joint,x,y\n1,left_hip,0.1,0.1\n2,left_knee,nan,0.2\n",
	} {
		_, err := ReadAll(NewCSVDecoder(strings.NewReader(in), MediaPipe))
		if !errors.Is(err, ErrNonFinite) {
			t.Errorf("%q: err = %v, want ErrNonFinite", in, err)
		}
	}
}

// TestWireFrameNonFinite verifies both wire shapes reject non-finite
// landmark values.
func TestWireFrameNonFinite(t *testing.T) {
	nan := math.NaN()
	named := WireFrame{Joints: map[string]WireLandmark{
		"left_elbow": {X: 0.5, Y: math.Inf(1)},
	}}
	if _, err := named.Frame(MediaPipe); !errors.Is(err, ErrNonFinite) {
		t.Errorf("named joints: err = %v, want ErrNonFinite", err)
	}

	indexed := WireFrame{Landmarks: []WireLandmark{{X: 0.1, Y: 0.1}, {X: 0.2, Y: 0.2, Visibility: &nan}}}
	if _, err := indexed.Frame(MediaPipe); !errors.Is(err, ErrNonFinite) {
		t.Errorf("indexed landmarks: err = %v, want ErrNonFinite", err)
	}
}

// TestLayoutJoint verifies index lookups for tracked and untracked positions.
func TestLayoutJoint(t *testing.T) {
	if ref, ok := MediaPipe.Joint(25); !ok || ref != (JointRef{Left, Knee}) {
		t.Errorf("MediaPipe 25 = %v, %v; want left knee", ref, ok)
	}
	if ref, ok := COCO.Joint(13); !ok || ref != (JointRef{Left, Knee}) {
		t.Errorf("COCO 13 = %v, %v; want left knee", ref, ok)
	}
	for _, i := range []int{0, -1, 99} {
		if _, ok := MediaPipe.Joint(i); ok {
			t.Errorf("MediaPipe %d should not be a tracked joint", i)
		}
	}
}

// TestParseJointRef covers accepted spellings and rejections.
func TestParseJointRef(t *testing.T) {
	ref, err := ParseJointRef("RIGHT_Knee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != (JointRef{Right, Knee}) {
		t.Errorf("ref = %v, want right_knee", ref)
	}
	if ref.String() != "right_knee" {
		t.Errorf("String() = %q", ref.String())
	}
	for _, bad := range []string{"nose", "middle_knee", "left_toe"} {
		if _, err := ParseJointRef(bad); err == nil {
			t.Errorf("ParseJointRef(%q): expected error", bad)
		}
	}
}

// TestFormatFromPath verifies extension sniffing.
func TestFormatFromPath(t *testing.T) {
	if f, ok := FormatFromPath("a/b/set1.JSONL"); !ok || f != FormatJSONL {
		t.Errorf("jsonl = %q, %v", f, ok)
	}
	if f, ok := FormatFromPath("x.csv"); !ok || f != FormatCSV {
		t.Errorf("csv = %q, %v", f, ok)
	}
	if _, ok := FormatFromPath("clip.mp4"); ok {
		t.Error("mp4 should not be recognised")
	}
}
