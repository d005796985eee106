// Package pose holds the landmark data produced by an external body-pose
// estimator and the decoders that read it from frame streams.
package pose

import (
	"fmt"
	"strings"
	"time"
)

// Side is the body side a joint belongs to.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// Joint is a tracked body joint, independent of side.
type Joint int

const (
	Shoulder Joint = iota
	Elbow
	Wrist
	Hip
	Knee
	Ankle
)

var jointNames = [...]string{
	Shoulder: "shoulder",
	Elbow:    "elbow",
	Wrist:    "wrist",
	Hip:      "hip",
	Knee:     "knee",
	Ankle:    "ankle",
}

func (j Joint) String() string {
	if j < 0 || int(j) >= len(jointNames) {
		return fmt.Sprintf("joint(%d)", int(j))
	}
	return jointNames[j]
}

// JointRef names one joint on one side, e.g. left_elbow.
type JointRef struct {
	Side  Side
	Joint Joint
}

func (r JointRef) String() string {
	return r.Side.String() + "_" + r.Joint.String()
}

// ParseJointRef parses names like "left_elbow" or "RIGHT_KNEE".
func ParseJointRef(s string) (JointRef, error) {
	side, joint, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "_")
	if !ok {
		return JointRef{}, fmt.Errorf("invalid joint name %q", s)
	}

	var ref JointRef
	switch side {
	case "left":
		ref.Side = Left
	case "right":
		ref.Side = Right
	default:
		return JointRef{}, fmt.Errorf("invalid side in joint name %q", s)
	}

	for i, name := range jointNames {
		if name == joint {
			ref.Joint = Joint(i)
			return ref, nil
		}
	}
	return JointRef{}, fmt.Errorf("unknown joint in joint name %q", s)
}

// Point is a 2-D point in normalized image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Landmark is a joint position with the estimator's visibility score in [0,1].
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

// Point drops the visibility score.
func (l Landmark) Point() Point {
	return Point{X: l.X, Y: l.Y}
}

// Frame is the estimator output for one video frame. Detected is false when
// the estimator found no body in the frame; Landmarks is then empty.
type Frame struct {
	Seq       uint64
	Time      time.Time
	Detected  bool
	Landmarks map[JointRef]Landmark
}

// NoPose returns a frame carrying the explicit "no pose detected" signal.
func NoPose(seq uint64, t time.Time) Frame {
	return Frame{Seq: seq, Time: t}
}

// Pose returns the frame's landmarks, or false when no pose was detected.
func (f Frame) Pose() (Pose, bool) {
	if !f.Detected || len(f.Landmarks) == 0 {
		return Pose{}, false
	}
	return Pose{landmarks: f.Landmarks}, true
}

// Pose is a detected body pose. It is only obtainable through Frame.Pose so
// the absent case has to be handled by the caller.
type Pose struct {
	landmarks map[JointRef]Landmark
}

// Landmark looks up one joint. A joint is present only when its visibility
// is strictly above minVisibility.
func (p Pose) Landmark(ref JointRef, minVisibility float64) (Landmark, bool) {
	lm, ok := p.landmarks[ref]
	if !ok || lm.Visibility <= minVisibility {
		return Landmark{}, false
	}
	return lm, true
}

// Len reports how many joints the pose carries.
func (p Pose) Len() int {
	return len(p.landmarks)
}
