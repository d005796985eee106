// Package repcount counts exercise repetitions from a joint angle using a
// two-state hysteresis machine.
package repcount

import (
	"errors"
	"fmt"
	"strings"

	"github.com/claude/repcounter/internal/pose"
)

// ErrUnknownExercise is returned when parsing an exercise name that has no rule.
var ErrUnknownExercise = errors.New("unknown exercise")

// Exercise selects which joint triple and labels the counter uses.
type Exercise int

const (
	Pushup Exercise = iota
	Squat
)

// Exercises lists every supported exercise.
var Exercises = []Exercise{Pushup, Squat}

func (e Exercise) String() string {
	switch e {
	case Pushup:
		return "pushup"
	case Squat:
		return "squat"
	}
	return fmt.Sprintf("exercise(%d)", int(e))
}

// ParseExercise accepts "pushup"/"pushups"/"push-up" and "squat"/"squats".
func ParseExercise(s string) (Exercise, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pushup", "pushups", "push-up", "push-ups", "push_up":
		return Pushup, nil
	case "squat", "squats":
		return Squat, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownExercise, s)
}

// MarshalText implements encoding.TextMarshaler.
func (e Exercise) MarshalText() ([]byte, error) {
	if _, ok := rules[e]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownExercise, int(e))
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Exercise) UnmarshalText(b []byte) error {
	v, err := ParseExercise(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Phase is the position of the two-state machine. Its label depends on the
// exercise, see Rule.Label.
type Phase int

const (
	PhaseUnset Phase = iota
	PhaseRelaxed
	PhaseContracted
)

// Thresholds bound the dead zone of the state machine, in degrees.
type Thresholds struct {
	Upper float64
	Lower float64
}

// DefaultThresholds apply to every exercise unless overridden.
var DefaultThresholds = Thresholds{Upper: 160, Lower: 90}

// Validate checks 0 < Lower < Upper <= 180.
func (t Thresholds) Validate() error {
	if t.Lower <= 0 || t.Upper > 180 || t.Lower >= t.Upper {
		return fmt.Errorf("thresholds must satisfy 0 < lower < upper <= 180, got lower=%v upper=%v", t.Lower, t.Upper)
	}
	return nil
}

// Rule describes one exercise: the joints measured and the stage labels.
type Rule struct {
	Exercise   Exercise
	Joints     [3]pose.Joint
	Relaxed    string
	Contracted string
}

// Label returns the stage label for a phase; unset has an empty label.
func (r Rule) Label(p Phase) string {
	switch p {
	case PhaseRelaxed:
		return r.Relaxed
	case PhaseContracted:
		return r.Contracted
	}
	return ""
}

// Triple returns the proximal, vertex and distal joints on one side.
func (r Rule) Triple(side pose.Side) [3]pose.JointRef {
	return [3]pose.JointRef{
		{Side: side, Joint: r.Joints[0]},
		{Side: side, Joint: r.Joints[1]},
		{Side: side, Joint: r.Joints[2]},
	}
}

var rules = map[Exercise]Rule{
	Pushup: {
		Exercise:   Pushup,
		Joints:     [3]pose.Joint{pose.Shoulder, pose.Elbow, pose.Wrist},
		Relaxed:    "up",
		Contracted: "down",
	},
	Squat: {
		Exercise:   Squat,
		Joints:     [3]pose.Joint{pose.Hip, pose.Knee, pose.Ankle},
		Relaxed:    "standing",
		Contracted: "squatting",
	},
}

// RuleFor returns the rule for an exercise.
func RuleFor(e Exercise) (Rule, error) {
	r, ok := rules[e]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %d", ErrUnknownExercise, int(e))
	}
	return r, nil
}
