package repcount

// State is the per-session counter state. The zero value of Phase is unset.
type State struct {
	Exercise Exercise
	Phase    Phase
	Reps     int
}

// NewState returns the start-of-session state for an exercise.
func NewState(e Exercise) State {
	return State{Exercise: e}
}

// Stage returns the exercise-specific label of the current phase.
func (s State) Stage() string {
	return rules[s.Exercise].Label(s.Phase)
}

// Step applies one frame's angle and returns the next state, and whether a
// repetition was counted on this frame.
//
// Above Upper the machine enters the relaxed phase. Below Lower it moves to
// contracted and counts, but only from relaxed. Angles in [Lower, Upper]
// change nothing.
func Step(s State, t Thresholds, angle float64) (State, bool) {
	switch {
	case angle > t.Upper:
		s.Phase = PhaseRelaxed
	case angle < t.Lower && s.Phase == PhaseRelaxed:
		s.Phase = PhaseContracted
		s.Reps++
		return s, true
	}
	return s, false
}
