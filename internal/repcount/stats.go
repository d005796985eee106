package repcount

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DepthStats summarises the deepest angle of each counted rep. Lower angles
// mean deeper reps. All fields are zero when no rep was counted.
type DepthStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Depth computes depth statistics over reps.
func Depth(reps []Rep) DepthStats {
	if len(reps) == 0 {
		return DepthStats{}
	}

	angles := make([]float64, len(reps))
	for i, r := range reps {
		angles[i] = r.MinAngle
	}

	ds := DepthStats{
		Mean: stat.Mean(angles, nil),
		Min:  floats.Min(angles),
		Max:  floats.Max(angles),
	}
	// sample stddev is undefined for a single rep
	if len(angles) > 1 {
		ds.StdDev = stat.StdDev(angles, nil)
	}
	return ds
}
