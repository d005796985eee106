package repcount

import (
	"math"

	"github.com/claude/repcounter/internal/pose"
)

// minRayLength is the normalized distance below which a ray is too short
// for its direction to mean anything.
const minRayLength = 1e-6

// Angle returns the angle at vertex b between rays b→a and b→c, in degrees,
// in the range [0, 180].
//
// Coincident points make atan2(0, 0) contribute 0, so the result is finite
// but arbitrary; use Degenerate to detect that case.
func Angle(a, b, c pose.Point) float64 {
	radians := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	angle := math.Abs(radians * 180.0 / math.Pi)
	if angle > 180.0 {
		angle = 360.0 - angle
	}
	return angle
}

// Degenerate reports whether either ray of the angle at b has (near) zero
// length, making the angle numerically meaningless.
func Degenerate(a, b, c pose.Point) bool {
	return math.Hypot(a.X-b.X, a.Y-b.Y) < minRayLength ||
		math.Hypot(c.X-b.X, c.Y-b.Y) < minRayLength
}
