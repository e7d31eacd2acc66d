package physics

import "math"

// DilationFactor returns sqrt(max(floor, 1 - rs/r)), the rate of a static
// clock at r relative to one at infinity. The floor keeps it finite and
// non-zero at and below the horizon.
func DilationFactor(rs, r, floor float64) float64 {
	return math.Sqrt(math.Max(floor, 1-rs/r))
}

// Opacity maps the dilation factor onto [0, 1] so that a body at infinity is
// fully opaque and a body at the floor is fully transparent. For any r above
// the floor the result is strictly below the raw dilation factor.
func Opacity(rs, r, floor float64) float64 {
	base := math.Sqrt(floor)
	if base >= 1 {
		return 0
	}
	o := (DilationFactor(rs, r, floor) - base) / (1 - base)
	return math.Min(1, math.Max(0, o))
}
