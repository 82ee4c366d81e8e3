package nav

import "math"

// NormalizeHeading returns (h + delta) folded into [0, 360).
func NormalizeHeading(h, delta float64) float64 {
	n := math.Mod(math.Mod(h+delta, 360)+360, 360)
	// math.Mod can round -tiny+360 up to exactly 360
	if n >= 360 {
		n = 0
	}
	return n
}

// turnDelta is the signed heading change of a turn: left increases heading.
func turnDelta(side Side, angle float64) float64 {
	if side == SideLeft {
		return angle
	}
	return -angle
}

// MergeCompensation folds a pending lateral drift into the magnitude of the next turn.
//
// The drift direction is the heading pointing back across the drift
// (heading-90 for a left drift, heading+90 for a right drift). When the turn
// ends up facing roughly the same way (within 90 degrees) the turn is reduced by
// the drift, otherwise it is increased. The result never goes below zero.
func MergeCompensation(heading float64, side Side, angle, comp float64) float64 {
	if comp == 0 {
		return angle
	}

	var lateralHeading float64
	if comp > 0 {
		lateralHeading = NormalizeHeading(heading, -90)
	} else {
		lateralHeading = NormalizeHeading(heading, 90)
	}
	resulting := NormalizeHeading(heading, turnDelta(side, angle))

	diff := math.Abs(NormalizeHeading(lateralHeading, -resulting))
	sameDirection := diff < 90 || diff > 270

	mag := math.Abs(comp)
	if sameDirection {
		return math.Max(angle-mag, 0)
	}
	return angle + mag
}
