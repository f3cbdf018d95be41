// Package speed converts resolved per-frame positions into real-world
// speeds: calibration from user-marked reference points, robust
// finite-difference speed samples, peak extraction, and run-level summary
// statistics.
package speed

import (
	"fmt"
	"math"
)

// Point is a 2D position in display pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Calibration scales source-space pixel distance to meters.
type Calibration struct {
	MetersPerPixel float64 `json:"meters_per_pixel"`
}

// ResolveCalibration derives meters-per-pixel from two reference points
// marked on a rendered view of the source video plus the known real-world
// distance between them. The display shows the source letterboxed with a
// "contain" fit, so display distance divides by min(displayW/sourceW,
// displayH/sourceH) to recover true source pixels. Invalid input returns an
// error and must leave any stored calibration untouched.
func ResolveCalibration(p1, p2 Point, displayW, displayH, sourceW, sourceH, referenceMeters float64) (Calibration, error) {
	if math.IsNaN(referenceMeters) || math.IsInf(referenceMeters, 0) || referenceMeters <= 0 {
		return Calibration{}, fmt.Errorf("reference length must be a positive finite number of meters, got %v", referenceMeters)
	}
	if sourceW <= 0 || sourceH <= 0 {
		return Calibration{}, fmt.Errorf("source dimensions not known yet (%vx%v)", sourceW, sourceH)
	}
	if displayW <= 0 || displayH <= 0 {
		return Calibration{}, fmt.Errorf("display dimensions not known yet (%vx%v)", displayW, displayH)
	}

	scale := displayW / sourceW
	if s := displayH / sourceH; s < scale {
		scale = s
	}

	dx := p2.X - p1.X
	dy := p2.Y - p1.Y
	displayDist := math.Hypot(dx, dy)
	sourceDist := displayDist / scale
	if sourceDist <= 0 || math.IsNaN(sourceDist) || math.IsInf(sourceDist, 0) {
		return Calibration{}, fmt.Errorf("calibration points coincide or resolve to a non-positive pixel distance")
	}

	return Calibration{MetersPerPixel: referenceMeters / sourceDist}, nil
}
