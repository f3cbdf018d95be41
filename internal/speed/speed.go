package speed

import "math"

const (
	// DefaultMinDeltaSeconds guards the finite difference against
	// near-duplicate timestamps (1/240 s, i.e. half a frame at 120fps).
	DefaultMinDeltaSeconds = 1.0 / 240.0

	// DefaultMaxDeltaSeconds caps the gap a speed sample may bridge; a
	// longer gap says nothing useful about instantaneous speed.
	DefaultMaxDeltaSeconds = 0.5

	// metersPerSecondToKmh converts m/s to km/h.
	metersPerSecondToKmh = 3.6

	// NoPeakFrame is the sentinel frame index reported when no finite speed
	// sample exists. It distinguishes "no detectable motion" from a genuine
	// zero-speed reading, which carries a real frame index.
	NoPeakFrame = -1
)

// Observation is a resolved per-frame position in source pixels. Valid is
// false for frames with no authoritative center; such frames are skipped,
// never interpolated.
type Observation struct {
	X       float64
	Y       float64
	TimeSec float64
	Valid   bool
}

// Sample is a per-frame speed reading aligned by index with the input
// observations. Valid is false when the frame has no center, no prior
// centered frame to difference against, or the computation was non-finite.
type Sample struct {
	Kmh   float64 `json:"kmh"`
	Valid bool    `json:"valid"`
}

// Estimate computes per-frame speeds from the ordered observation sequence.
// Each centered frame pairs with the most recent prior centered frame,
// bridging over gaps. The time delta is clamped to [minDelta, maxDelta]
// before dividing so near-duplicate timestamps cannot blow up the quotient
// and long gaps cannot manufacture nonsense speeds. Pixel displacement over
// the clamped delta scales by metersPerPixel into km/h.
func Estimate(obs []Observation, metersPerPixel, minDelta, maxDelta float64) []Sample {
	samples := make([]Sample, len(obs))

	prev := -1
	for i, o := range obs {
		if !o.Valid {
			continue
		}
		if prev < 0 {
			// First centered frame has no predecessor to difference against.
			prev = i
			continue
		}

		p := obs[prev]
		dt := o.TimeSec - p.TimeSec
		if dt < minDelta {
			dt = minDelta
		} else if dt > maxDelta {
			dt = maxDelta
		}

		dist := math.Hypot(o.X-p.X, o.Y-p.Y)
		kmh := dist / dt * metersPerPixel * metersPerSecondToKmh
		if !math.IsNaN(kmh) && !math.IsInf(kmh, 0) {
			samples[i] = Sample{Kmh: kmh, Valid: true}
		}
		prev = i
	}

	return samples
}

// Peak returns the maximum finite speed sample and its frame index. When no
// valid sample exists it reports (0, NoPeakFrame).
func Peak(samples []Sample) (kmh float64, frame int) {
	frame = NoPeakFrame
	for i, s := range samples {
		if !s.Valid {
			continue
		}
		if frame == NoPeakFrame || s.Kmh > kmh {
			kmh = s.Kmh
			frame = i
		}
	}
	if frame == NoPeakFrame {
		return 0, NoPeakFrame
	}
	return kmh, frame
}
