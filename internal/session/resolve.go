package session

import "github.com/speedframe/speedframe/internal/vision"

// CenterSource tags where a frame's authoritative center came from.
type CenterSource int

const (
	// CenterNone marks a frame with no override and no usable detection.
	CenterNone CenterSource = iota
	// CenterOverride marks a frame whose center came from a user override box.
	CenterOverride
	// CenterDetection marks a frame whose center came from the selected
	// automatic detection.
	CenterDetection
)

// String returns the wire name of the source tag.
func (s CenterSource) String() string {
	switch s {
	case CenterOverride:
		return "override"
	case CenterDetection:
		return "detection"
	default:
		return "none"
	}
}

// MarshalJSON encodes the tag as its wire name.
func (s CenterSource) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a wire name back into the tag. Unknown names decode
// as CenterNone.
func (s *CenterSource) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"override"`:
		*s = CenterOverride
	case `"detection"`:
		*s = CenterDetection
	default:
		*s = CenterNone
	}
	return nil
}

// Center is the authoritative per-frame position of the tracked object.
// X and Y are source-space pixels; Confidence is only meaningful for
// CenterDetection.
type Center struct {
	Source     CenterSource `json:"source"`
	X          float64      `json:"x"`
	Y          float64      `json:"y"`
	TimeSec    float64      `json:"time_sec"`
	Confidence float64      `json:"confidence,omitempty"`
}

// resolveCenters derives the authoritative center for every frame. A user
// override box always wins; otherwise the candidate policy picks one
// detection (mapped to source space first); otherwise the frame has no
// center, which stays distinct from a center at the origin.
func resolveCenters(lb vision.Letterbox, frames []vision.FrameDetections, overrides map[int]vision.Box, policy vision.CandidatePolicy) []Center {
	centers := make([]Center, len(frames))
	for i, f := range frames {
		t := f.TimeSec()
		centers[i] = Center{Source: CenterNone, TimeSec: t}

		if ob, ok := overrides[i]; ok {
			x, y := ob.Center()
			centers[i] = Center{Source: CenterOverride, X: x, Y: y, TimeSec: t}
			continue
		}

		if cand, ok := policy(lb.MapToSource(f.Boxes)); ok {
			x, y := cand.Center()
			centers[i] = Center{
				Source:     CenterDetection,
				X:          x,
				Y:          y,
				TimeSec:    t,
				Confidence: cand.Confidence,
			}
		}
	}
	return centers
}
