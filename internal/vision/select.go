package vision

// CandidatePolicy reduces one frame's detections to the single box treated
// as the tracked object. The second return is false when no candidate
// qualifies. The pipeline assumes one object of interest per run, so the
// policy is the only place that assumption lives; swapping the policy is how
// multi-object behaviour would be introduced.
type CandidatePolicy func(boxes []Box) (Box, bool)

// SelectTopConfidence picks the box with the highest confidence. Ties go to
// the first-encountered box so the result is deterministic for a given
// input order.
func SelectTopConfidence(boxes []Box) (Box, bool) {
	if len(boxes) == 0 {
		return Box{}, false
	}
	best := boxes[0]
	for _, b := range boxes[1:] {
		if b.Confidence > best.Confidence {
			best = b
		}
	}
	return best, true
}

// SelectNearestGated returns a policy that picks the detection whose center
// is statistically nearest the current track prediction, rejecting any
// candidate outside the gate. dist2 is a squared-distance function (for
// example Estimator.Mahalanobis2) evaluated at each candidate center;
// gate is the maximum accepted squared distance.
func SelectNearestGated(dist2 func(x, y float64) float64, gate float64) CandidatePolicy {
	return func(boxes []Box) (Box, bool) {
		best := Box{}
		bestDist2 := gate
		found := false
		for _, b := range boxes {
			cx, cy := b.Center()
			if d := dist2(cx, cy); d < bestDist2 {
				bestDist2 = d
				best = b
				found = true
			}
		}
		return best, found
	}
}
