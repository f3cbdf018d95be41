// Package vision holds the detection-side domain types: bounding boxes as
// emitted by the external object detector, per-frame detection batches, and
// the geometry that maps between the detector's model input space and the
// native pixel space of the source video.
package vision

// Box is an axis-aligned detection rectangle with a confidence score in
// [0, 1]. Coordinates are in whichever space the producer declared: the
// detector emits model-space boxes; Letterbox.ToSource converts them to
// source-frame pixels. Boxes are value types and never mutated in place.
type Box struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Center returns the geometric center of the box.
func (b Box) Center() (x, y float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// FrameDetections holds every box the detector reported for one sampled
// instant of the source video.
type FrameDetections struct {
	TimestampMs int64 `json:"timestamp_ms"`
	Boxes       []Box `json:"boxes"`
}

// TimeSec returns the frame timestamp in seconds.
func (f FrameDetections) TimeSec() float64 {
	return float64(f.TimestampMs) / 1000.0
}
