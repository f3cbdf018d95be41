// Package detector defines the boundary to the external object detector.
// The detector is an opaque capability that pushes per-frame bounding boxes
// (in model space, with confidence) over the network; everything it sends is
// advisory, and anything malformed or stale degrades to "no detections"
// rather than an error back to the sender.
package detector

import (
	"encoding/json"
	"fmt"

	"github.com/speedframe/speedframe/internal/vision"
)

// Event is one detector push: the boxes observed at one sampled instant,
// tagged with the run generation it belongs to so pushes from a superseded
// run can be discarded.
type Event struct {
	RunID       string       `json:"run_id"`
	TimestampMs int64        `json:"timestamp_ms"`
	Boxes       []vision.Box `json:"boxes"`
}

// DecodeEvent parses a detector push payload.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode detector event: %w", err)
	}
	return e, nil
}

// Frame converts the event to the per-frame detection batch the session
// accumulates.
func (e Event) Frame() vision.FrameDetections {
	return vision.FrameDetections{TimestampMs: e.TimestampMs, Boxes: e.Boxes}
}
