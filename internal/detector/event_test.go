package detector

import "testing"

func TestDecodeEvent(t *testing.T) {
	data := []byte(`{
		"run_id": "9f0a2c1e-1111-2222-3333-444455556666",
		"timestamp_ms": 1500,
		"boxes": [{"x": 1, "y": 2, "width": 3, "height": 4, "confidence": 0.8}]
	}`)

	ev, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if ev.RunID != "9f0a2c1e-1111-2222-3333-444455556666" {
		t.Errorf("run id: got %q", ev.RunID)
	}

	frame := ev.Frame()
	if frame.TimestampMs != 1500 {
		t.Errorf("timestamp: got %d, want 1500", frame.TimestampMs)
	}
	if len(frame.Boxes) != 1 || frame.Boxes[0].Confidence != 0.8 {
		t.Errorf("boxes: got %+v", frame.Boxes)
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	if _, err := DecodeEvent([]byte("boxes at dawn")); err == nil {
		t.Error("malformed payload should fail to decode")
	}
}
