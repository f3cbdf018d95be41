package speed

import (
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	samples := []Sample{
		{Kmh: 30, Valid: true},
		{},
		{Kmh: 10, Valid: true},
		{Kmh: 40, Valid: true},
		{Kmh: 20, Valid: true},
	}

	got := Summarize(samples)

	if got.Count != 4 {
		t.Errorf("count: got %d, want 4", got.Count)
	}
	if got.MaxKmh != 40 {
		t.Errorf("max: got %f, want 40", got.MaxKmh)
	}
	if math.Abs(got.MeanKmh-25) > 1e-12 {
		t.Errorf("mean: got %f, want 25", got.MeanKmh)
	}
	if got.P50Kmh != 20 {
		t.Errorf("p50: got %f, want 20", got.P50Kmh)
	}
	if got.P95Kmh != 40 {
		t.Errorf("p95: got %f, want 40", got.P95Kmh)
	}
}

func TestSummarizeAllAbsent(t *testing.T) {
	got := Summarize([]Sample{{}, {}})
	if got != (Summary{}) {
		t.Errorf("all-absent summary should be zero, got %+v", got)
	}
}
