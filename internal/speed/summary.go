package speed

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates the finite speed samples of a run.
type Summary struct {
	Count   int     `json:"count"`
	MaxKmh  float64 `json:"max_kmh"`
	MeanKmh float64 `json:"mean_kmh"`
	P50Kmh  float64 `json:"p50_kmh"`
	P85Kmh  float64 `json:"p85_kmh"`
	P95Kmh  float64 `json:"p95_kmh"`
}

// Summarize computes run-level statistics over the valid samples. An
// all-invalid input yields the zero Summary.
func Summarize(samples []Sample) Summary {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Valid {
			values = append(values, s.Kmh)
		}
	}
	if len(values) == 0 {
		return Summary{}
	}

	sort.Float64s(values)
	return Summary{
		Count:   len(values),
		MaxKmh:  values[len(values)-1],
		MeanKmh: stat.Mean(values, nil),
		P50Kmh:  stat.Quantile(0.50, stat.Empirical, values, nil),
		P85Kmh:  stat.Quantile(0.85, stat.Empirical, values, nil),
		P95Kmh:  stat.Quantile(0.95, stat.Empirical, values, nil),
	}
}
