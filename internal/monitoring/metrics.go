package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters, exported at /metrics. Stale frames are pushes tagged
// with a superseded run generation; they are dropped, not failed.
var (
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speedframe_runs_started_total",
		Help: "Detection runs started",
	})

	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speedframe_frames_received_total",
		Help: "Detection frame batches accepted into the active run",
	})

	FramesDiscardedStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speedframe_frames_stale_total",
		Help: "Detection frame batches discarded for carrying a stale run tag",
	})

	Recomputes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speedframe_recomputes_total",
		Help: "Wholesale recomputations of derived run state",
	})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speedframe_active_runs",
		Help: "Runs currently collecting detections (0 or 1)",
	})
)
