// Package session orchestrates a detection run: it accumulates
// asynchronously arriving frame detections in timestamp order, applies user
// overrides and calibration, and recomputes the derived center, speed and
// peak sequences wholesale whenever an input changes.
package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/speedframe/speedframe/internal/monitoring"
	"github.com/speedframe/speedframe/internal/speed"
	"github.com/speedframe/speedframe/internal/track"
	"github.com/speedframe/speedframe/internal/vision"
)

// State is the lifecycle state of the manager.
type State string

const (
	StateIdle       State = "idle"
	StateCollecting State = "collecting"
	StateFinalized  State = "finalized"
)

// Params configures a session manager.
type Params struct {
	// ModelSize is the square detector input size in pixels.
	ModelSize float64

	// MinDeltaSeconds and MaxDeltaSeconds clamp the finite-difference time
	// delta used by the speed estimator.
	MinDeltaSeconds float64
	MaxDeltaSeconds float64

	// Estimator are the noise intensities for the smoothing filter.
	Estimator track.Params

	// Policy selects the candidate detection per frame. Nil means
	// vision.SelectTopConfidence.
	Policy vision.CandidatePolicy
}

// DefaultParams returns the stock configuration: 640x640 model input and
// the default dt clamp and estimator noise.
func DefaultParams() Params {
	return Params{
		ModelSize:       640,
		MinDeltaSeconds: speed.DefaultMinDeltaSeconds,
		MaxDeltaSeconds: speed.DefaultMaxDeltaSeconds,
		Estimator:       track.DefaultParams(),
	}
}

// TrackPoint is the smoothed state for one centered frame, produced by
// feeding resolved centers through the constant-velocity filter. It is
// informational output; the speed samples themselves come from raw finite
// differences.
type TrackPoint struct {
	FrameIndex int     `json:"frame_index"`
	TimeSec    float64 `json:"time_sec"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	VX         float64 `json:"vx"`
	VY         float64 `json:"vy"`
}

// Result is a consistent snapshot of a run's derived state.
type Result struct {
	RunID          string         `json:"run_id"`
	State          State          `json:"state"`
	SourceW        float64        `json:"source_width"`
	SourceH        float64        `json:"source_height"`
	FrameCount     int            `json:"frame_count"`
	Calibrated     bool           `json:"calibrated"`
	MetersPerPixel float64        `json:"meters_per_pixel,omitempty"`
	Centers        []Center       `json:"centers"`
	Samples        []speed.Sample `json:"samples"`
	PeakKmh        float64        `json:"peak_kmh"`
	PeakFrame      int            `json:"peak_frame"`
	Summary        speed.Summary  `json:"summary"`
	Track          []TrackPoint   `json:"track"`
}

// Manager owns one detection run at a time. All mutation goes through its
// mutex; derived state is recomputed from scratch on every input change so
// readers can never observe a stale mixture.
type Manager struct {
	mu     sync.Mutex
	params Params

	state     State
	runID     uuid.UUID
	letterbox vision.Letterbox
	frames    []vision.FrameDetections
	overrides map[int]vision.Box
	cal       *speed.Calibration

	// Derived, rebuilt by recomputeLocked.
	centers     []Center
	samples     []speed.Sample
	peakKmh     float64
	peakFrame   int
	summary     speed.Summary
	trackPoints []TrackPoint
}

// NewManager creates an idle manager.
func NewManager(params Params) *Manager {
	if params.Policy == nil {
		params.Policy = vision.SelectTopConfidence
	}
	return &Manager{
		params:    params,
		state:     StateIdle,
		overrides: make(map[int]vision.Box),
		peakFrame: speed.NoPeakFrame,
	}
}

// StartRun begins a new detection run for a video with the given source
// dimensions, superseding any run in progress. All retained frames,
// overrides and derived state are cleared first so nothing from an
// abandoned run can leak into the new one; calibration belongs to the
// camera setup and survives. Returns the generation tag that subsequent
// frame events must carry.
func (m *Manager) StartRun(sourceW, sourceH float64) (uuid.UUID, error) {
	lb, err := vision.NewLetterbox(m.params.ModelSize, sourceW, sourceH)
	if err != nil {
		return uuid.Nil, fmt.Errorf("start run: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.runID = uuid.New()
	m.state = StateCollecting
	m.letterbox = lb
	m.frames = nil
	m.overrides = make(map[int]vision.Box)
	m.recomputeLocked()

	monitoring.RunsStarted.Inc()
	monitoring.ActiveRuns.Set(1)
	monitoring.Logf("session: started run %s (%gx%g source)", m.runID, sourceW, sourceH)
	return m.runID, nil
}

// Ingest accepts one frame-detections event for the given run generation.
// Events tagged with a superseded run, or arriving outside Collecting, are
// discarded and reported false; arrival order is otherwise arbitrary and
// the retained sequence stays sorted ascending by timestamp, stable by
// arrival for equal timestamps.
func (m *Manager) Ingest(runID uuid.UUID, fd vision.FrameDetections) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateCollecting || runID != m.runID {
		monitoring.FramesDiscardedStale.Inc()
		return false
	}

	// First index strictly after this timestamp: inserting there keeps the
	// sequence sorted and preserves arrival order among equal timestamps.
	i := sort.Search(len(m.frames), func(i int) bool {
		return m.frames[i].TimestampMs > fd.TimestampMs
	})
	m.frames = append(m.frames, vision.FrameDetections{})
	copy(m.frames[i+1:], m.frames[i:])
	m.frames[i] = fd

	monitoring.FramesReceived.Inc()
	m.recomputeLocked()
	return true
}

// Finalize moves the run out of Collecting. Late frame events for it are
// discarded from then on.
func (m *Manager) Finalize(runID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if runID != m.runID {
		return fmt.Errorf("finalize: run %s is not the active run", runID)
	}
	if m.state != StateCollecting {
		return fmt.Errorf("finalize: run %s is %s, not collecting", runID, m.state)
	}
	m.state = StateFinalized
	monitoring.ActiveRuns.Set(0)
	monitoring.Logf("session: finalized run %s (%d frames)", runID, len(m.frames))
	return nil
}

// SetOverride stores a user-drawn box for a frame index. The override's
// center becomes authoritative for that frame regardless of detections.
func (m *Manager) SetOverride(runID uuid.UUID, frameIndex int, box vision.Box) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if runID != m.runID || m.state == StateIdle {
		return fmt.Errorf("override: run %s is not the active run", runID)
	}
	if frameIndex < 0 {
		return fmt.Errorf("override: frame index must be non-negative, got %d", frameIndex)
	}
	m.overrides[frameIndex] = box
	m.recomputeLocked()
	return nil
}

// ClearOverride removes a frame's user override, restoring automatic
// resolution for it.
func (m *Manager) ClearOverride(runID uuid.UUID, frameIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if runID != m.runID || m.state == StateIdle {
		return fmt.Errorf("override: run %s is not the active run", runID)
	}
	delete(m.overrides, frameIndex)
	m.recomputeLocked()
	return nil
}

// Calibrate resolves and stores a new meters-per-pixel scale from two
// reference points marked on a display of the active run's video. On
// validation failure the stored calibration is untouched.
func (m *Manager) Calibrate(p1, p2 speed.Point, displayW, displayH, referenceMeters float64) (speed.Calibration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sourceW, sourceH float64
	if m.state != StateIdle {
		sourceW, sourceH = m.letterbox.SourceW, m.letterbox.SourceH
	}
	cal, err := speed.ResolveCalibration(p1, p2, displayW, displayH, sourceW, sourceH, referenceMeters)
	if err != nil {
		return speed.Calibration{}, err
	}
	m.cal = &cal
	m.recomputeLocked()
	return cal, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RunID returns the generation tag of the current run, or uuid.Nil when
// idle.
func (m *Manager) RunID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runID
}

// Frames returns a copy of the retained, timestamp-ordered detection
// sequence.
func (m *Manager) Frames() []vision.FrameDetections {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]vision.FrameDetections, len(m.frames))
	copy(out, m.frames)
	return out
}

// Snapshot returns a copy of the run's derived state.
func (m *Manager) Snapshot() Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := Result{
		RunID:      m.runID.String(),
		State:      m.state,
		FrameCount: len(m.frames),
		Calibrated: m.cal != nil,
		Centers:    append([]Center(nil), m.centers...),
		Samples:    append([]speed.Sample(nil), m.samples...),
		PeakKmh:    m.peakKmh,
		PeakFrame:  m.peakFrame,
		Summary:    m.summary,
		Track:      append([]TrackPoint(nil), m.trackPoints...),
	}
	if m.state != StateIdle {
		res.SourceW = m.letterbox.SourceW
		res.SourceH = m.letterbox.SourceH
	}
	if m.cal != nil {
		res.MetersPerPixel = m.cal.MetersPerPixel
	}
	return res
}

// recomputeLocked rebuilds every derived collection from the authoritative
// inputs. Wholesale recomputation keeps the derived state trivially
// consistent under out-of-order arrival. Caller holds the mutex.
func (m *Manager) recomputeLocked() {
	monitoring.Recomputes.Inc()

	m.centers = resolveCenters(m.letterbox, m.frames, m.overrides, m.params.Policy)

	obs := make([]speed.Observation, len(m.centers))
	for i, c := range m.centers {
		obs[i] = speed.Observation{
			X:       c.X,
			Y:       c.Y,
			TimeSec: c.TimeSec,
			Valid:   c.Source != CenterNone,
		}
	}

	if m.cal != nil {
		m.samples = speed.Estimate(obs, m.cal.MetersPerPixel, m.params.MinDeltaSeconds, m.params.MaxDeltaSeconds)
	} else {
		// No calibration means pixel displacement has no physical scale;
		// every sample stays absent rather than pretending km/h.
		m.samples = make([]speed.Sample, len(obs))
	}
	m.peakKmh, m.peakFrame = speed.Peak(m.samples)
	m.summary = speed.Summarize(m.samples)

	m.trackPoints = m.smoothTrack()
}

// smoothTrack runs the resolved centers through a fresh constant-velocity
// filter, predicting across the real inter-frame gaps. Caller holds the
// mutex.
func (m *Manager) smoothTrack() []TrackPoint {
	est := track.NewEstimator(m.params.Estimator)
	points := make([]TrackPoint, 0, len(m.centers))

	var lastT float64
	for i, c := range m.centers {
		if c.Source == CenterNone {
			continue
		}
		if est.Initialized() {
			est.Predict(c.TimeSec - lastT)
		}
		est.Update(c.X, c.Y)
		lastT = c.TimeSec

		x, y, vx, vy := est.State()
		points = append(points, TrackPoint{
			FrameIndex: i,
			TimeSec:    c.TimeSec,
			X:          x,
			Y:          y,
			VX:         vx,
			VY:         vy,
		})
	}
	return points
}
