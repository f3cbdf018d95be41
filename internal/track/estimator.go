// Package track implements a constant-velocity 2D Kalman filter used to
// smooth noisy per-frame position observations of the tracked object and to
// gate implausible detections.
package track

import "math"

const (
	// minDeterminant is the smallest innovation-covariance determinant for
	// which the inverse is considered trustworthy. Below it the affected
	// operation is skipped rather than mutating state.
	minDeterminant = 1e-12

	// Initial covariance priors: position is roughly known once the first
	// measurement arrives, velocity is not.
	initialPosVariance = 1.0
	initialVelVariance = 1000.0
)

// Params holds the filter's noise intensities.
type Params struct {
	// ProcessNoise is the white-noise-acceleration intensity q. Larger
	// values make the filter trust new measurements more and react faster;
	// smaller values smooth harder but lag.
	ProcessNoise float64

	// MeasurementNoise is the scalar position measurement variance r.
	MeasurementNoise float64
}

// DefaultParams returns noise intensities tuned for pixel-space video
// detections at typical sampling rates.
func DefaultParams() Params {
	return Params{
		ProcessNoise:     50.0,
		MeasurementNoise: 4.0,
	}
}

// Estimator is a constant-velocity Kalman filter over image-plane position.
// State vector is [x y vx vy]; covariance is 4x4 row-major. An Estimator is
// uninitialized until the first Update and must not be shared between
// goroutines without external locking.
type Estimator struct {
	params Params

	initialized  bool
	x, y, vx, vy float64
	p            [16]float64
}

// NewEstimator creates an uninitialized estimator.
func NewEstimator(params Params) *Estimator {
	e := &Estimator{params: params}
	e.Reset()
	return e
}

// Reset returns the estimator to uninitialized: state zeroed, covariance
// back to its priors.
func (e *Estimator) Reset() {
	e.initialized = false
	e.x, e.y, e.vx, e.vy = 0, 0, 0, 0
	e.p = [16]float64{
		initialPosVariance, 0, 0, 0,
		0, initialPosVariance, 0, 0,
		0, 0, initialVelVariance, 0,
		0, 0, 0, initialVelVariance,
	}
}

// Initialized reports whether the estimator has accepted a measurement.
func (e *Estimator) Initialized() bool { return e.initialized }

// State returns the current position and velocity estimate.
func (e *Estimator) State() (x, y, vx, vy float64) {
	return e.x, e.y, e.vx, e.vy
}

// Speed returns the current velocity magnitude in state units per second.
func (e *Estimator) Speed() float64 {
	return math.Sqrt(e.vx*e.vx + e.vy*e.vy)
}

// Predict advances the state by dt seconds under the constant-velocity
// model and inflates the covariance with discretized white-noise
// acceleration. No-op while uninitialized.
func (e *Estimator) Predict(dt float64) {
	if !e.initialized {
		return
	}

	// x' = F x
	e.x += e.vx * dt
	e.y += e.vy * dt

	// P' = F P F^T + Q, computed directly for
	// F = [1 0 dt 0; 0 1 0 dt; 0 0 1 0; 0 0 0 1].
	var fp [16]float64
	for j := 0; j < 4; j++ {
		fp[0*4+j] = e.p[0*4+j] + dt*e.p[2*4+j]
		fp[1*4+j] = e.p[1*4+j] + dt*e.p[3*4+j]
		fp[2*4+j] = e.p[2*4+j]
		fp[3*4+j] = e.p[3*4+j]
	}
	for i := 0; i < 4; i++ {
		e.p[i*4+0] = fp[i*4+0] + dt*fp[i*4+2]
		e.p[i*4+1] = fp[i*4+1] + dt*fp[i*4+3]
		e.p[i*4+2] = fp[i*4+2]
		e.p[i*4+3] = fp[i*4+3]
	}

	// Q for white-noise acceleration with intensity q:
	// dt^4/4 on position, dt^3/2 on the position-velocity cross terms,
	// dt^2 on velocity.
	q := e.params.ProcessNoise
	dt2 := dt * dt
	qPos := q * dt2 * dt2 / 4
	qCross := q * dt2 * dt / 2
	qVel := q * dt2

	e.p[0*4+0] += qPos
	e.p[1*4+1] += qPos
	e.p[0*4+2] += qCross
	e.p[2*4+0] += qCross
	e.p[1*4+3] += qCross
	e.p[3*4+1] += qCross
	e.p[2*4+2] += qVel
	e.p[3*4+3] += qVel
}

// innovationCov computes S = H P H^T + R for the position-only observation
// model. ok is false when S is too ill-conditioned to invert.
func (e *Estimator) innovationCov() (s00, s01, s10, s11, det float64, ok bool) {
	r := e.params.MeasurementNoise
	s00 = e.p[0*4+0] + r
	s01 = e.p[0*4+1]
	s10 = e.p[1*4+0]
	s11 = e.p[1*4+1] + r

	det = s00*s11 - s01*s10
	if math.IsNaN(det) || math.IsInf(det, 0) || det < minDeterminant {
		return s00, s01, s10, s11, det, false
	}
	return s00, s01, s10, s11, det, true
}

// Update corrects the state with a position measurement. The first accepted
// measurement initializes the state directly with zero velocity. A
// degenerate innovation covariance skips the correction and leaves the
// state untouched.
func (e *Estimator) Update(mx, my float64) {
	if !e.initialized {
		e.x, e.y = mx, my
		e.vx, e.vy = 0, 0
		e.initialized = true
		return
	}

	s00, s01, s10, s11, det, ok := e.innovationCov()
	if !ok {
		return
	}

	invS00 := s11 / det
	invS01 := -s01 / det
	invS10 := -s10 / det
	invS11 := s00 / det

	// Kalman gain K = P H^T S^-1 (4x2).
	var k [8]float64
	for i := 0; i < 4; i++ {
		k[i*2+0] = e.p[i*4+0]*invS00 + e.p[i*4+1]*invS10
		k[i*2+1] = e.p[i*4+0]*invS01 + e.p[i*4+1]*invS11
	}

	innovX := mx - e.x
	innovY := my - e.y

	e.x += k[0*2+0]*innovX + k[0*2+1]*innovY
	e.y += k[1*2+0]*innovX + k[1*2+1]*innovY
	e.vx += k[2*2+0]*innovX + k[2*2+1]*innovY
	e.vy += k[3*2+0]*innovX + k[3*2+1]*innovY

	// P' = (I - K H) P. With H observing position only, (K H)[i][j] is
	// K[i][0] for j==0, K[i][1] for j==1, zero otherwise.
	var iKH [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var id float64
			if i == j {
				id = 1
			}
			var kh float64
			switch j {
			case 0:
				kh = k[i*2+0]
			case 1:
				kh = k[i*2+1]
			}
			iKH[i*4+j] = id - kh
		}
	}

	var newP [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for n := 0; n < 4; n++ {
				sum += iKH[i*4+n] * e.p[n*4+j]
			}
			newP[i*4+j] = sum
		}
	}
	e.p = newP
}

// Mahalanobis2 returns the squared statistical distance of a candidate
// measurement from the current predicted position under the innovation
// covariance. Returns +Inf while uninitialized or when the covariance is
// degenerate, so gated callers reject the candidate.
func (e *Estimator) Mahalanobis2(mx, my float64) float64 {
	if !e.initialized {
		return math.Inf(1)
	}

	s00, s01, s10, s11, det, ok := e.innovationCov()
	if !ok {
		return math.Inf(1)
	}

	invS00 := s11 / det
	invS01 := -s01 / det
	invS10 := -s10 / det
	invS11 := s00 / det

	dx := mx - e.x
	dy := my - e.y
	return dx*dx*invS00 + dx*dy*(invS01+invS10) + dy*dy*invS11
}
