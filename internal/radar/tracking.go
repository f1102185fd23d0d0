package radar

import (
	"fmt"
	"math"
)

// Kalman tuning constants, calibrated for millimetre-scale sensing.
const (
	// Measurement noise std for distance (m) and velocity (m/s). Fixed;
	// responsiveness is tuned through process noise via Sensitivity.
	measNoiseDistM   = 0.005
	measNoiseVelMPS  = 0.05
	minProcessNoise  = 0.01
	processNoiseGain = 2.0

	// Initial covariance for a freshly spawned filter.
	initPosVar = 0.01
	initVelVar = 0.25
)

// kalmanFilter tracks one target with a constant-velocity model over the
// state [distance, velocity]. Covariance is 2x2 row-major.
type kalmanFilter struct {
	id string

	d, v float64
	p    [4]float64

	deadReckons int
	updates     int
	hasInit     bool

	strengthDB float64 // strength of the last matched detection
}

// FilterBank owns the dynamic collection of Kalman filters for one sensor
// and runs the per-frame associate/update/spawn/retire cycle.
type FilterBank struct {
	cfg     *DetectorConfig
	dt      float64
	filters []*kalmanFilter
	nextID  int64
}

// NewFilterBank creates an empty bank. dt is the fixed inter-frame interval;
// the filters assume in-order frames at this cadence.
func NewFilterBank(cfg *DetectorConfig, frameRateHz float64) *FilterBank {
	return &FilterBank{
		cfg:    cfg,
		dt:     1 / frameRateHz,
		nextID: 1,
	}
}

// Step runs one frame of tracking: predict every filter, associate the raw
// detections, update matched filters, retire stale ones, and spawn filters
// for leftover detections. A frame with no detections simply advances
// dead-reckoning; Step never fails.
func (fb *FilterBank) Step(detections []Target) []TrackedTarget {
	for _, kf := range fb.filters {
		kf.predict(fb.dt, fb.processNoise())
	}

	// Candidate pool: one slot per raw detection, consumed greedily so no
	// two filters claim the same detection in one frame.
	consumed := make([]bool, len(detections))

	survivors := fb.filters[:0]
	for _, kf := range fb.filters {
		ci := fb.bestCandidate(kf, detections, consumed)
		if ci < 0 {
			kf.deadReckons++
			// A filter that never initialized gets no dead-reckoning
			// grace: one miss retires it.
			if kf.deadReckons > fb.cfg.DeadReckoningFrames || !kf.hasInit {
				continue
			}
			survivors = append(survivors, kf)
			continue
		}

		consumed[ci] = true
		kf.update(detections[ci])
		kf.deadReckons = 0
		kf.updates++
		if kf.updates >= fb.cfg.MinNumUpdatesValidEstimate {
			kf.hasInit = true
		}
		survivors = append(survivors, kf)
	}
	fb.filters = survivors

	for ci, det := range detections {
		if !consumed[ci] {
			fb.spawn(det)
		}
	}

	out := make([]TrackedTarget, 0, len(fb.filters))
	for _, kf := range fb.filters {
		out = append(out, TrackedTarget{
			ID:          kf.id,
			DistanceM:   kf.d,
			VelocityMPS: kf.v,
			StrengthDB:  kf.strengthDB,
			HasInit:     kf.hasInit,
			DeadReckons: kf.deadReckons,
		})
	}
	return out
}

// ActiveCount returns the number of live filters in the bank.
func (fb *FilterBank) ActiveCount() int {
	return len(fb.filters)
}

// processNoise scales linearly with the configured sensitivity: higher
// sensitivity responds faster at the cost of smoothness.
func (fb *FilterBank) processNoise() float64 {
	return minProcessNoise + fb.cfg.Sensitivity*processNoiseGain
}

// bestCandidate gates unconsumed detections to within MaxMeasStateDiff of
// the predicted distance, then minimizes the normalized (distance, velocity)
// cost. Returns -1 when none qualify.
func (fb *FilterBank) bestCandidate(kf *kalmanFilter, detections []Target, consumed []bool) int {
	best := -1
	bestCost := math.Inf(1)
	for ci, det := range detections {
		if consumed[ci] {
			continue
		}
		dd := det.DistanceM - kf.d
		if math.Abs(dd) >= fb.cfg.MaxMeasStateDiffM {
			continue
		}
		dv := det.VelocityMPS - kf.v
		nd := dd / fb.cfg.MaxMeasStateDiffM
		nv := dv / fb.cfg.MaxRobotSpeedMPS
		cost := math.Sqrt(nd*nd + nv*nv)
		if cost < bestCost {
			bestCost = cost
			best = ci
		}
	}
	return best
}

func (fb *FilterBank) spawn(det Target) {
	kf := &kalmanFilter{
		id:         fmt.Sprintf("filter_%d", fb.nextID),
		d:          det.DistanceM,
		v:          det.VelocityMPS,
		strengthDB: det.StrengthDB,
		updates:    1,
		p: [4]float64{
			initPosVar, 0,
			0, initVelVar,
		},
	}
	if fb.cfg.MinNumUpdatesValidEstimate <= 1 {
		kf.hasInit = true
	}
	fb.nextID++
	fb.filters = append(fb.filters, kf)
}

// predict advances the constant-velocity model one frame.
func (kf *kalmanFilter) predict(dt, sigmaA2 float64) {
	kf.d += kf.v * dt

	// P' = F P F^T + Q with F = [1 dt; 0 1].
	p00 := kf.p[0] + dt*(kf.p[2]+kf.p[1]) + dt*dt*kf.p[3]
	p01 := kf.p[1] + dt*kf.p[3]
	p10 := kf.p[2] + dt*kf.p[3]
	p11 := kf.p[3]

	// Piecewise white-acceleration process noise.
	q00 := sigmaA2 * dt * dt * dt * dt / 4
	q01 := sigmaA2 * dt * dt * dt / 2
	q11 := sigmaA2 * dt * dt

	kf.p[0] = p00 + q00
	kf.p[1] = p01 + q01
	kf.p[2] = p10 + q01
	kf.p[3] = p11 + q11
}

// update applies the standard Kalman equations with the detection as a
// direct measurement of both state components (H = I).
func (kf *kalmanFilter) update(det Target) {
	yd := det.DistanceM - kf.d
	yv := det.VelocityMPS - kf.v

	// S = P + R
	s00 := kf.p[0] + measNoiseDistM*measNoiseDistM
	s01 := kf.p[1]
	s10 := kf.p[2]
	s11 := kf.p[3] + measNoiseVelMPS*measNoiseVelMPS

	det2 := s00*s11 - s01*s10
	if math.Abs(det2) < 1e-12 {
		return
	}
	i00 := s11 / det2
	i01 := -s01 / det2
	i10 := -s10 / det2
	i11 := s00 / det2

	// K = P S^-1
	k00 := kf.p[0]*i00 + kf.p[1]*i10
	k01 := kf.p[0]*i01 + kf.p[1]*i11
	k10 := kf.p[2]*i00 + kf.p[3]*i10
	k11 := kf.p[2]*i01 + kf.p[3]*i11

	kf.d += k00*yd + k01*yv
	kf.v += k10*yd + k11*yv

	// P' = (I - K) P
	p00 := (1-k00)*kf.p[0] - k01*kf.p[2]
	p01 := (1-k00)*kf.p[1] - k01*kf.p[3]
	p10 := -k10*kf.p[0] + (1-k11)*kf.p[2]
	p11 := -k10*kf.p[1] + (1-k11)*kf.p[3]
	kf.p = [4]float64{p00, p01, p10, p11}

	kf.strengthDB = det.StrengthDB
}
