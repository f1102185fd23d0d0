package detect

import (
	"math"

	"github.com/banshee-data/obstacle.report/internal/radar"
)

// PresenceConfig tunes the presence detector.
type PresenceConfig struct {
	// FastSF smooths the inter-frame deviation; SlowSF tracks the static
	// background sweep.
	FastSF float64 `json:"fast_sf"`
	SlowSF float64 `json:"slow_sf"`

	// Threshold on the noise-normalised deviation score.
	Threshold float64 `json:"threshold"`
}

// DefaultPresenceConfig returns the presence defaults.
func DefaultPresenceConfig() PresenceConfig {
	return PresenceConfig{
		FastSF:    0.7,
		SlowSF:    0.98,
		Threshold: 1.5,
	}
}

// PresenceResult is one frame's presence decision.
type PresenceResult struct {
	Detected  bool    `json:"detected"`
	Score     float64 `json:"score"`
	DistanceM float64 `json:"distance_m"`
}

// Presence detects motion as deviation of the mean sweep from its
// slow-tracked background, normalised by a running noise estimate.
type Presence struct {
	cfg PresenceConfig
	sub radar.SubsweepConfig

	slowReal *VectorLowPass
	slowImag *VectorLowPass
	devLP    *VectorLowPass
	noiseLP  *LowPass
}

// NewPresence builds a presence detector for the first subsweep of the
// sensor configuration.
func NewPresence(cfg PresenceConfig, sc *radar.SensorConfig) *Presence {
	sub := sc.Subsweeps[0]
	return &Presence{
		cfg:      cfg,
		sub:      sub,
		slowReal: NewVectorLowPass(cfg.SlowSF, sub.NumPoints),
		slowImag: NewVectorLowPass(cfg.SlowSF, sub.NumPoints),
		devLP:    NewVectorLowPass(cfg.FastSF, sub.NumPoints),
		noiseLP:  NewLowPass(cfg.SlowSF),
	}
}

// Process consumes one frame and returns the presence decision. Frames with
// no subsweep data return an empty result.
func (p *Presence) Process(f *radar.Frame) PresenceResult {
	if len(f.Subsweeps) == 0 || len(f.Subsweeps[0]) == 0 {
		return PresenceResult{}
	}
	sub := f.Subsweeps[0]
	points := len(sub[0])

	// Coherent mean over the sweep axis.
	meanRe := make([]float64, points)
	meanIm := make([]float64, points)
	for _, sweep := range sub {
		for r, v := range sweep {
			meanRe[r] += real(v)
			meanIm[r] += imag(v)
		}
	}
	n := float64(len(sub))
	for r := 0; r < points; r++ {
		meanRe[r] /= n
		meanIm[r] /= n
	}

	// Intra-frame spread approximates the noise floor.
	var noise float64
	for _, sweep := range sub {
		for r, v := range sweep {
			dr := real(v) - meanRe[r]
			di := imag(v) - meanIm[r]
			noise += dr*dr + di*di
		}
	}
	noise = math.Sqrt(noise / float64(len(sub)*points))
	noiseEst := p.noiseLP.Update(noise)

	slowRe := p.slowReal.Update(meanRe)
	slowIm := p.slowImag.Update(meanIm)

	dev := make([]float64, points)
	for r := 0; r < points; r++ {
		dev[r] = math.Hypot(meanRe[r]-slowRe[r], meanIm[r]-slowIm[r])
	}
	devLP := p.devLP.Update(dev)

	best := 0
	for r := 1; r < points; r++ {
		if devLP[r] > devLP[best] {
			best = r
		}
	}

	score := 0.0
	if noiseEst > 0 {
		score = devLP[best] / noiseEst
	}

	return PresenceResult{
		Detected:  score > p.cfg.Threshold,
		Score:     score,
		DistanceM: p.sub.StartPointM + float64(best)*p.sub.PointLengthM(),
	}
}

// MeanPhaseAt returns the phase of the coherent mean sweep at the range
// point nearest the given distance. Used by the breathing estimator.
func (p *Presence) MeanPhaseAt(f *radar.Frame, distanceM float64) float64 {
	if len(f.Subsweeps) == 0 || len(f.Subsweeps[0]) == 0 {
		return 0
	}
	sub := f.Subsweeps[0]
	points := len(sub[0])

	r := int(math.Round((distanceM - p.sub.StartPointM) / p.sub.PointLengthM()))
	if r < 0 {
		r = 0
	}
	if r >= points {
		r = points - 1
	}

	var sum complex128
	for _, sweep := range sub {
		sum += sweep[r]
	}
	return math.Atan2(imag(sum), real(sum))
}
