package detect

import (
	"math"

	"github.com/banshee-data/obstacle.report/internal/radar"
)

// ButtonConfig tunes the button-press detector.
type ButtonConfig struct {
	FastSF float64 `json:"fast_sf"`
	SlowSF float64 `json:"slow_sf"`

	// TriggerRatio is how far the fast statistic must exceed the slow one.
	TriggerRatio float64 `json:"trigger_ratio"`

	// CooldownFrames is the dead-time after a trigger.
	CooldownFrames int `json:"cooldown_frames"`
}

// DefaultButtonConfig returns the button-press defaults.
func DefaultButtonConfig() ButtonConfig {
	return ButtonConfig{
		FastSF:         0.6,
		SlowSF:         0.98,
		TriggerRatio:   4.0,
		CooldownFrames: 15,
	}
}

// ButtonResult is one frame's button decision.
type ButtonResult struct {
	Pressed bool    `json:"pressed"`
	Score   float64 `json:"score"`
}

// Button detects a short, sharp deviation transient (a hand approaching the
// sensor) as the fast low-pass overtaking the slow one, with a cooldown so
// one press does not re-trigger.
type Button struct {
	cfg ButtonConfig

	slowRe   *VectorLowPass
	slowIm   *VectorLowPass
	fastDev  *LowPass
	slowDev  *LowPass
	cooldown int
	inited   bool
	points   int
}

// NewButton builds a button-press detector for the first subsweep.
func NewButton(cfg ButtonConfig, sc *radar.SensorConfig) *Button {
	points := sc.Subsweeps[0].NumPoints
	return &Button{
		cfg:     cfg,
		slowRe:  NewVectorLowPass(cfg.SlowSF, points),
		slowIm:  NewVectorLowPass(cfg.SlowSF, points),
		fastDev: NewLowPass(cfg.FastSF),
		slowDev: NewLowPass(cfg.SlowSF),
		points:  points,
	}
}

// Process consumes one frame and returns the press decision.
func (b *Button) Process(f *radar.Frame) ButtonResult {
	if len(f.Subsweeps) == 0 || len(f.Subsweeps[0]) == 0 {
		return ButtonResult{}
	}
	sub := f.Subsweeps[0]
	points := len(sub[0])

	meanRe := make([]float64, points)
	meanIm := make([]float64, points)
	for _, sweep := range sub {
		for r, v := range sweep {
			meanRe[r] += real(v)
			meanIm[r] += imag(v)
		}
	}
	n := float64(len(sub))
	for r := range meanRe {
		meanRe[r] /= n
		meanIm[r] /= n
	}

	slowRe := b.slowRe.Update(meanRe)
	slowIm := b.slowIm.Update(meanIm)

	var dev float64
	for r := 0; r < points; r++ {
		dev += math.Hypot(meanRe[r]-slowRe[r], meanIm[r]-slowIm[r])
	}
	dev /= float64(points)

	fast := b.fastDev.Update(dev)
	slow := b.slowDev.Update(dev)

	if b.cooldown > 0 {
		b.cooldown--
	}

	score := 0.0
	if slow > 0 {
		score = fast / slow
	}

	// The first frames are warm-up: both filters chase the same input and
	// the ratio is meaningless.
	if !b.inited {
		if b.slowDev.Updates() >= b.cfg.CooldownFrames {
			b.inited = true
		}
		return ButtonResult{Score: score}
	}

	pressed := score > b.cfg.TriggerRatio && b.cooldown == 0
	if pressed {
		b.cooldown = b.cfg.CooldownFrames
	}
	return ButtonResult{Pressed: pressed, Score: score}
}
