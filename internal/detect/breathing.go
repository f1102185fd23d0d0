package detect

import (
	"fmt"
	"math"

	"github.com/banshee-data/obstacle.report/internal/radar"
)

// BreathingConfig tunes the breathing-rate estimator.
type BreathingConfig struct {
	// PhaseSF smooths the inter-frame phase delta envelope.
	PhaseSF float64 `json:"phase_sf"`

	// WindowFrames is the analysis window for the zero-crossing rate.
	WindowFrames int `json:"window_frames"`

	// FrameRateHz must match the sensor frame rate; the rate estimate is
	// meaningless without the true time base.
	FrameRateHz float64 `json:"frame_rate_hz"`
}

// DefaultBreathingConfig returns the breathing defaults for the given frame
// rate.
func DefaultBreathingConfig(frameRateHz float64) BreathingConfig {
	return BreathingConfig{
		PhaseSF:      0.8,
		WindowFrames: int(frameRateHz * 20),
		FrameRateHz:  frameRateHz,
	}
}

// BreathingResult is one frame's breathing estimate.
type BreathingResult struct {
	// Valid is false until the analysis window has filled and a presence
	// has been seen.
	Valid      bool    `json:"valid"`
	RateBPM    float64 `json:"rate_bpm"`
	PresenceOK bool    `json:"presence_ok"`
}

// Breathing estimates respiration rate from the chest-motion phase at the
// presence distance. It requires a presence detector: the capability is
// checked once at construction, not discovered by failure mid-stream.
type Breathing struct {
	cfg      BreathingConfig
	presence *Presence

	phaseLP   *LowPass
	prevPhase float64
	havePrev  bool
	history   []float64
}

// NewBreathing builds a breathing estimator on top of the given presence
// detector. A nil presence detector is a configuration error.
func NewBreathing(cfg BreathingConfig, presence *Presence) (*Breathing, error) {
	if presence == nil {
		return nil, fmt.Errorf("breathing estimator requires a presence detector")
	}
	if cfg.WindowFrames < 2 {
		return nil, fmt.Errorf("breathing window must cover at least 2 frames, got %d", cfg.WindowFrames)
	}
	if cfg.FrameRateHz <= 0 {
		return nil, fmt.Errorf("breathing frame rate must be positive, got %f", cfg.FrameRateHz)
	}
	return &Breathing{
		cfg:      cfg,
		presence: presence,
		phaseLP:  NewLowPass(cfg.PhaseSF),
	}, nil
}

// Process consumes one frame. The phase delta at the presence distance is
// unwrapped, low-passed, and its zero-crossing rate over the window gives
// the breathing rate.
func (b *Breathing) Process(f *radar.Frame) BreathingResult {
	pres := b.presence.Process(f)
	if !pres.Detected {
		// Lost presence: restart the window, stale phase history would
		// bias the rate.
		b.history = b.history[:0]
		b.havePrev = false
		return BreathingResult{PresenceOK: false}
	}

	phase := b.presence.MeanPhaseAt(f, pres.DistanceM)
	if !b.havePrev {
		b.prevPhase = phase
		b.havePrev = true
		return BreathingResult{PresenceOK: true}
	}

	delta := wrapPhase(phase - b.prevPhase)
	b.prevPhase = phase
	smoothed := b.phaseLP.Update(delta)

	b.history = append(b.history, smoothed)
	if len(b.history) > b.cfg.WindowFrames {
		b.history = b.history[1:]
	}
	if len(b.history) < b.cfg.WindowFrames {
		return BreathingResult{PresenceOK: true}
	}

	crossings := 0
	for i := 1; i < len(b.history); i++ {
		if (b.history[i-1] < 0) != (b.history[i] < 0) {
			crossings++
		}
	}
	windowSec := float64(len(b.history)) / b.cfg.FrameRateHz
	rate := float64(crossings) / 2 / windowSec * 60

	return BreathingResult{
		Valid:      true,
		RateBPM:    rate,
		PresenceOK: true,
	}
}

// wrapPhase maps an angle difference into (-pi, pi].
func wrapPhase(d float64) float64 {
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	for d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}
