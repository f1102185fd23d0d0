package sensor

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/banshee-data/obstacle.report/internal/radar"
	"github.com/banshee-data/obstacle.report/internal/timeutil"
)

// Reflector is one synthetic point target.
type Reflector struct {
	RangeM      float64
	VelocityMPS float64
	Amplitude   float64

	// AppearAfter delays the reflector by that many frames, so scenarios
	// can calibrate on clean background first.
	AppearAfter int
}

// SyntheticSource generates frames of Gaussian background noise plus point
// reflectors with the correct Doppler phase progression. Deterministic for
// a fixed seed; used by dev mode, the frame-log generator and the
// end-to-end tests.
type SyntheticSource struct {
	SensorIDs  []int
	NoiseStd   float64
	TempC      float64
	Reflectors []Reflector

	// Realtime paces ReadFrame at the configured frame rate using Clock.
	Realtime bool
	Clock    timeutil.Clock

	sc       *radar.SensorConfig
	rng      *rand.Rand
	frameIdx int
	sensorIx int
	startNs  int64
}

// NewSyntheticSource creates a generator for the given sensor config and
// seed.
func NewSyntheticSource(sc *radar.SensorConfig, sensorIDs []int, seed int64) *SyntheticSource {
	return &SyntheticSource{
		SensorIDs: sensorIDs,
		NoiseStd:  1.0,
		TempC:     25.0,
		Clock:     timeutil.RealClock{},
		sc:        sc,
		rng:       rand.New(rand.NewSource(seed)),
		startNs:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano(),
	}
}

// ReadFrame emits the next frame, cycling through the configured sensors
// within one tick before advancing the scene.
func (g *SyntheticSource) ReadFrame(ctx context.Context) (*radar.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frameInterval := time.Duration(float64(time.Second) / g.sc.FrameRateHz)
	if g.Realtime && g.sensorIx == 0 && g.frameIdx > 0 {
		g.Clock.Sleep(frameInterval)
	}

	id := g.SensorIDs[g.sensorIx]
	tick := g.startNs + int64(g.frameIdx)*int64(frameInterval)

	f := &radar.Frame{
		SensorID:  id,
		TickNanos: tick,
		TempC:     g.TempC,
		Subsweeps: make([][][]complex128, len(g.sc.Subsweeps)),
	}
	for si, sub := range g.sc.Subsweeps {
		f.Subsweeps[si] = g.genSubsweep(sub)
	}

	g.sensorIx++
	if g.sensorIx >= len(g.SensorIDs) {
		g.sensorIx = 0
		g.frameIdx++
	}
	return f, nil
}

// Close is a no-op; the generator holds no resources.
func (g *SyntheticSource) Close() error { return nil }

// FrameIndex returns the current scene frame counter.
func (g *SyntheticSource) FrameIndex() int { return g.frameIdx }

func (g *SyntheticSource) genSubsweep(sub radar.SubsweepConfig) [][]complex128 {
	sweeps := g.sc.SweepsPerFrame
	pointLen := sub.PointLengthM()
	fwhm := sub.Profile.FWHM()
	// Gaussian envelope sigma from the profile FWHM.
	sigma := fwhm / 2.3548

	out := make([][]complex128, sweeps)
	frameT := float64(g.frameIdx) / g.sc.FrameRateHz

	for s := 0; s < sweeps; s++ {
		row := make([]complex128, sub.NumPoints)
		sweepT := frameT + float64(s)/g.sc.SweepRateHz

		for p := 0; p < sub.NumPoints; p++ {
			re := g.rng.NormFloat64() * g.NoiseStd
			im := g.rng.NormFloat64() * g.NoiseStd
			row[p] = complex(re, im)
		}

		for _, refl := range g.Reflectors {
			if g.frameIdx < refl.AppearAfter {
				continue
			}
			// Receding reflectors move outward between frames.
			dist := refl.RangeM + refl.VelocityMPS*(frameT-float64(refl.AppearAfter)/g.sc.FrameRateHz)
			doppler := 2 * refl.VelocityMPS / radar.RadarWavelengthM
			phase := 2 * math.Pi * doppler * sweepT

			for p := 0; p < sub.NumPoints; p++ {
				d := sub.StartPointM + float64(p)*pointLen
				env := math.Exp(-((d - dist) * (d - dist)) / (2 * sigma * sigma))
				if env < 1e-6 {
					continue
				}
				amp := refl.Amplitude * env
				row[p] += complex(amp*math.Cos(phase), amp*math.Sin(phase))
			}
		}
		out[s] = row
	}
	return out
}
