package detect

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/banshee-data/obstacle.report/internal/radar"
)

// SpeedConfig tunes the sparse-speed estimator.
type SpeedConfig struct {
	SweepRateHz float64 `json:"sweep_rate_hz"`

	// MinSNR gates how far the dominant bin must stand above the spectrum
	// mean before a speed is reported.
	MinSNR float64 `json:"min_snr"`
}

// DefaultSpeedConfig returns the sparse-speed defaults.
func DefaultSpeedConfig(sweepRateHz float64) SpeedConfig {
	return SpeedConfig{SweepRateHz: sweepRateHz, MinSNR: 8.0}
}

// SpeedResult is one sparse frame's speed estimate.
type SpeedResult struct {
	Valid    bool    `json:"valid"`
	SpeedMPS float64 `json:"speed_mps"`
	DepthIdx int     `json:"depth_idx"`
	SNR      float64 `json:"snr"`
}

// Speed estimates the dominant target speed from a sparse (real-valued)
// frame: per-depth FFT across the sweep axis, strongest bin wins.
type Speed struct {
	cfg SpeedConfig
	fft *fourier.FFT
	n   int
}

// NewSpeed builds a sparse-speed estimator for n sweeps per frame.
func NewSpeed(cfg SpeedConfig, sweepsPerFrame int) *Speed {
	return &Speed{
		cfg: cfg,
		fft: fourier.NewFFT(sweepsPerFrame),
		n:   sweepsPerFrame,
	}
}

// Process consumes one sparse frame shaped [sweeps][depths]. A frame whose
// spectrum has no bin clearing MinSNR yields an invalid (no speed) result.
func (s *Speed) Process(frame [][]float64) SpeedResult {
	if len(frame) != s.n || len(frame[0]) == 0 {
		return SpeedResult{}
	}
	depths := len(frame[0])

	col := make([]float64, s.n)
	var best SpeedResult
	var bestPower float64

	for d := 0; d < depths; d++ {
		var mean float64
		for sIdx := 0; sIdx < s.n; sIdx++ {
			mean += frame[sIdx][d]
		}
		mean /= float64(s.n)
		for sIdx := 0; sIdx < s.n; sIdx++ {
			col[sIdx] = frame[sIdx][d] - mean
		}

		coeffs := s.fft.Coefficients(nil, col)

		// Skip the DC bin; static returns carry no speed.
		var total float64
		peakBin, peakPower := 0, 0.0
		for b := 1; b < len(coeffs); b++ {
			p := math.Hypot(real(coeffs[b]), imag(coeffs[b]))
			total += p
			if p > peakPower {
				peakPower = p
				peakBin = b
			}
		}
		if peakBin == 0 || total == 0 {
			continue
		}
		snr := peakPower / (total / float64(len(coeffs)-1))

		if peakPower > bestPower && snr >= s.cfg.MinSNR {
			bestPower = peakPower
			freq := s.fft.Freq(peakBin) * s.cfg.SweepRateHz
			best = SpeedResult{
				Valid:    true,
				SpeedMPS: freq * radar.RadarWavelengthM / 2,
				DepthIdx: d,
				SNR:      snr,
			}
		}
	}
	return best
}
