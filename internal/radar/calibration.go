package radar

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// SubsweepBackground is the noise-floor model of one subsweep, computed in
// the Doppler FFT domain so it thresholds the power map directly: BgMean is
// the mean zero-Doppler magnitude per range point (static echo), BgStd the
// standard deviation of the off-zero bin magnitudes (thermal noise floor).
type SubsweepBackground struct {
	BgMean []float64
	BgStd  []float64
}

// SensorBackground holds one sensor's background model plus the measured
// loopback peak location used for distance-offset correction.
type SensorBackground struct {
	Subsweeps     []SubsweepBackground
	LoopbackPeakM float64
}

// ProcessorContext is the calibration data computed once and shared
// read-only by all subsweep processors for the life of a session.
type ProcessorContext struct {
	ConfigHash     uint64
	RefTempC       float64
	TakenUnixNanos int64
	Sensors        map[int]*SensorBackground
}

// CheckCompatible reports whether the context may be used with the given
// configuration hash. A mismatch is a configuration error: the stored
// background arrays no longer describe what the sensor measures.
func (pc *ProcessorContext) CheckCompatible(hash uint64) error {
	if pc.ConfigHash != hash {
		return fmt.Errorf("calibration incompatible: stored hash %x, config hash %x", pc.ConfigHash, hash)
	}
	return nil
}

// Serialize encodes the context with gob and compresses it with gzip for
// storage as a single calibration blob.
func (pc *ProcessorContext) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(pc); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeProcessorContext decodes a gob+gzip calibration blob.
func DeserializeProcessorContext(blob []byte) (*ProcessorContext, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty calibration blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var pc ProcessorContext
	dec := gob.NewDecoder(gz)
	if err := dec.Decode(&pc); err != nil {
		return nil, fmt.Errorf("failed to decode calibration: %w", err)
	}
	return &pc, nil
}

// buildSensorBackground computes the background model for one sensor from
// its calibration frames. Frames run through the same depth filter and
// Doppler FFT as live processing, so the model is in power-map units.
func buildSensorBackground(frames []*Frame, sc *SensorConfig, dc *DetectorConfig, filters []*DepthFilter) (*SensorBackground, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no calibration frames")
	}

	bg := &SensorBackground{
		Subsweeps: make([]SubsweepBackground, len(sc.Subsweeps)),
	}
	fft := fourier.NewCmplxFFT(sc.SweepsPerFrame)
	fftIn := make([]complex128, sc.SweepsPerFrame)

	for si := range sc.Subsweeps {
		croppedPoints := sc.Subsweeps[si].NumPoints - 2*filters[si].Margin()
		if croppedPoints < 1 {
			croppedPoints = sc.Subsweeps[si].NumPoints
		}

		// Per range point: the zero-bin magnitude series and the off-zero
		// bin magnitude series, across calibration frames.
		zeroBin := make([][]float64, croppedPoints)
		offBins := make([][]float64, croppedPoints)
		for r := 0; r < croppedPoints; r++ {
			zeroBin[r] = make([]float64, 0, len(frames))
			offBins[r] = make([]float64, 0, len(frames)*(sc.SweepsPerFrame-1))
		}

		for _, f := range frames {
			if si >= len(f.Subsweeps) {
				return nil, fmt.Errorf("calibration frame missing subsweep %d", si)
			}
			filtered := filters[si].Apply(f.Subsweeps[si])
			for r := 0; r < croppedPoints && r < len(filtered[0]); r++ {
				for s := 0; s < sc.SweepsPerFrame; s++ {
					fftIn[s] = filtered[s][r]
				}
				out := fft.Coefficients(nil, fftIn)
				zeroBin[r] = append(zeroBin[r], cmplxAbs(out[0]))
				for b := 1; b < sc.SweepsPerFrame; b++ {
					offBins[r] = append(offBins[r], cmplxAbs(out[b]))
				}
			}
		}

		mean := make([]float64, croppedPoints)
		std := make([]float64, croppedPoints)
		for r := 0; r < croppedPoints; r++ {
			mean[r] = stat.Mean(zeroBin[r], nil)
			// The noise floor is the spread of the off-zero magnitudes
			// around zero, not around their own mean.
			std[r] = rms(offBins[r])
		}
		bg.Subsweeps[si] = SubsweepBackground{BgMean: mean, BgStd: std}
	}

	if dc.EnableLoopback && len(bg.Subsweeps) > 0 {
		bg.LoopbackPeakM = loopbackPeak(bg.Subsweeps[0], sc.Subsweeps[0], filters[0].Margin())
	}
	return bg, nil
}

// rms is the root-mean-square of the series, the deviation of a zero-mean
// magnitude population.
func rms(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(vals)))
}

// loopbackPeak locates the leakage peak in the loopback subsweep background.
// The leakage nominally sits at zero distance, so the measured peak location
// is the constant distance offset to subtract from every detection.
func loopbackPeak(bg SubsweepBackground, sub SubsweepConfig, margin int) float64 {
	best := 0
	for r := 1; r < len(bg.BgMean); r++ {
		if bg.BgMean[r] > bg.BgMean[best] {
			best = r
		}
	}
	return sub.StartPointM + float64(margin+best)*sub.PointLengthM()
}
