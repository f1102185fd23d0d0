package radar

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// maxPeaksPerSubsweep bounds the iterative peak-subtraction loop.
	maxPeaksPerSubsweep = 16

	// quinnEpsilon keeps the Quinn estimator away from its pole when the
	// neighbouring bin ratio approaches one.
	quinnEpsilon = 1e-9

	// minNoiseStd is the minimum-denominator policy for near-zero noise
	// floors: below this the range point is treated as carrying no signal
	// information rather than producing unbounded SNR.
	minNoiseStd = 1e-9

	// tempNoiseDoublingC is the temperature delta over which the thermal
	// noise floor doubles. The threshold std term is scaled accordingly.
	tempNoiseDoublingC = 60.0

	// dopplerKernelHalfWidthBins and dopplerKernelShape describe the
	// resonance-like Doppler skirt subtracted around an extracted peak.
	dopplerKernelHalfWidthBins = 3
	dopplerKernelShape         = 1.2
)

// SubsweepProcessor converts one depth-filtered subsweep into a Doppler
// power map and extracts discrete detections against the calibrated
// background. Instances share an immutable ProcessorContext and own no
// other cross-frame state, so one processor per (sensor, subsweep) runs
// independently.
type SubsweepProcessor struct {
	sub    SubsweepConfig
	sc     *SensorConfig
	dc     *DetectorConfig
	bg     SubsweepBackground
	offset float64 // loopback distance correction, metres
	refC   float64 // calibration reference temperature

	filter *DepthFilter
	fft    *fourier.CmplxFFT

	// Scratch buffers reused across frames.
	fftIn  []complex128
	fftOut [][]complex128
}

// NewSubsweepProcessor builds a processor for subsweep index si of the given
// sensor, bound to its slice of the calibration context.
func NewSubsweepProcessor(sc *SensorConfig, dc *DetectorConfig, si int, bg *SensorBackground, refTempC float64, filter *DepthFilter) *SubsweepProcessor {
	return &SubsweepProcessor{
		sub:    sc.Subsweeps[si],
		sc:     sc,
		dc:     dc,
		bg:     bg.Subsweeps[si],
		offset: bg.LoopbackPeakM,
		refC:   refTempC,
		filter: filter,
		fft:    fourier.NewCmplxFFT(sc.SweepsPerFrame),
		fftIn:  make([]complex128, sc.SweepsPerFrame),
	}
}

// Process runs the full per-frame chain for this subsweep: depth filter,
// Doppler FFT, adaptive threshold, iterative peak extraction. An empty
// target list is a valid outcome; Process never fails.
func (p *SubsweepProcessor) Process(raw [][]complex128, tempC float64) SubsweepResult {
	filtered := p.filter.Apply(raw)
	if len(filtered) == 0 || len(filtered[0]) == 0 {
		return SubsweepResult{}
	}

	spectrum := p.dopplerFFT(filtered)
	power := powerMap(spectrum)
	threshold := p.thresholdMap(len(power[0]), tempC)

	targets := p.extractPeaks(spectrum, power, threshold)

	return SubsweepResult{
		Targets:   targets,
		PowerMap:  power,
		Threshold: threshold,
	}
}

// dopplerFFT transforms the sweep axis per range point. The result is
// indexed [dopplerBin][rangePoint] with bin 0 at zero Doppler (unshifted).
func (p *SubsweepProcessor) dopplerFFT(filtered [][]complex128) [][]complex128 {
	sweeps := len(filtered)
	points := len(filtered[0])

	if p.fftOut == nil || len(p.fftOut) != sweeps || len(p.fftOut[0]) != points {
		p.fftOut = make([][]complex128, sweeps)
		for b := range p.fftOut {
			p.fftOut[b] = make([]complex128, points)
		}
	}

	for r := 0; r < points; r++ {
		for s := 0; s < sweeps; s++ {
			p.fftIn[s] = filtered[s][r]
		}
		out := p.fft.Coefficients(nil, p.fftIn)
		for b := 0; b < sweeps; b++ {
			p.fftOut[b][r] = out[b]
		}
	}
	return p.fftOut
}

func powerMap(spectrum [][]complex128) [][]float64 {
	power := make([][]float64, len(spectrum))
	for b := range spectrum {
		row := make([]float64, len(spectrum[b]))
		for r, v := range spectrum[b] {
			row[r] = cmplxAbs(v)
		}
		power[b] = row
	}
	return power
}

// thresholdMap builds the adaptive per-bin, per-range threshold. The std
// term suppresses thermal noise in every bin; the mean term additionally
// suppresses static echoes, and therefore applies only in the zero-Doppler
// bin. Both background arrays are in power-map units already.
func (p *SubsweepProcessor) thresholdMap(points int, tempC float64) [][]float64 {
	bins := p.sc.SweepsPerFrame
	tempFactor := math.Pow(2, (tempC-p.refC)/tempNoiseDoublingC)

	threshold := make([][]float64, bins)
	for b := range threshold {
		row := make([]float64, points)
		for r := 0; r < points; r++ {
			std := 0.0
			mean := 0.0
			if r < len(p.bg.BgStd) {
				std = p.bg.BgStd[r]
				mean = p.bg.BgMean[r]
			}
			t := p.dc.NumStdThreshold * std * tempFactor
			if b == 0 {
				t += p.dc.NumMeanThreshold * mean
			}
			row[r] = t
		}
		threshold[b] = row
	}
	return threshold
}

// extractPeaks runs the iterative find-interpolate-subtract loop until no
// point exceeds threshold. Detections at either range boundary are
// subtracted but discarded: the filter crop makes their position ambiguous.
func (p *SubsweepProcessor) extractPeaks(spectrum [][]complex128, power, threshold [][]float64) []Target {
	var targets []Target
	points := len(power[0])

	for iter := 0; iter < maxPeaksPerSubsweep; iter++ {
		bin, idx, excess := maxExcess(power, threshold)
		if excess <= 0 {
			break
		}
		peak := power[bin][idx]

		if idx > 0 && idx < points-1 {
			targets = append(targets, p.makeTarget(spectrum, power, bin, idx))
		}
		p.subtractResponse(power, bin, idx, peak)
	}
	return targets
}

// maxExcess locates the global maximum of power - threshold.
func maxExcess(power, threshold [][]float64) (bin, idx int, excess float64) {
	excess = 0
	bin, idx = -1, -1
	for b := range power {
		for r := range power[b] {
			if d := power[b][r] - threshold[b][r]; d > excess {
				excess = d
				bin, idx = b, r
			}
		}
	}
	return bin, idx, excess
}

func (p *SubsweepProcessor) makeTarget(spectrum [][]complex128, power [][]float64, bin, idx int) Target {
	rangeDelta := quadraticInterp(power[bin], idx)
	dopplerDelta := p.quinnInterp(spectrum, bin, idx)

	pointLen := p.sub.PointLengthM()
	margin := p.filter.Margin()
	distance := p.sub.StartPointM + (float64(margin+idx)+rangeDelta)*pointLen - p.offset

	velocity := (signedBin(bin, p.sc.SweepsPerFrame) + dopplerDelta) * p.sc.VelocityPerBin()

	std := minNoiseStd
	if idx < len(p.bg.BgStd) && p.bg.BgStd[idx] > minNoiseStd {
		std = p.bg.BgStd[idx]
	}
	strength := 10 * math.Log10(power[bin][idx]/std)

	return Target{
		DistanceM:   distance,
		VelocityMPS: velocity,
		StrengthDB:  strength,
	}
}

// signedBin maps an unshifted FFT bin to its signed Doppler index. Positive
// indices are receding, negative approaching.
func signedBin(bin, n int) float64 {
	if bin <= n/2 {
		return float64(bin)
	}
	return float64(bin - n)
}

// quadraticInterp refines a peak position with a three-point quadratic fit.
// At the ends of the axis it returns zero: the raw integer index stands.
func quadraticInterp(row []float64, idx int) float64 {
	if idx <= 0 || idx >= len(row)-1 {
		return 0
	}
	ym, y0, yp := row[idx-1], row[idx], row[idx+1]
	denom := ym - 2*y0 + yp
	if math.Abs(denom) < quinnEpsilon {
		return 0
	}
	d := 0.5 * (ym - yp) / denom
	if d > 0.5 {
		d = 0.5
	} else if d < -0.5 {
		d = -0.5
	}
	return d
}

// quinnInterp estimates the sub-bin Doppler offset with Quinn's estimator
// on the complex FFT values of the neighbouring bins (wrap-around).
func (p *SubsweepProcessor) quinnInterp(spectrum [][]complex128, bin, idx int) float64 {
	n := p.sc.SweepsPerFrame
	km := (bin - 1 + n) % n
	kp := (bin + 1) % n

	xk := spectrum[bin][idx]
	mag2 := real(xk)*real(xk) + imag(xk)*imag(xk)
	if mag2 < quinnEpsilon {
		return 0
	}

	ap := real(spectrum[kp][idx]*cmplx.Conj(xk)) / mag2
	dp := -ap / nonZero(1-ap)
	am := real(spectrum[km][idx]*cmplx.Conj(xk)) / mag2
	dm := am / nonZero(1-am)

	d := dm
	if dp > 0 && dm > 0 {
		d = dp
	}
	if d > 0.5 {
		d = 0.5
	} else if d < -0.5 {
		d = -0.5
	}
	return d
}

func nonZero(v float64) float64 {
	if math.Abs(v) < quinnEpsilon {
		if v < 0 {
			return -quinnEpsilon
		}
		return quinnEpsilon
	}
	return v
}

// subtractResponse removes a synthetic reflector response at the extracted
// peak so subsequent iterations find peaks net of this target's skirt:
// triangular envelope in range, resonance-like kernel in Doppler, never
// driving the power map negative.
func (p *SubsweepProcessor) subtractResponse(power [][]float64, bin, idx int, peak float64) {
	n := len(power)
	points := len(power[0])

	pointLen := p.sub.PointLengthM()
	halfWidth := int(math.Ceil(p.sub.Profile.FWHM() / pointLen))
	if halfWidth < 1 {
		halfWidth = 1
	}

	for dr := -halfWidth; dr <= halfWidth; dr++ {
		r := idx + dr
		if r < 0 || r >= points {
			continue
		}
		tri := 1 - math.Abs(float64(dr))/float64(halfWidth+1)

		for db := -dopplerKernelHalfWidthBins; db <= dopplerKernelHalfWidthBins; db++ {
			b := ((bin+db)%n + n) % n
			lorentz := 1 / (1 + math.Pow(float64(db)/dopplerKernelShape, 2))

			v := power[b][r] - peak*tri*lorentz
			if v < 0 {
				v = 0
			}
			power[b][r] = v
		}
	}
}

func cmplxAbs(v complex128) float64 {
	return math.Hypot(real(v), imag(v))
}
