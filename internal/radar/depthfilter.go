package radar

import "math"

// depthFilterCoeffs holds the second-order low-pass used to suppress
// out-of-band range-domain noise ahead of Doppler analysis.
type depthFilterCoeffs struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// DepthFilter applies a zero-phase low-pass along the range axis of a
// subsweep and crops the filter edge region. It is a pure function of the
// input and the coefficients designed at construction time.
type DepthFilter struct {
	coeffs depthFilterCoeffs
	margin int
}

// NewDepthFilter designs the range filter for a subsweep. The cutoff follows
// from the profile point-spread width relative to the configured step length:
// wider pulses tolerate a lower cutoff, and cost a larger edge margin.
func NewDepthFilter(sub SubsweepConfig) *DepthFilter {
	pointLen := sub.PointLengthM()
	fwhm := sub.Profile.FWHM()

	// Normalised cutoff as a fraction of Nyquist along the range axis.
	wc := pointLen / fwhm
	if wc < 0.01 {
		wc = 0.01
	}
	if wc > 0.99 {
		wc = 0.99
	}

	margin := int(math.Ceil(fwhm / pointLen))
	// The cropped axis must keep at least three points for peak
	// interpolation.
	for margin > 0 && sub.NumPoints-2*margin < 3 {
		margin--
	}

	return &DepthFilter{
		coeffs: butterworthLowPass(wc),
		margin: margin,
	}
}

// Margin returns the number of points cropped from each end of the range
// axis to avoid filter edge artifacts.
func (f *DepthFilter) Margin() int {
	return f.margin
}

// butterworthLowPass designs a second-order Butterworth low-pass via the
// bilinear transform. wc is the normalised cutoff in (0, 1), 1 = Nyquist.
func butterworthLowPass(wc float64) depthFilterCoeffs {
	k := math.Tan(math.Pi * wc / 2)
	k2 := k * k
	norm := 1 / (1 + math.Sqrt2*k + k2)
	return depthFilterCoeffs{
		b0: k2 * norm,
		b1: 2 * k2 * norm,
		b2: k2 * norm,
		a1: 2 * (k2 - 1) * norm,
		a2: (1 - math.Sqrt2*k + k2) * norm,
	}
}

// Apply filters every sweep of the subsweep forward then backward along the
// range axis (zero phase) and returns a fresh matrix cropped by Margin on
// both ends. The input is not modified.
func (f *DepthFilter) Apply(sub [][]complex128) [][]complex128 {
	if len(sub) == 0 {
		return nil
	}
	points := len(sub[0])
	cropped := points - 2*f.margin
	if cropped < 1 {
		cropped = points
	}

	out := make([][]complex128, len(sub))
	row := make([]complex128, points)
	for s := range sub {
		copy(row, sub[s])
		f.forward(row)
		f.backward(row)

		dst := make([]complex128, cropped)
		if cropped == points {
			copy(dst, row)
		} else {
			copy(dst, row[f.margin:points-f.margin])
		}
		out[s] = dst
	}
	return out
}

func (f *DepthFilter) forward(row []complex128) {
	c := f.coeffs
	var x1, x2, y1, y2 complex128
	for i := range row {
		x := row[i]
		y := complex(c.b0, 0)*x + complex(c.b1, 0)*x1 + complex(c.b2, 0)*x2 -
			complex(c.a1, 0)*y1 - complex(c.a2, 0)*y2
		x2, x1 = x1, x
		y2, y1 = y1, y
		row[i] = y
	}
}

func (f *DepthFilter) backward(row []complex128) {
	c := f.coeffs
	var x1, x2, y1, y2 complex128
	for i := len(row) - 1; i >= 0; i-- {
		x := row[i]
		y := complex(c.b0, 0)*x + complex(c.b1, 0)*x1 + complex(c.b2, 0)*x2 -
			complex(c.a1, 0)*y1 - complex(c.a2, 0)*y2
		x2, x1 = x1, x
		y2, y1 = y1, y
		row[i] = y
	}
}
