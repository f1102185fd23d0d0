// Package detect implements the lightweight streaming detectors (presence,
// breathing, button press, sparse speed) that share one pattern: a handful
// of exponentially smoothed running statistics with a warm-up schedule, and
// a thresholded decision with a dead-time against chattering.
package detect

// DynamicSmoothing returns the effective smoothing factor for update index
// idx (0-based). Early frames smooth less so the filter's own warm-up does
// not distort the statistic; the factor approaches staticSF asymptotically.
func DynamicSmoothing(staticSF float64, idx int) float64 {
	dynamic := 1 - 1/float64(idx+1)
	if dynamic < staticSF {
		return dynamic
	}
	return staticSF
}

// LowPass is a first-order exponential smoother with the dynamic warm-up
// schedule applied per update.
type LowPass struct {
	StaticSF float64

	value   float64
	updates int
}

// NewLowPass creates a smoother with the given steady-state factor in [0,1).
func NewLowPass(staticSF float64) *LowPass {
	return &LowPass{StaticSF: staticSF}
}

// Update feeds one sample and returns the smoothed value.
func (lp *LowPass) Update(x float64) float64 {
	sf := DynamicSmoothing(lp.StaticSF, lp.updates)
	lp.value = sf*lp.value + (1-sf)*x
	lp.updates++
	return lp.value
}

// Value returns the current smoothed value.
func (lp *LowPass) Value() float64 { return lp.value }

// Updates returns the number of samples consumed.
func (lp *LowPass) Updates() int { return lp.updates }

// VectorLowPass smooths a fixed-length vector element-wise with a shared
// warm-up schedule.
type VectorLowPass struct {
	StaticSF float64

	values  []float64
	updates int
}

// NewVectorLowPass creates a vector smoother for n elements.
func NewVectorLowPass(staticSF float64, n int) *VectorLowPass {
	return &VectorLowPass{StaticSF: staticSF, values: make([]float64, n)}
}

// Update feeds one vector sample. Inputs shorter than the filter length
// leave the tail untouched.
func (lp *VectorLowPass) Update(x []float64) []float64 {
	sf := DynamicSmoothing(lp.StaticSF, lp.updates)
	for i := range lp.values {
		if i < len(x) {
			lp.values[i] = sf*lp.values[i] + (1-sf)*x[i]
		}
	}
	lp.updates++
	return lp.values
}

// Values returns the current smoothed vector.
func (lp *VectorLowPass) Values() []float64 { return lp.values }
