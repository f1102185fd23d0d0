package radar

import "math"

// spuriousSeparationFactor bounds the distance difference a single object
// can present to two sensors. Beyond it the geometry is physically
// inconsistent: two different objects, not one seen twice.
const spuriousSeparationFactor = 1.2

// Bilaterator combines the top targets of two laterally separated sensors
// into a bearing estimate.
type Bilaterator struct {
	separationM float64
}

// NewBilaterator creates a bilaterator for the given sensor spacing.
func NewBilaterator(separationM float64) *Bilaterator {
	return &Bilaterator{separationM: separationM}
}

// Combine takes each sensor's top target list (already sorted by the
// configured policy) and returns the merged bearing estimate, or nil when
// either sensor saw nothing or the pairing is geometrically inconsistent.
// The sign convention: a greater distance at the second sensor yields a
// positive angle.
func (b *Bilaterator) Combine(first, second []Target) *BilateratorResult {
	if len(first) == 0 || len(second) == 0 {
		return nil
	}
	t1, t2 := first[0], second[0]

	diff := t2.DistanceM - t1.DistanceM
	if math.Abs(diff) >= spuriousSeparationFactor*b.separationM {
		return nil
	}

	ratio := diff / b.separationM
	if ratio > 1 {
		ratio = 1
	} else if ratio < -1 {
		ratio = -1
	}

	return &BilateratorResult{
		AngleDeg:    math.Asin(ratio) * 180 / math.Pi,
		DistanceM:   (t1.DistanceM + t2.DistanceM) / 2,
		VelocityMPS: (t1.VelocityMPS + t2.VelocityMPS) / 2,
	}
}
