package detect

import (
	"math"
	"testing"
)

func TestDynamicSmoothingSchedule(t *testing.T) {
	cases := []struct {
		idx  int
		want float64
	}{
		{0, 0},     // first sample taken verbatim
		{1, 0.5},   // second sample averaged
		{3, 0.75},  // still below the static factor
		{99, 0.9},  // capped at the static factor
		{1000, 0.9},
	}
	for _, tc := range cases {
		if got := DynamicSmoothing(0.9, tc.idx); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("DynamicSmoothing(0.9, %d) = %v, want %v", tc.idx, got, tc.want)
		}
	}
}

func TestLowPassFirstSampleVerbatim(t *testing.T) {
	lp := NewLowPass(0.95)
	if got := lp.Update(7.5); got != 7.5 {
		t.Errorf("first update = %v, want 7.5", got)
	}
	if lp.Updates() != 1 {
		t.Errorf("updates = %d, want 1", lp.Updates())
	}
}

func TestLowPassConvergesToConstant(t *testing.T) {
	lp := NewLowPass(0.9)
	for i := 0; i < 200; i++ {
		lp.Update(3.0)
	}
	if math.Abs(lp.Value()-3.0) > 1e-9 {
		t.Errorf("value %v, want 3.0", lp.Value())
	}
}

func TestVectorLowPassElementwise(t *testing.T) {
	lp := NewVectorLowPass(0.5, 3)
	lp.Update([]float64{2, 4, 6})
	got := lp.Update([]float64{4, 8, 12})
	want := []float64{3, 6, 9}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("element %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestVectorLowPassShortInputLeavesTail(t *testing.T) {
	lp := NewVectorLowPass(0.5, 3)
	lp.Update([]float64{1, 1, 1})
	lp.Update([]float64{5})
	got := lp.Values()
	if got[1] != 1 || got[2] != 1 {
		t.Errorf("tail updated on short input: %v", got)
	}
}
