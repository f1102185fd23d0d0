package radar

import (
	"math"
	"testing"
)

func TestBilateratorEmptyLists(t *testing.T) {
	b := NewBilaterator(0.1)
	if b.Combine(nil, []Target{{DistanceM: 1}}) != nil {
		t.Error("expected nil for empty first list")
	}
	if b.Combine([]Target{{DistanceM: 1}}, nil) != nil {
		t.Error("expected nil for empty second list")
	}
}

func TestBilateratorAngle(t *testing.T) {
	sep := 0.1
	b := NewBilaterator(sep)

	// diff = sep * sin(30 deg).
	first := []Target{{DistanceM: 1.0, VelocityMPS: 0.2}}
	second := []Target{{DistanceM: 1.0 + sep*0.5, VelocityMPS: 0.4}}

	res := b.Combine(first, second)
	if res == nil {
		t.Fatal("expected a result")
	}
	if math.Abs(res.AngleDeg-30) > 1e-9 {
		t.Errorf("angle %v, want 30", res.AngleDeg)
	}
	if math.Abs(res.DistanceM-(1.0+sep*0.25)) > 1e-12 {
		t.Errorf("distance %v, want %v", res.DistanceM, 1.0+sep*0.25)
	}
	if math.Abs(res.VelocityMPS-0.3) > 1e-12 {
		t.Errorf("velocity %v, want 0.3", res.VelocityMPS)
	}
}

func TestBilateratorSign(t *testing.T) {
	b := NewBilaterator(0.1)

	// First sensor farther: negative angle.
	res := b.Combine([]Target{{DistanceM: 1.05}}, []Target{{DistanceM: 1.0}})
	if res == nil || res.AngleDeg >= 0 {
		t.Errorf("want negative angle, got %+v", res)
	}
}

func TestBilateratorSpuriousCutoff(t *testing.T) {
	sep := 0.1
	b := NewBilaterator(sep)

	// Exactly 1.2x separation is rejected.
	res := b.Combine([]Target{{DistanceM: 1.0}}, []Target{{DistanceM: 1.0 + 1.2*sep}})
	if res != nil {
		t.Errorf("diff at cutoff should be rejected, got %+v", res)
	}

	// Just inside: accepted, ratio clamps to +/-1 for a 90 degree estimate.
	res = b.Combine([]Target{{DistanceM: 1.0}}, []Target{{DistanceM: 1.0 + 1.19*sep}})
	if res == nil {
		t.Fatal("diff inside cutoff should be accepted")
	}
	if math.Abs(res.AngleDeg-90) > 1e-9 {
		t.Errorf("angle %v, want clamped 90", res.AngleDeg)
	}
}
