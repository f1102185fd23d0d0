package radar

import (
	"math"
	"testing"
)

func trackingConfig() *DetectorConfig {
	dc := DefaultDetectorConfig()
	return &dc
}

func TestFilterBankSpawnAndInit(t *testing.T) {
	cfg := trackingConfig()
	cfg.MinNumUpdatesValidEstimate = 3
	fb := NewFilterBank(cfg, 10)

	det := []Target{{DistanceM: 1.0, VelocityMPS: 0.0, StrengthDB: 12}}

	// Spawn counts as the first update.
	out := fb.Step(det)
	if len(out) != 1 {
		t.Fatalf("frame 1: %d tracks, want 1", len(out))
	}
	if out[0].HasInit {
		t.Error("frame 1: track initialized too early")
	}

	out = fb.Step(det)
	if out[0].HasInit {
		t.Error("frame 2: track initialized too early")
	}

	out = fb.Step(det)
	if !out[0].HasInit {
		t.Error("frame 3: track should be initialized")
	}
}

func TestFilterBankInitImmediateWhenMinIsOne(t *testing.T) {
	cfg := trackingConfig()
	cfg.MinNumUpdatesValidEstimate = 1
	fb := NewFilterBank(cfg, 10)

	out := fb.Step([]Target{{DistanceM: 1.0}})
	if len(out) != 1 || !out[0].HasInit {
		t.Errorf("want immediate init, got %+v", out)
	}
}

func TestFilterBankDeadReckoningLifetime(t *testing.T) {
	cfg := trackingConfig()
	cfg.MinNumUpdatesValidEstimate = 1
	cfg.DeadReckoningFrames = 3
	fb := NewFilterBank(cfg, 10)

	fb.Step([]Target{{DistanceM: 1.0, VelocityMPS: 0.1}})

	// The track coasts for exactly DeadReckoningFrames empty frames.
	for miss := 1; miss <= 3; miss++ {
		out := fb.Step(nil)
		if len(out) != 1 {
			t.Fatalf("miss %d: %d tracks, want 1", miss, len(out))
		}
		if out[0].DeadReckons != miss {
			t.Errorf("miss %d: dead reckons %d", miss, out[0].DeadReckons)
		}
	}

	// One more miss retires it.
	if out := fb.Step(nil); len(out) != 0 {
		t.Fatalf("track survived beyond dead-reckoning limit: %+v", out)
	}
}

func TestFilterBankUninitializedRetiresOnFirstMiss(t *testing.T) {
	cfg := trackingConfig()
	cfg.MinNumUpdatesValidEstimate = 3
	cfg.DeadReckoningFrames = 10
	fb := NewFilterBank(cfg, 10)

	fb.Step([]Target{{DistanceM: 1.0}})
	if out := fb.Step(nil); len(out) != 0 {
		t.Fatalf("uninitialized track should retire on first miss, got %+v", out)
	}
}

func TestFilterBankDeadReckoningAdvancesState(t *testing.T) {
	cfg := trackingConfig()
	cfg.MinNumUpdatesValidEstimate = 1
	cfg.DeadReckoningFrames = 5
	fb := NewFilterBank(cfg, 10)

	fb.Step([]Target{{DistanceM: 1.0, VelocityMPS: 0.5}})
	out := fb.Step(nil)
	if len(out) != 1 {
		t.Fatal("track lost")
	}
	// dt = 0.1 s at 0.5 m/s.
	if math.Abs(out[0].DistanceM-1.05) > 1e-9 {
		t.Errorf("coasted distance %v, want 1.05", out[0].DistanceM)
	}
}

func TestFilterBankConvergesOnConstantVelocity(t *testing.T) {
	cfg := trackingConfig()
	cfg.MinNumUpdatesValidEstimate = 1
	fb := NewFilterBank(cfg, 10)

	const dt = 0.1
	var last TrackedTarget
	for k := 0; k < 30; k++ {
		d := 2.0 - 0.3*float64(k)*dt
		out := fb.Step([]Target{{DistanceM: d, VelocityMPS: -0.3}})
		if len(out) != 1 {
			t.Fatalf("frame %d: %d tracks, want 1", k, len(out))
		}
		last = out[0]
	}

	wantD := 2.0 - 0.3*29*dt
	if math.Abs(last.DistanceM-wantD) > 0.02 {
		t.Errorf("distance %v, want ~%v", last.DistanceM, wantD)
	}
	if math.Abs(last.VelocityMPS+0.3) > 0.05 {
		t.Errorf("velocity %v, want ~-0.3", last.VelocityMPS)
	}
}

func TestFilterBankGateSpawnsInsteadOfUpdating(t *testing.T) {
	cfg := trackingConfig()
	cfg.MinNumUpdatesValidEstimate = 1
	cfg.MaxMeasStateDiffM = 0.15
	fb := NewFilterBank(cfg, 10)

	fb.Step([]Target{{DistanceM: 1.0}})
	// A detection outside the gate must not be claimed by the old track.
	out := fb.Step([]Target{{DistanceM: 1.5}})

	if fb.ActiveCount() != 2 {
		t.Fatalf("active filters %d, want 2", fb.ActiveCount())
	}
	if len(out) != 2 {
		t.Fatalf("%d tracks reported, want 2", len(out))
	}
}

func TestFilterBankNoDoubleClaim(t *testing.T) {
	cfg := trackingConfig()
	cfg.MinNumUpdatesValidEstimate = 1
	fb := NewFilterBank(cfg, 10)

	dets := []Target{
		{DistanceM: 1.0, VelocityMPS: 0},
		{DistanceM: 1.1, VelocityMPS: 0},
	}
	fb.Step(dets)
	out := fb.Step(dets)

	if len(out) != 2 {
		t.Fatalf("%d tracks, want 2", len(out))
	}
	// Both filters matched: neither is dead reckoning.
	for _, tr := range out {
		if tr.DeadReckons != 0 {
			t.Errorf("track %s dead reckoning after matched frame", tr.ID)
		}
	}
	if out[0].ID == out[1].ID {
		t.Error("duplicate track ids")
	}
}

func TestFilterBankDistinctIDs(t *testing.T) {
	cfg := trackingConfig()
	cfg.MinNumUpdatesValidEstimate = 1
	fb := NewFilterBank(cfg, 10)

	out := fb.Step([]Target{{DistanceM: 0.5}, {DistanceM: 1.5}, {DistanceM: 2.5}})
	seen := make(map[string]bool)
	for _, tr := range out {
		if seen[tr.ID] {
			t.Fatalf("duplicate id %s", tr.ID)
		}
		seen[tr.ID] = true
	}
}
