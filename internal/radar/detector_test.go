package radar_test

import (
	"context"
	"errors"
	"math"
	"testing"

	radar "github.com/banshee-data/obstacle.report/internal/radar"
	"github.com/banshee-data/obstacle.report/internal/sensor"
)

func e2eSensorConfig() *radar.SensorConfig {
	return &radar.SensorConfig{
		Subsweeps: []radar.SubsweepConfig{
			{StartPointM: 0.2, NumPoints: 48, StepLength: 12, Profile: radar.Profile1, HWAAS: 8},
		},
		SweepsPerFrame: 16,
		SweepRateHz:    2000,
		FrameRateHz:    10,
	}
}

func e2eDetectorConfig() radar.DetectorConfig {
	dc := radar.DefaultDetectorConfig()
	dc.CalibrationFrames = 8
	return dc
}

func newCalibratedDetector(t *testing.T, sc *radar.SensorConfig, dc radar.DetectorConfig, src radar.FrameSource) *radar.Detector {
	t.Helper()
	d, err := radar.NewDetector(sc, &dc, src)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	if _, err := d.Calibrate(context.Background()); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	return d
}

func TestDetectorLifecycle(t *testing.T) {
	sc := e2eSensorConfig()
	dc := e2eDetectorConfig()
	src := sensor.NewSyntheticSource(sc, dc.SensorIDs, 1)

	d, err := radar.NewDetector(sc, &dc, src)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	if err := d.Start(); !errors.Is(err, radar.ErrNotCalibrated) {
		t.Errorf("Start before calibration: %v, want ErrNotCalibrated", err)
	}
	if err := d.Stop(); !errors.Is(err, radar.ErrNotStarted) {
		t.Errorf("Stop before start: %v, want ErrNotStarted", err)
	}
	if _, err := d.GetNext(context.Background()); !errors.Is(err, radar.ErrNotStarted) {
		t.Errorf("GetNext before start: %v, want ErrNotStarted", err)
	}

	if _, err := d.Calibrate(context.Background()); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	st := d.Status()
	if !st.Calibrated || st.State != radar.StateNotStarted {
		t.Errorf("status after calibration: %+v", st)
	}

	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(); !errors.Is(err, radar.ErrAlreadyStarted) {
		t.Errorf("double Start: %v, want ErrAlreadyStarted", err)
	}
	if _, err := d.Calibrate(context.Background()); !errors.Is(err, radar.ErrAlreadyStarted) {
		t.Errorf("Calibrate mid-session: %v, want ErrAlreadyStarted", err)
	}

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := d.Stop(); !errors.Is(err, radar.ErrAlreadyStopped) {
		t.Errorf("double Stop: %v, want ErrAlreadyStopped", err)
	}
	if err := d.Start(); !errors.Is(err, radar.ErrAlreadyStopped) {
		t.Errorf("restart after Stop: %v, want ErrAlreadyStopped", err)
	}
}

func TestDetectorLoopbackNeedsTwoSubsweeps(t *testing.T) {
	sc := e2eSensorConfig()
	dc := e2eDetectorConfig()
	dc.EnableLoopback = true
	if _, err := radar.NewDetector(sc, &dc, nil); err == nil {
		t.Error("loopback with one subsweep accepted")
	}
}

func TestDetectorSetCalibration(t *testing.T) {
	sc := e2eSensorConfig()
	dc := e2eDetectorConfig()
	src := sensor.NewSyntheticSource(sc, dc.SensorIDs, 2)
	d := newCalibratedDetector(t, sc, dc, src)
	pc := d.Calibration()

	// Same configuration: reusable.
	d2, err := radar.NewDetector(e2eSensorConfig(), &dc, src)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	if err := d2.SetCalibration(pc); err != nil {
		t.Fatalf("SetCalibration: %v", err)
	}
	if err := d2.Start(); err != nil {
		t.Errorf("Start with restored calibration: %v", err)
	}

	// Changed sensor geometry: rejected.
	sc3 := e2eSensorConfig()
	sc3.Subsweeps[0].NumPoints = 64
	d3, err := radar.NewDetector(sc3, &dc, src)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	if err := d3.SetCalibration(pc); err == nil {
		t.Error("incompatible calibration accepted")
	}
}

func TestDetectorTracksSyntheticReflector(t *testing.T) {
	sc := e2eSensorConfig()
	dc := e2eDetectorConfig()

	src := sensor.NewSyntheticSource(sc, dc.SensorIDs, 3)
	// Two Doppler bins of recession, appearing after the calibration window.
	v := 2 * sc.VelocityPerBin()
	src.Reflectors = []sensor.Reflector{
		{RangeM: 0.5, VelocityMPS: v, Amplitude: 10, AppearAfter: dc.CalibrationFrames},
	}

	d := newCalibratedDetector(t, sc, dc, src)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.SetRobotVelocity(0.25)

	var last *radar.DetectorResult
	for i := 0; i < 6; i++ {
		res, err := d.GetNext(context.Background())
		if err != nil {
			t.Fatalf("GetNext %d: %v", i, err)
		}
		last = res
	}

	if last.RobotVelocityMPS != 0.25 {
		t.Errorf("robot velocity %v, want 0.25", last.RobotVelocityMPS)
	}

	tracks := last.Tracked[dc.SensorIDs[0]]
	var got *radar.TrackedTarget
	for i := range tracks {
		if tracks[i].HasInit {
			got = &tracks[i]
			break
		}
	}
	if got == nil {
		t.Fatalf("no initialized track after 6 frames: %+v", tracks)
	}

	if math.Abs(got.VelocityMPS-v) > sc.VelocityPerBin() {
		t.Errorf("tracked velocity %v, want ~%v", got.VelocityMPS, v)
	}
	// Reflector started at 0.5 m and recedes.
	if got.DistanceM < 0.45 || got.DistanceM > 1.1 {
		t.Errorf("tracked distance %v out of expected band", got.DistanceM)
	}

	st := d.Status()
	if st.FramesProcessed != 6 {
		t.Errorf("frames processed %d, want 6", st.FramesProcessed)
	}
}

func TestDetectorBilateration(t *testing.T) {
	sc := e2eSensorConfig()
	dc := e2eDetectorConfig()
	dc.SensorIDs = []int{1, 2}
	dc.EnableBilateration = true
	dc.SensorSpacingM = 0.1

	src := sensor.NewSyntheticSource(sc, dc.SensorIDs, 4)
	v := 2 * sc.VelocityPerBin()
	src.Reflectors = []sensor.Reflector{
		{RangeM: 0.6, VelocityMPS: v, Amplitude: 10, AppearAfter: dc.CalibrationFrames},
	}

	d := newCalibratedDetector(t, sc, dc, src)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var res *radar.DetectorResult
	for i := 0; i < 4; i++ {
		var err error
		res, err = d.GetNext(context.Background())
		if err != nil {
			t.Fatalf("GetNext: %v", err)
		}
	}

	if res.TimeOffsetNanos != 0 {
		t.Errorf("time offset %d, want 0 for paired synthetic frames", res.TimeOffsetNanos)
	}
	if res.Bilateration == nil {
		t.Fatal("no bilateration result")
	}
	// Both sensors see the same scene: head-on.
	if math.Abs(res.Bilateration.AngleDeg) > 10 {
		t.Errorf("angle %v, want ~0", res.Bilateration.AngleDeg)
	}
}

func TestDetectorCloseProximity(t *testing.T) {
	sc := e2eSensorConfig()
	dc := e2eDetectorConfig()
	dc.EnableCloseProximity = true
	dc.CloseProximityThresholdM = 0.45

	src := sensor.NewSyntheticSource(sc, dc.SensorIDs, 5)
	v := 2 * sc.VelocityPerBin()
	src.Reflectors = []sensor.Reflector{
		{RangeM: 0.35, VelocityMPS: v, Amplitude: 10, AppearAfter: dc.CalibrationFrames},
	}

	d := newCalibratedDetector(t, sc, dc, src)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := d.GetNext(context.Background())
	if err != nil {
		t.Fatalf("GetNext: %v", err)
	}
	if !res.CloseProximity {
		t.Error("close proximity not flagged for a 0.35 m target")
	}
}
