package radar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/obstacle.report/internal/monitoring"
)

// Lifecycle errors. Double start/stop indicates misuse of the session API
// and is reported loudly rather than swallowed; ErrNotCalibrated is the
// distinct blocking status a caller can react to by running Calibrate.
var (
	ErrAlreadyStarted = errors.New("detector already started")
	ErrNotStarted     = errors.New("detector not started")
	ErrAlreadyStopped = errors.New("detector already stopped")
	ErrNotCalibrated  = errors.New("detector not calibrated")
)

// SessionState is the detector lifecycle position.
type SessionState string

const (
	StateNotStarted SessionState = "not_started"
	StateStarted    SessionState = "started"
	StateStopped    SessionState = "stopped"
)

// DetectorStatus is a snapshot of the detector lifecycle for callers and
// the HTTP status surface.
type DetectorStatus struct {
	State                SessionState `json:"state"`
	Calibrated           bool         `json:"calibrated"`
	CalibrationUnixNanos int64        `json:"calibration_unix_nanos,omitempty"`
	FramesProcessed      int64        `json:"frames_processed"`
}

// FrameSource supplies decoded frames. Implementations own the connection
// lifecycle; the detector only consumes. ReadFrame blocks until one frame
// is available or the context ends.
type FrameSource interface {
	ReadFrame(ctx context.Context) (*Frame, error)
	Close() error
}

// Detector orchestrates the obstacle pipeline across one or two sensors:
// calibration, per-subsweep FFT processing, merging, Kalman tracking and
// optional bilateration. All processing is synchronous and pull-based.
type Detector struct {
	mu sync.Mutex

	sc     *SensorConfig
	dc     *DetectorConfig
	source FrameSource

	filters []*DepthFilter // one per subsweep, shared across sensors
	procs   map[int][]*SubsweepProcessor
	banks   map[int]*FilterBank
	bilat   *Bilaterator

	calibration *ProcessorContext
	robotVelMPS float64

	state  SessionState
	frames int64
}

// NewDetector validates the configuration and builds an idle detector.
// Configuration errors are fatal here, before any streaming starts.
func NewDetector(sc *SensorConfig, dc *DetectorConfig, source FrameSource) (*Detector, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if err := dc.Validate(); err != nil {
		return nil, err
	}
	if dc.EnableLoopback && len(sc.Subsweeps) < 2 {
		return nil, fmt.Errorf("detector config: loopback requires a dedicated subsweep plus at least one detection subsweep")
	}

	d := &Detector{
		sc:      sc,
		dc:      dc,
		source:  source,
		filters: make([]*DepthFilter, len(sc.Subsweeps)),
		state:   StateNotStarted,
	}
	for i, sub := range sc.Subsweeps {
		d.filters[i] = NewDepthFilter(sub)
	}
	if dc.EnableBilateration {
		d.bilat = NewBilaterator(dc.SensorSpacingM)
	}
	return d, nil
}

// Calibrate collects a fixed number of frames per sensor and computes the
// background noise model, reference temperature and loopback offset. It
// replaces any previous calibration. Not permitted mid-session.
func (d *Detector) Calibrate(ctx context.Context) (*ProcessorContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateStarted {
		return nil, ErrAlreadyStarted
	}

	collected := make(map[int][]*Frame, len(d.dc.SensorIDs))
	var tempSum float64
	var tempN int
	need := d.dc.CalibrationFrames

	for !calibrationComplete(collected, d.dc.SensorIDs, need) {
		f, err := d.source.ReadFrame(ctx)
		if err != nil {
			return nil, fmt.Errorf("calibration read: %w", err)
		}
		if len(collected[f.SensorID]) < need {
			collected[f.SensorID] = append(collected[f.SensorID], f)
			tempSum += f.TempC
			tempN++
		}
	}

	pc := &ProcessorContext{
		ConfigHash:     ConfigHash(d.sc, d.dc),
		RefTempC:       tempSum / float64(tempN),
		TakenUnixNanos: time.Now().UnixNano(),
		Sensors:        make(map[int]*SensorBackground, len(d.dc.SensorIDs)),
	}
	for _, id := range d.dc.SensorIDs {
		bg, err := buildSensorBackground(collected[id], d.sc, d.dc, d.filters)
		if err != nil {
			return nil, fmt.Errorf("sensor %d: %w", id, err)
		}
		pc.Sensors[id] = bg
	}

	d.applyCalibration(pc)
	monitoring.Logf("calibration complete: %d sensors, ref temp %.1fC", len(pc.Sensors), pc.RefTempC)
	return pc, nil
}

func calibrationComplete(collected map[int][]*Frame, ids []int, need int) bool {
	for _, id := range ids {
		if len(collected[id]) < need {
			return false
		}
	}
	return true
}

// SetCalibration installs a previously stored calibration so a session can
// start without re-running Calibrate. A hash mismatch against the current
// configuration is a configuration error.
func (d *Detector) SetCalibration(pc *ProcessorContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateStarted {
		return ErrAlreadyStarted
	}
	if err := pc.CheckCompatible(ConfigHash(d.sc, d.dc)); err != nil {
		return err
	}
	for _, id := range d.dc.SensorIDs {
		if pc.Sensors[id] == nil {
			return fmt.Errorf("calibration incompatible: no background for sensor %d", id)
		}
	}
	d.applyCalibration(pc)
	return nil
}

// applyCalibration builds the per-sensor processor and filter-bank state.
// Caller holds d.mu.
func (d *Detector) applyCalibration(pc *ProcessorContext) {
	d.calibration = pc
	d.procs = make(map[int][]*SubsweepProcessor, len(d.dc.SensorIDs))
	d.banks = make(map[int]*FilterBank, len(d.dc.SensorIDs))
	for _, id := range d.dc.SensorIDs {
		procs := make([]*SubsweepProcessor, len(d.sc.Subsweeps))
		for si := range d.sc.Subsweeps {
			procs[si] = NewSubsweepProcessor(d.sc, d.dc, si, pc.Sensors[id], pc.RefTempC, d.filters[si])
		}
		d.procs[id] = procs
		d.banks[id] = NewFilterBank(d.dc, d.sc.FrameRateHz)
	}
}

// SetRobotVelocity records the platform's assumed own velocity. It is
// echoed in results and reported to consumers; it does not alter the
// per-detection Doppler estimates.
func (d *Detector) SetRobotVelocity(v float64) {
	d.mu.Lock()
	d.robotVelMPS = v
	d.mu.Unlock()
}

// Start transitions the session into streaming. Starting twice or starting
// without a calibration is an error.
func (d *Detector) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case StateStarted:
		return ErrAlreadyStarted
	case StateStopped:
		return fmt.Errorf("detector session is not restartable: %w", ErrAlreadyStopped)
	}
	if d.calibration == nil {
		return ErrNotCalibrated
	}
	d.state = StateStarted
	return nil
}

// Stop ends the session. Stopping a never-started or already-stopped
// detector is an error.
func (d *Detector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case StateNotStarted:
		return ErrNotStarted
	case StateStopped:
		return ErrAlreadyStopped
	}
	d.state = StateStopped
	return nil
}

// Status reports the current lifecycle snapshot.
func (d *Detector) Status() DetectorStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := DetectorStatus{
		State:           d.state,
		Calibrated:      d.calibration != nil,
		FramesProcessed: d.frames,
	}
	if d.calibration != nil {
		st.CalibrationUnixNanos = d.calibration.TakenUnixNanos
	}
	return st
}

// Calibration returns the active calibration context, or nil.
func (d *Detector) Calibration() *ProcessorContext {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calibration
}

// GetNext reads one frame per configured sensor, runs the full pipeline and
// returns the frame result. For a bilateration pair both sensors' frames
// are collected before processing; their tick skew is reported, not
// corrected. Blocking is confined to the source read.
func (d *Detector) GetNext(ctx context.Context) (*DetectorResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateStarted {
		return nil, ErrNotStarted
	}

	frames := make(map[int]*Frame, len(d.dc.SensorIDs))
	for len(frames) < len(d.dc.SensorIDs) {
		f, err := d.source.ReadFrame(ctx)
		if err != nil {
			return nil, err
		}
		if _, want := d.banks[f.SensorID]; !want {
			continue
		}
		frames[f.SensorID] = f
	}

	res := &DetectorResult{
		RobotVelocityMPS: d.robotVelMPS,
		Sensors:          make(map[int]*ProcessorResult, len(frames)),
		Tracked:          make(map[int][]TrackedTarget, len(frames)),
	}

	firstSub := 0
	if d.dc.EnableLoopback {
		firstSub = 1
	}

	for _, id := range d.dc.SensorIDs {
		f := frames[id]
		if res.TickNanos == 0 || f.TickNanos < res.TickNanos {
			res.TickNanos = f.TickNanos
		}

		pr := &ProcessorResult{TempC: f.TempC}
		var raw []Target
		for si := firstSub; si < len(d.sc.Subsweeps) && si < len(f.Subsweeps); si++ {
			sr := d.procs[id][si].Process(f.Subsweeps[si], f.TempC)
			raw = append(raw, sr.Targets...)
			pr.Subsweeps = append(pr.Subsweeps, sr)
		}
		pr.Targets = MergeTargets(raw)
		SortTargets(pr.Targets, d.dc.PeakSorting)
		res.Sensors[id] = pr
		res.Tracked[id] = d.banks[id].Step(pr.Targets)
	}

	if d.bilat != nil {
		a, b := d.dc.SensorIDs[0], d.dc.SensorIDs[1]
		res.TimeOffsetNanos = frames[a].TickNanos - frames[b].TickNanos
		res.Bilateration = d.bilat.Combine(res.Sensors[a].Targets, res.Sensors[b].Targets)
	}

	if d.dc.EnableCloseProximity {
		for _, pr := range res.Sensors {
			for _, t := range pr.Targets {
				if t.DistanceM < d.dc.CloseProximityThresholdM {
					res.CloseProximity = true
				}
			}
		}
	}

	d.frames++
	return res, nil
}
