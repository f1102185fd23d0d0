package radar

// Frame is one measurement cycle from a single sensor: one complex sample
// matrix per configured subsweep, each shaped [sweeps][points], plus the
// sensor temperature and a monotonic tick. A frame is consumed exactly once;
// the pipeline retains only derived statistics.
type Frame struct {
	SensorID  int
	TickNanos int64
	TempC     float64

	// Subsweeps[i][s][p] is the complex sample at sweep s, range point p of
	// subsweep i. When loopback correction is enabled, subsweep 0 carries
	// the loopback measurement and is excluded from detection.
	Subsweeps [][][]complex128
}

// Target is a single detection produced by the FFT processor: physical
// distance, signed radial velocity (negative = approaching) and a
// signal-to-noise strength in dB.
type Target struct {
	DistanceM   float64 `json:"distance_m"`
	VelocityMPS float64 `json:"velocity_mps"`
	StrengthDB  float64 `json:"strength_db"`
}

// SubsweepResult carries per-subsweep detections along with the diagnostic
// maps a renderer may want to display. PowerMap and Threshold are indexed
// [dopplerBin][rangePoint] over the cropped range axis.
type SubsweepResult struct {
	Targets   []Target    `json:"targets"`
	PowerMap  [][]float64 `json:"power_map,omitempty"`
	Threshold [][]float64 `json:"threshold,omitempty"`
}

// ProcessorResult is the per-sensor output for one frame: the merged and
// sorted target list plus per-subsweep diagnostics.
type ProcessorResult struct {
	Targets   []Target         `json:"targets"`
	Subsweeps []SubsweepResult `json:"subsweeps,omitempty"`
	TempC     float64          `json:"temp_c"`
}

// TrackedTarget is a Kalman-filtered target estimate. Estimates are only
// reported once the underlying filter has seen enough updates (HasInit).
type TrackedTarget struct {
	ID          string  `json:"id"`
	DistanceM   float64 `json:"distance_m"`
	VelocityMPS float64 `json:"velocity_mps"`
	StrengthDB  float64 `json:"strength_db"`
	HasInit     bool    `json:"has_init"`
	DeadReckons int     `json:"dead_reckons"`
}

// BilateratorResult is the merged two-sensor estimate: bearing angle in
// degrees (positive when the second sensor sees the object farther away)
// plus mean distance and velocity of the paired targets.
type BilateratorResult struct {
	AngleDeg    float64 `json:"angle_deg"`
	DistanceM   float64 `json:"distance_m"`
	VelocityMPS float64 `json:"velocity_mps"`
}

// DetectorResult is the per-frame output of the detector: one ProcessorResult
// and tracked-target list per sensor, the externally supplied robot velocity,
// the optional bilateration estimate, and the close-proximity gate.
type DetectorResult struct {
	TickNanos        int64                    `json:"tick_nanos"`
	RobotVelocityMPS float64                  `json:"robot_velocity_mps"`
	Sensors          map[int]*ProcessorResult `json:"sensors"`
	Tracked          map[int][]TrackedTarget  `json:"tracked"`
	Bilateration     *BilateratorResult       `json:"bilateration,omitempty"`
	CloseProximity   bool                     `json:"close_proximity"`

	// TimeOffsetNanos is the tick skew between the two sensors of a
	// bilateration pair. It is reported, not corrected.
	TimeOffsetNanos int64 `json:"time_offset_nanos,omitempty"`
}
