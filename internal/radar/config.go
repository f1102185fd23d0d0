package radar

import (
	"fmt"
	"hash/fnv"
	"math"
)

// Physical constants for the 60 GHz pulsed-coherent sensor.
const (
	// BasePointLengthM is the range-axis spacing of adjacent sample points
	// at step length 1.
	BasePointLengthM = 2.5e-3

	// RadarWavelengthM is the carrier wavelength at 60.5 GHz.
	RadarWavelengthM = 299792458.0 / 60.5e9
)

// Profile selects the sensor pulse profile, trading range resolution for SNR.
// Higher profiles use longer pulses: better SNR, wider point response.
type Profile int

const (
	Profile1 Profile = 1
	Profile2 Profile = 2
	Profile3 Profile = 3
	Profile4 Profile = 4
	Profile5 Profile = 5
)

// profileFWHM is the approximate full-width-half-maximum of the point spread
// response per profile, in metres.
var profileFWHM = map[Profile]float64{
	Profile1: 0.04,
	Profile2: 0.07,
	Profile3: 0.14,
	Profile4: 0.19,
	Profile5: 0.32,
}

// FWHM returns the point-spread full-width-half-maximum for the profile.
func (p Profile) FWHM() float64 {
	return profileFWHM[p]
}

// Valid reports whether p is a known profile.
func (p Profile) Valid() bool {
	_, ok := profileFWHM[p]
	return ok
}

// IdleState is the sensor inter-measurement idle depth.
type IdleState string

const (
	IdleDeepSleep IdleState = "deep_sleep"
	IdleSleep     IdleState = "sleep"
	IdleReady     IdleState = "ready"
)

// PeakSorting selects the consumption order of merged targets.
type PeakSorting string

const (
	// SortClosest orders targets by ascending distance.
	SortClosest PeakSorting = "closest"
	// SortStrongest orders targets by descending strength.
	SortStrongest PeakSorting = "strongest"
)

// SubsweepConfig describes one configured sub-range of a frame.
type SubsweepConfig struct {
	StartPointM float64 `json:"start_point_m"`
	NumPoints   int     `json:"num_points"`
	StepLength  int     `json:"step_length"`
	Profile     Profile `json:"profile"`
	HWAAS       int     `json:"hwaas"`
}

// EndPointM returns the physical end of the subsweep range.
func (s SubsweepConfig) EndPointM() float64 {
	return s.StartPointM + float64(s.NumPoints)*s.PointLengthM()
}

// PointLengthM returns the range spacing between adjacent sample points.
func (s SubsweepConfig) PointLengthM() float64 {
	return float64(s.StepLength) * BasePointLengthM
}

// SensorConfig is the immutable-per-session description of what the sensor
// measures. Built once per detector configuration; read-only while streaming.
type SensorConfig struct {
	Subsweeps      []SubsweepConfig `json:"subsweeps"`
	SweepsPerFrame int              `json:"sweeps_per_frame"`
	SweepRateHz    float64          `json:"sweep_rate_hz"`
	FrameRateHz    float64          `json:"frame_rate_hz"`
	InterSweepIdle IdleState        `json:"inter_sweep_idle"`
	InterFrameIdle IdleState        `json:"inter_frame_idle"`
}

// Validate checks the sensor configuration before a session may start.
func (c *SensorConfig) Validate() error {
	if len(c.Subsweeps) == 0 {
		return fmt.Errorf("sensor config: at least one subsweep required")
	}
	for i, s := range c.Subsweeps {
		if !s.Profile.Valid() {
			return fmt.Errorf("sensor config: subsweep %d: invalid profile %d", i, s.Profile)
		}
		if s.NumPoints <= 0 {
			return fmt.Errorf("sensor config: subsweep %d: num_points must be positive, got %d", i, s.NumPoints)
		}
		if s.StepLength <= 0 {
			return fmt.Errorf("sensor config: subsweep %d: step_length must be positive, got %d", i, s.StepLength)
		}
		if s.EndPointM() <= s.StartPointM {
			return fmt.Errorf("sensor config: subsweep %d: end %.3f <= start %.3f", i, s.EndPointM(), s.StartPointM)
		}
		if s.HWAAS < 1 {
			return fmt.Errorf("sensor config: subsweep %d: hwaas must be >= 1, got %d", i, s.HWAAS)
		}
	}
	// Doppler estimation needs at least two sweeps per frame.
	if c.SweepsPerFrame < 2 {
		return fmt.Errorf("sensor config: sweeps_per_frame must be >= 2, got %d", c.SweepsPerFrame)
	}
	if c.SweepRateHz <= 0 {
		return fmt.Errorf("sensor config: sweep_rate_hz must be positive, got %f", c.SweepRateHz)
	}
	if c.FrameRateHz <= 0 {
		return fmt.Errorf("sensor config: frame_rate_hz must be positive, got %f", c.FrameRateHz)
	}
	return nil
}

// VelocityPerBin returns the radial velocity represented by one Doppler bin.
func (c *SensorConfig) VelocityPerBin() float64 {
	return c.SweepRateHz / float64(c.SweepsPerFrame) * RadarWavelengthM / 2
}

// DetectorConfig holds the tuning surface of the obstacle detector.
type DetectorConfig struct {
	SensorIDs []int `json:"sensor_ids"`

	MaxRobotSpeedMPS float64     `json:"max_robot_speed_mps"`
	NumStdThreshold  float64     `json:"num_std_threshold"`
	NumMeanThreshold float64     `json:"num_mean_threshold"`
	PeakSorting      PeakSorting `json:"peak_sorting"`

	// Tracker tuning.
	Sensitivity                float64 `json:"sensitivity"` // [0,1], higher = more responsive
	DeadReckoningFrames        int     `json:"dead_reckoning_frames"`
	MinNumUpdatesValidEstimate int     `json:"min_num_updates_valid_estimate"`
	MaxMeasStateDiffM          float64 `json:"max_meas_state_diff_m"`

	EnableBilateration bool    `json:"enable_bilateration"`
	SensorSpacingM     float64 `json:"sensor_spacing_m"`

	EnableCloseProximity     bool    `json:"enable_close_proximity"`
	CloseProximityThresholdM float64 `json:"close_proximity_threshold_m"`

	// EnableLoopback treats subsweep 0 as the transmit-receive leakage
	// measurement used for distance-offset calibration.
	EnableLoopback bool `json:"enable_loopback"`

	CalibrationFrames int `json:"calibration_frames"`
}

// DefaultDetectorConfig returns the detector defaults for a single sensor.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SensorIDs:                  []int{1},
		MaxRobotSpeedMPS:           0.5,
		NumStdThreshold:            5.0,
		NumMeanThreshold:           2.0,
		PeakSorting:                SortStrongest,
		Sensitivity:                0.5,
		DeadReckoningFrames:        10,
		MinNumUpdatesValidEstimate: 3,
		MaxMeasStateDiffM:          0.15,
		CloseProximityThresholdM:   0.2,
		CalibrationFrames:          32,
	}
}

// Validate checks detector configuration. All violations here are fatal and
// reported before streaming starts.
func (c *DetectorConfig) Validate() error {
	if len(c.SensorIDs) == 0 {
		return fmt.Errorf("detector config: at least one sensor id required")
	}
	seen := make(map[int]bool, len(c.SensorIDs))
	for _, id := range c.SensorIDs {
		if seen[id] {
			return fmt.Errorf("detector config: duplicate sensor id %d", id)
		}
		seen[id] = true
	}
	if c.Sensitivity < 0 || c.Sensitivity > 1 {
		return fmt.Errorf("detector config: sensitivity must be in [0,1], got %f", c.Sensitivity)
	}
	switch c.PeakSorting {
	case SortClosest, SortStrongest:
	default:
		return fmt.Errorf("detector config: unknown peak_sorting %q", c.PeakSorting)
	}
	if c.MaxRobotSpeedMPS <= 0 {
		return fmt.Errorf("detector config: max_robot_speed_mps must be positive, got %f", c.MaxRobotSpeedMPS)
	}
	if c.MaxMeasStateDiffM <= 0 {
		return fmt.Errorf("detector config: max_meas_state_diff_m must be positive, got %f", c.MaxMeasStateDiffM)
	}
	if c.DeadReckoningFrames < 0 {
		return fmt.Errorf("detector config: dead_reckoning_frames must be non-negative, got %d", c.DeadReckoningFrames)
	}
	if c.MinNumUpdatesValidEstimate < 1 {
		return fmt.Errorf("detector config: min_num_updates_valid_estimate must be >= 1, got %d", c.MinNumUpdatesValidEstimate)
	}
	if c.CalibrationFrames < 1 {
		return fmt.Errorf("detector config: calibration_frames must be >= 1, got %d", c.CalibrationFrames)
	}
	if c.EnableBilateration {
		if len(c.SensorIDs) != 2 {
			return fmt.Errorf("detector config: bilateration requires exactly 2 distinct sensor ids, got %d", len(c.SensorIDs))
		}
		if c.SensorSpacingM <= 0 {
			return fmt.Errorf("detector config: sensor_spacing_m must be positive, got %f", c.SensorSpacingM)
		}
	}
	if c.EnableCloseProximity && c.CloseProximityThresholdM <= 0 {
		return fmt.Errorf("detector config: close_proximity_threshold_m must be positive, got %f", c.CloseProximityThresholdM)
	}
	return nil
}

// ConfigHash fingerprints the fields a calibration depends on. A stored
// calibration is only reusable against a configuration with the same hash.
func ConfigHash(sc *SensorConfig, dc *DetectorConfig) uint64 {
	h := fnv.New64a()
	write := func(f float64) {
		bits := math.Float64bits(f)
		var b [8]byte
		for i := 0; i < 8; i++ {
			b[i] = byte(bits >> (8 * i))
		}
		h.Write(b[:])
	}
	for _, s := range sc.Subsweeps {
		write(s.StartPointM)
		write(float64(s.NumPoints))
		write(float64(s.StepLength))
		write(float64(s.Profile))
		write(float64(s.HWAAS))
	}
	write(float64(sc.SweepsPerFrame))
	write(sc.SweepRateHz)
	for _, id := range dc.SensorIDs {
		write(float64(id))
	}
	if dc.EnableLoopback {
		write(1)
	} else {
		write(0)
	}
	return h.Sum64()
}
