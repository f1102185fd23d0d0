// Package config loads the JSON tuning file for the obstacle detector.
// Fields omitted from the file keep their defaults, so partial configs are
// safe; the Get* accessors carry the canonical default values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/obstacle.report/internal/radar"
)

// DefaultConfigPath is the canonical tuning defaults file, the single source
// of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root tuning schema. Pointer fields distinguish "not
// set" from zero so partial files overlay cleanly on the defaults.
type TuningConfig struct {
	// Threshold params
	NumStdThreshold  *float64 `json:"num_std_threshold,omitempty"`
	NumMeanThreshold *float64 `json:"num_mean_threshold,omitempty"`

	// Tracker params
	MaxRobotSpeedMPS           *float64 `json:"max_robot_speed_mps,omitempty"`
	Sensitivity                *float64 `json:"sensitivity,omitempty"`
	DeadReckoningFrames        *int     `json:"dead_reckoning_frames,omitempty"`
	MinNumUpdatesValidEstimate *int     `json:"min_num_updates_valid_estimate,omitempty"`
	MaxMeasStateDiffM          *float64 `json:"max_meas_state_diff_m,omitempty"`

	// Output params
	PeakSorting *string `json:"peak_sorting,omitempty"`

	// Bilateration params
	EnableBilateration *bool    `json:"enable_bilateration,omitempty"`
	SensorSpacingM     *float64 `json:"sensor_spacing_m,omitempty"`

	// Close proximity params
	EnableCloseProximity     *bool    `json:"enable_close_proximity,omitempty"`
	CloseProximityThresholdM *float64 `json:"close_proximity_threshold_m,omitempty"`

	// Calibration params
	CalibrationFrames *int  `json:"calibration_frames,omitempty"`
	EnableLoopback    *bool `json:"enable_loopback,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig reads and validates a tuning JSON file. The path must
// carry a .json extension and stay under a 1MB safety limit.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks set fields for valid operating ranges. Unset fields are
// always valid: they resolve to defaults.
func (c *TuningConfig) Validate() error {
	if c.Sensitivity != nil {
		if *c.Sensitivity < 0 || *c.Sensitivity > 1 {
			return fmt.Errorf("sensitivity must be between 0 and 1, got %f", *c.Sensitivity)
		}
	}
	if c.PeakSorting != nil {
		switch radar.PeakSorting(*c.PeakSorting) {
		case radar.SortClosest, radar.SortStrongest:
		default:
			return fmt.Errorf("unknown peak_sorting %q", *c.PeakSorting)
		}
	}
	if c.DeadReckoningFrames != nil && *c.DeadReckoningFrames < 0 {
		return fmt.Errorf("dead_reckoning_frames must be non-negative, got %d", *c.DeadReckoningFrames)
	}
	if c.MinNumUpdatesValidEstimate != nil && *c.MinNumUpdatesValidEstimate < 1 {
		return fmt.Errorf("min_num_updates_valid_estimate must be >= 1, got %d", *c.MinNumUpdatesValidEstimate)
	}
	if c.CalibrationFrames != nil && *c.CalibrationFrames < 1 {
		return fmt.Errorf("calibration_frames must be >= 1, got %d", *c.CalibrationFrames)
	}
	if c.MaxRobotSpeedMPS != nil && *c.MaxRobotSpeedMPS <= 0 {
		return fmt.Errorf("max_robot_speed_mps must be positive, got %f", *c.MaxRobotSpeedMPS)
	}
	if c.MaxMeasStateDiffM != nil && *c.MaxMeasStateDiffM <= 0 {
		return fmt.Errorf("max_meas_state_diff_m must be positive, got %f", *c.MaxMeasStateDiffM)
	}
	if c.SensorSpacingM != nil && *c.SensorSpacingM <= 0 {
		return fmt.Errorf("sensor_spacing_m must be positive, got %f", *c.SensorSpacingM)
	}
	return nil
}

// DetectorConfig overlays the tuning values on the detector defaults for
// the given sensor ids.
func (c *TuningConfig) DetectorConfig(sensorIDs []int) radar.DetectorConfig {
	dc := radar.DefaultDetectorConfig()
	dc.SensorIDs = sensorIDs
	dc.NumStdThreshold = c.GetNumStdThreshold()
	dc.NumMeanThreshold = c.GetNumMeanThreshold()
	dc.MaxRobotSpeedMPS = c.GetMaxRobotSpeedMPS()
	dc.Sensitivity = c.GetSensitivity()
	dc.DeadReckoningFrames = c.GetDeadReckoningFrames()
	dc.MinNumUpdatesValidEstimate = c.GetMinNumUpdatesValidEstimate()
	dc.MaxMeasStateDiffM = c.GetMaxMeasStateDiffM()
	dc.PeakSorting = radar.PeakSorting(c.GetPeakSorting())
	dc.EnableBilateration = c.GetEnableBilateration()
	dc.SensorSpacingM = c.GetSensorSpacingM()
	dc.EnableCloseProximity = c.GetEnableCloseProximity()
	dc.CloseProximityThresholdM = c.GetCloseProximityThresholdM()
	dc.CalibrationFrames = c.GetCalibrationFrames()
	dc.EnableLoopback = c.GetEnableLoopback()
	return dc
}

// GetNumStdThreshold returns the num_std_threshold value or the default.
func (c *TuningConfig) GetNumStdThreshold() float64 {
	if c.NumStdThreshold == nil {
		return 5.0
	}
	return *c.NumStdThreshold
}

// GetNumMeanThreshold returns the num_mean_threshold value or the default.
func (c *TuningConfig) GetNumMeanThreshold() float64 {
	if c.NumMeanThreshold == nil {
		return 2.0
	}
	return *c.NumMeanThreshold
}

// GetMaxRobotSpeedMPS returns the max_robot_speed_mps value or the default.
func (c *TuningConfig) GetMaxRobotSpeedMPS() float64 {
	if c.MaxRobotSpeedMPS == nil {
		return 0.5
	}
	return *c.MaxRobotSpeedMPS
}

// GetSensitivity returns the sensitivity value or the default.
func (c *TuningConfig) GetSensitivity() float64 {
	if c.Sensitivity == nil {
		return 0.5
	}
	return *c.Sensitivity
}

// GetDeadReckoningFrames returns the dead_reckoning_frames value or the default.
func (c *TuningConfig) GetDeadReckoningFrames() int {
	if c.DeadReckoningFrames == nil {
		return 10
	}
	return *c.DeadReckoningFrames
}

// GetMinNumUpdatesValidEstimate returns the min_num_updates_valid_estimate value or the default.
func (c *TuningConfig) GetMinNumUpdatesValidEstimate() int {
	if c.MinNumUpdatesValidEstimate == nil {
		return 3
	}
	return *c.MinNumUpdatesValidEstimate
}

// GetMaxMeasStateDiffM returns the max_meas_state_diff_m value or the default.
func (c *TuningConfig) GetMaxMeasStateDiffM() float64 {
	if c.MaxMeasStateDiffM == nil {
		return 0.15
	}
	return *c.MaxMeasStateDiffM
}

// GetPeakSorting returns the peak_sorting value or the default.
func (c *TuningConfig) GetPeakSorting() string {
	if c.PeakSorting == nil {
		return string(radar.SortStrongest)
	}
	return *c.PeakSorting
}

// GetEnableBilateration returns the enable_bilateration value or the default.
func (c *TuningConfig) GetEnableBilateration() bool {
	if c.EnableBilateration == nil {
		return false
	}
	return *c.EnableBilateration
}

// GetSensorSpacingM returns the sensor_spacing_m value or the default.
func (c *TuningConfig) GetSensorSpacingM() float64 {
	if c.SensorSpacingM == nil {
		return 0.1
	}
	return *c.SensorSpacingM
}

// GetEnableCloseProximity returns the enable_close_proximity value or the default.
func (c *TuningConfig) GetEnableCloseProximity() bool {
	if c.EnableCloseProximity == nil {
		return false
	}
	return *c.EnableCloseProximity
}

// GetCloseProximityThresholdM returns the close_proximity_threshold_m value or the default.
func (c *TuningConfig) GetCloseProximityThresholdM() float64 {
	if c.CloseProximityThresholdM == nil {
		return 0.2
	}
	return *c.CloseProximityThresholdM
}

// GetCalibrationFrames returns the calibration_frames value or the default.
func (c *TuningConfig) GetCalibrationFrames() int {
	if c.CalibrationFrames == nil {
		return 32
	}
	return *c.CalibrationFrames
}

// GetEnableLoopback returns the enable_loopback value or the default.
func (c *TuningConfig) GetEnableLoopback() bool {
	if c.EnableLoopback == nil {
		return false
	}
	return *c.EnableLoopback
}
