package radardb

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	radar "github.com/banshee-data/obstacle.report/internal/radar"
	"github.com/banshee-data/obstacle.report/internal/monitoring"

	_ "modernc.org/sqlite"
)

type RadarDB struct {
	*sql.DB
}

// schema.sql defines the tables for calibration snapshots and tracked
// target events.
//
//go:embed schema.sql
var schemaSQL string

func NewRadarDB(path string) (*RadarDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(schemaSQL)
	if err != nil {
		return nil, err
	}

	monitoring.Logf("initialized radar database schema at %s", path)

	return &RadarDB{db}, nil
}

// CalibrationRecord is one stored calibration snapshot. The processor
// context itself travels as a serialized blob.
type CalibrationRecord struct {
	CalibrationID  string
	TakenUnixNanos int64
	ConfigHash     uint64
	RefTempC       float64
	SensorIDs      []int
	Reason         string
	Context        *radar.ProcessorContext
}

// InsertCalibration persists a processor context and returns the new
// calibration id.
func (rdb *RadarDB) InsertCalibration(pc *radar.ProcessorContext, reason string) (string, error) {
	if pc == nil {
		return "", fmt.Errorf("radardb: nil processor context")
	}
	blob, err := pc.Serialize()
	if err != nil {
		return "", fmt.Errorf("radardb: serialize calibration: %w", err)
	}
	ids := make([]int, 0, len(pc.Sensors))
	for id := range pc.Sensors {
		ids = append(ids, id)
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}

	calID := uuid.NewString()
	stmt := `INSERT INTO radar_calibration (calibration_id, taken_unix_nanos, config_hash, ref_temp_c, sensor_ids, context_blob, reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`
	// sqlite stores the hash as a signed 64-bit value.
	_, err = rdb.Exec(stmt, calID, pc.TakenUnixNanos, int64(pc.ConfigHash), pc.RefTempC, string(idsJSON), blob, reason)
	if err != nil {
		return "", err
	}
	return calID, nil
}

// GetLatestCalibration returns the most recent stored calibration, or nil
// when none exists.
func (rdb *RadarDB) GetLatestCalibration() (*CalibrationRecord, error) {
	row := rdb.QueryRow(`SELECT calibration_id, taken_unix_nanos, config_hash, ref_temp_c, sensor_ids, context_blob, reason
						 FROM radar_calibration ORDER BY taken_unix_nanos DESC LIMIT 1`)

	var rec CalibrationRecord
	var hash int64
	var idsJSON string
	var blob []byte
	err := row.Scan(&rec.CalibrationID, &rec.TakenUnixNanos, &hash, &rec.RefTempC, &idsJSON, &blob, &rec.Reason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.ConfigHash = uint64(hash)
	if err := json.Unmarshal([]byte(idsJSON), &rec.SensorIDs); err != nil {
		return nil, fmt.Errorf("radardb: sensor ids for %s: %w", rec.CalibrationID, err)
	}
	pc, err := radar.DeserializeProcessorContext(blob)
	if err != nil {
		return nil, fmt.Errorf("radardb: calibration blob for %s: %w", rec.CalibrationID, err)
	}
	rec.Context = pc
	return &rec, nil
}

// InsertTargetEvents logs the tracked targets of one detector result for
// later analysis. Only initialized tracks are written.
func (rdb *RadarDB) InsertTargetEvents(res *radar.DetectorResult) error {
	if res == nil || len(res.Tracked) == 0 {
		return nil
	}
	tx, err := rdb.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO radar_target_event (tick_unix_nanos, sensor_id, track_id, distance_m, velocity_mps, strength_db, has_init)
							 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for sensorID, tracks := range res.Tracked {
		for _, tr := range tracks {
			if !tr.HasInit {
				continue
			}
			if _, err := stmt.Exec(res.TickNanos, sensorID, tr.ID, tr.DistanceM, tr.VelocityMPS, tr.StrengthDB, boolToInt(tr.HasInit)); err != nil {
				tx.Rollback()
				return err
			}
		}
	}
	return tx.Commit()
}

// CountTargetEvents returns the number of logged target events, optionally
// restricted to one sensor (sensorID < 0 counts all).
func (rdb *RadarDB) CountTargetEvents(sensorID int) (int, error) {
	var n int
	var err error
	if sensorID < 0 {
		err = rdb.QueryRow(`SELECT COUNT(*) FROM radar_target_event`).Scan(&n)
	} else {
		err = rdb.QueryRow(`SELECT COUNT(*) FROM radar_target_event WHERE sensor_id = ?`, sensorID).Scan(&n)
	}
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
