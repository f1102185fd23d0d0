package radardb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	radar "github.com/banshee-data/obstacle.report/internal/radar"
)

func openTestDB(t *testing.T) *RadarDB {
	t.Helper()
	db, err := NewRadarDB(filepath.Join(t.TempDir(), "radar.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testContext() *radar.ProcessorContext {
	return &radar.ProcessorContext{
		ConfigHash:     0xdeadbeefcafe,
		RefTempC:       24.5,
		TakenUnixNanos: 1700000000000000000,
		Sensors: map[int]*radar.SensorBackground{
			1: {
				Subsweeps: []radar.SubsweepBackground{
					{BgMean: []float64{1, 2, 3}, BgStd: []float64{0.1, 0.2, 0.3}},
				},
				LoopbackPeakM: 0.07,
			},
		},
	}
}

func TestCalibrationRoundTrip(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertCalibration(testContext(), "startup")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := db.GetLatestCalibration()
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, id, rec.CalibrationID)
	assert.Equal(t, uint64(0xdeadbeefcafe), rec.ConfigHash)
	assert.Equal(t, "startup", rec.Reason)
	assert.Equal(t, []int{1}, rec.SensorIDs)
	require.NotNil(t, rec.Context)
	assert.InDelta(t, 24.5, rec.Context.RefTempC, 1e-12)
	assert.InDelta(t, 0.07, rec.Context.Sensors[1].LoopbackPeakM, 1e-12)
	assert.Equal(t, []float64{1, 2, 3}, rec.Context.Sensors[1].Subsweeps[0].BgMean)
}

func TestGetLatestCalibrationEmpty(t *testing.T) {
	db := openTestDB(t)
	rec, err := db.GetLatestCalibration()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetLatestCalibrationOrdering(t *testing.T) {
	db := openTestDB(t)

	older := testContext()
	older.TakenUnixNanos = 100
	_, err := db.InsertCalibration(older, "old")
	require.NoError(t, err)

	newer := testContext()
	newer.TakenUnixNanos = 200
	wantID, err := db.InsertCalibration(newer, "new")
	require.NoError(t, err)

	rec, err := db.GetLatestCalibration()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, wantID, rec.CalibrationID)
	assert.Equal(t, "new", rec.Reason)
}

func TestInsertTargetEventsSkipsUninitialized(t *testing.T) {
	db := openTestDB(t)

	res := &radar.DetectorResult{
		TickNanos: 12345,
		Tracked: map[int][]radar.TrackedTarget{
			1: {
				{ID: "a", DistanceM: 1.0, VelocityMPS: 0.5, StrengthDB: 12, HasInit: true},
				{ID: "b", DistanceM: 2.0, VelocityMPS: -0.3, StrengthDB: 8, HasInit: false},
			},
			2: {
				{ID: "c", DistanceM: 0.8, VelocityMPS: 0.1, StrengthDB: 15, HasInit: true},
			},
		},
	}
	require.NoError(t, db.InsertTargetEvents(res))

	n, err := db.CountTargetEvents(-1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = db.CountTargetEvents(1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
