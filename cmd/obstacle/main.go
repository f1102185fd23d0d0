package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/obstacle.report/internal/api"
	"github.com/banshee-data/obstacle.report/internal/config"
	radar "github.com/banshee-data/obstacle.report/internal/radar"
	"github.com/banshee-data/obstacle.report/internal/radar/radardb"
	"github.com/banshee-data/obstacle.report/internal/sensor"
	"github.com/banshee-data/obstacle.report/internal/units"
	"github.com/banshee-data/obstacle.report/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Run with a synthetic frame source instead of hardware")
	listen      = flag.String("listen", ":8080", "Listen address")
	port        = flag.String("port", "/dev/ttyUSB0", "Serial port (ignored in dev/replay mode)")
	replay      = flag.String("replay", "", "Replay a recorded frame log instead of reading hardware")
	dbFile      = flag.String("db", "obstacle.db", "SQLite database path (empty disables persistence)")
	configPath  = flag.String("config", "", "Tuning config JSON (defaults apply when empty)")
	sensorsFlag = flag.String("sensors", "1", "Comma-separated sensor ids")
	unitsFlag   = flag.String("units", units.MPS, "Default display units for speeds")
	recalibrate = flag.Bool("recalibrate", false, "Force a fresh calibration even when a stored one is compatible")
)

// defaultSensorConfig is the stock measurement setup: a single detection
// subsweep from 0.2 m to 1.64 m at profile 1. Site-specific setups override
// through the tuning config in a later revision.
func defaultSensorConfig() *radar.SensorConfig {
	return &radar.SensorConfig{
		Subsweeps: []radar.SubsweepConfig{
			{StartPointM: 0.2, NumPoints: 48, StepLength: 12, Profile: radar.Profile1, HWAAS: 8},
		},
		SweepsPerFrame: 16,
		SweepRateHz:    2000,
		FrameRateHz:    10,
		InterSweepIdle: radar.IdleReady,
		InterFrameIdle: radar.IdleDeepSleep,
	}
}

func parseSensorIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid sensor id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no sensor ids given")
	}
	return ids, nil
}

func openSource(sc *radar.SensorConfig, sensorIDs []int) (radar.FrameSource, error) {
	switch {
	case *replay != "":
		return sensor.NewFileSource(*replay)
	case *devMode:
		src := sensor.NewSyntheticSource(sc, sensorIDs, time.Now().UnixNano())
		src.Realtime = true
		src.Reflectors = []sensor.Reflector{
			{RangeM: 0.6, VelocityMPS: 0.3, Amplitude: 10, AppearAfter: 64},
		}
		return src, nil
	default:
		return sensor.NewRadarPort(*port)
	}
}

// restoreOrCalibrate installs a stored compatible calibration when one
// exists, and otherwise runs a fresh one against live frames.
func restoreOrCalibrate(ctx context.Context, det *radar.Detector, db *radardb.RadarDB, hash uint64) error {
	if db != nil && !*recalibrate {
		rec, err := db.GetLatestCalibration()
		if err != nil {
			return fmt.Errorf("load calibration: %w", err)
		}
		if rec != nil && rec.ConfigHash == hash {
			if err := det.SetCalibration(rec.Context); err == nil {
				log.Printf("restored calibration %s from %s", rec.CalibrationID,
					time.Unix(0, rec.TakenUnixNanos).Format(time.RFC3339))
				return nil
			}
			log.Printf("stored calibration %s not usable, recalibrating", rec.CalibrationID)
		}
	}

	log.Print("running calibration, keep the field of view clear")
	pc, err := det.Calibrate(ctx)
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	if db != nil {
		id, err := db.InsertCalibration(pc, "startup")
		if err != nil {
			return fmt.Errorf("persist calibration: %w", err)
		}
		log.Printf("stored calibration %s", id)
	}
	return nil
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("listen address is required")
	}
	if !units.IsValid(*unitsFlag) {
		log.Fatalf("invalid units %q, valid: %s", *unitsFlag, units.ValidUnitsString())
	}
	sensorIDs, err := parseSensorIDs(*sensorsFlag)
	if err != nil {
		log.Fatalf("invalid -sensors: %v", err)
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}
	dc := tuning.DetectorConfig(sensorIDs)
	sc := defaultSensorConfig()

	source, err := openSource(sc, sensorIDs)
	if err != nil {
		log.Fatalf("failed to open frame source: %v", err)
	}
	defer source.Close()

	var db *radardb.RadarDB
	if *dbFile != "" {
		db, err = radardb.NewRadarDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
	}

	det, err := radar.NewDetector(sc, &dc, source)
	if err != nil {
		log.Fatalf("failed to build detector: %v", err)
	}

	log.Printf("obstacle %s starting: sensors=%v units=%s", version.Version, sensorIDs, *unitsFlag)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := restoreOrCalibrate(ctx, det, db, radar.ConfigHash(sc, &dc)); err != nil {
		log.Fatalf("calibration failed: %v", err)
	}
	if err := det.Start(); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}

	server := api.NewServer(det, db, sc, &dc, *unitsFlag)

	var wg sync.WaitGroup

	// Streaming loop: pull frames through the pipeline, publish the latest
	// result to the API, log initialized tracks.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			res, err := det.GetNext(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					log.Print("frame stream ended")
					stop()
					return
				}
				log.Printf("frame error: %v", err)
				continue
			}
			server.RecordResult(res)
			if db != nil {
				if err := db.InsertTargetEvents(res); err != nil {
					log.Printf("failed to log target events: %v", err)
				}
			}
		}
	}()

	// HTTP server goroutine with graceful shutdown.
	wg.Add(1)
	go func() {
		defer wg.Done()

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(server.ServeMux()),
		}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("http server listening on %s", *listen)

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("http server shutdown error: %v", err)
			if err := httpServer.Close(); err != nil {
				log.Printf("http server force close error: %v", err)
			}
		}
	}()

	wg.Wait()

	if err := det.Stop(); err != nil {
		log.Printf("session stop: %v", err)
	}
	log.Print("graceful shutdown complete")
}
