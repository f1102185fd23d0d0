package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/obstacle.report/internal/httputil"
	"github.com/banshee-data/obstacle.report/internal/monitoring"
	radar "github.com/banshee-data/obstacle.report/internal/radar"
	"github.com/banshee-data/obstacle.report/internal/radar/radardb"
	"github.com/banshee-data/obstacle.report/internal/units"
	"github.com/banshee-data/obstacle.report/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the detector's status, latest targets and calibration
// control over HTTP. All speeds are stored in m/s and converted at the edge.
type Server struct {
	det   *radar.Detector
	db    *radardb.RadarDB
	sc    *radar.SensorConfig
	dc    *radar.DetectorConfig
	units string

	mu   sync.Mutex
	last *radar.DetectorResult
}

// NewServer builds the API server. db may be nil when persistence is
// disabled; calibrations then live only in memory.
func NewServer(det *radar.Detector, db *radardb.RadarDB, sc *radar.SensorConfig, dc *radar.DetectorConfig, displayUnits string) *Server {
	return &Server{
		det:   det,
		db:    db,
		sc:    sc,
		dc:    dc,
		units: displayUnits,
	}
}

// RecordResult stores the most recent detector result for the HTTP surface.
// Called by the streaming loop; handlers only ever read the latest frame.
func (s *Server) RecordResult(res *radar.DetectorResult) {
	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/targets", s.listTargets)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/calibrate", s.runCalibration)
	mux.HandleFunc("/api/charts/doppler", s.dopplerHeatmap)
	return mux
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	st := s.det.Status()
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version": version.Version,
		"status":  st,
		"units":   s.units,
	})
}

// targetAPI is a tracked target with display-unit speeds.
type targetAPI struct {
	ID          string  `json:"id"`
	DistanceM   float64 `json:"distance_m"`
	Velocity    float64 `json:"velocity"`
	StrengthDB  float64 `json:"strength_db"`
	HasInit     bool    `json:"has_init"`
	DeadReckons int     `json:"dead_reckons"`
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	target := s.units
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			httputil.BadRequest(w, fmt.Sprintf("unknown units %q, valid: %s", u, units.ValidUnitsString()))
			return
		}
		target = u
	}

	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		httputil.NotFound(w, "no frames processed yet")
		return
	}

	tracked := make(map[int][]targetAPI, len(last.Tracked))
	for sensorID, tracks := range last.Tracked {
		out := make([]targetAPI, 0, len(tracks))
		for _, tr := range tracks {
			out = append(out, targetAPI{
				ID:          tr.ID,
				DistanceM:   tr.DistanceM,
				Velocity:    units.ConvertSpeed(tr.VelocityMPS, target),
				StrengthDB:  tr.StrengthDB,
				HasInit:     tr.HasInit,
				DeadReckons: tr.DeadReckons,
			})
		}
		tracked[sensorID] = out
	}

	resp := map[string]interface{}{
		"tick_nanos":      last.TickNanos,
		"units":           target,
		"robot_velocity":  units.ConvertSpeed(last.RobotVelocityMPS, target),
		"tracked":         tracked,
		"close_proximity": last.CloseProximity,
	}
	if last.Bilateration != nil {
		resp["bilateration"] = map[string]interface{}{
			"angle_deg":  last.Bilateration.AngleDeg,
			"distance_m": last.Bilateration.DistanceM,
			"velocity":   units.ConvertSpeed(last.Bilateration.VelocityMPS, target),
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sensor":   s.sc,
		"detector": s.dc,
	})
}

// runCalibration re-runs the background calibration. Rejected while a
// session is streaming; the stored snapshot makes restarts cheap.
func (s *Server) runCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	pc, err := s.det.Calibrate(ctx)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}

	resp := map[string]interface{}{
		"taken_unix_nanos": pc.TakenUnixNanos,
		"ref_temp_c":       pc.RefTempC,
		"sensors":          len(pc.Sensors),
	}
	if s.db != nil {
		id, err := s.db.InsertCalibration(pc, "api request")
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("calibration not persisted: %v", err))
			return
		}
		resp["calibration_id"] = id
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// dopplerHeatmap renders the latest Doppler power map of one sensor as an
// HTML heatmap. Debugging-only endpoint, mirrors what the tuning notebooks
// show.
func (s *Server) dopplerHeatmap(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		httputil.NotFound(w, "no frames processed yet")
		return
	}

	sensorID := s.dc.SensorIDs[0]
	if q := r.URL.Query().Get("sensor_id"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil {
			httputil.BadRequest(w, "sensor_id must be an integer")
			return
		}
		sensorID = v
	}
	pr := last.Sensors[sensorID]
	if pr == nil || len(pr.Subsweeps) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no power map for sensor %d", sensorID))
		return
	}
	power := pr.Subsweeps[0].PowerMap
	if len(power) == 0 {
		httputil.NotFound(w, "empty power map")
		return
	}

	bins := len(power)
	points := len(power[0])

	data := make([]opts.HeatMapData, 0, bins*points)
	maxV := 0.0
	for b := 0; b < bins; b++ {
		for p := 0; p < points; p++ {
			v := power[b][p]
			if v > maxV {
				maxV = v
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{p, b, v}})
		}
	}
	if maxV == 0 {
		maxV = 1
	}

	xLabels := make([]string, points)
	for p := range xLabels {
		xLabels[p] = strconv.Itoa(p)
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Doppler Power Map", Theme: "dark", Width: "1100px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Doppler Power Map", Subtitle: fmt.Sprintf("sensor=%d bins=%d points=%d tick=%d", sensorID, bins, points, last.TickNanos)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "range point"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Name: "doppler bin"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxV),
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#b5de2b", "#fde725"}},
		}),
	)
	hm.SetXAxis(xLabels).AddSeries("power", data)

	var buf bytes.Buffer
	if err := hm.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
