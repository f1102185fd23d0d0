// calplot renders the stored background calibration of a sensor as a PNG:
// zero-Doppler mean and noise floor against range. Useful for checking a
// site's static clutter before tuning thresholds.
package main

import (
	"flag"
	"image/color"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/obstacle.report/internal/radar/radardb"
)

var (
	dbFile   = flag.String("db", "obstacle.db", "SQLite database path")
	sensorID = flag.Int("sensor", 1, "Sensor id to plot")
	subIdx   = flag.Int("subsweep", 0, "Subsweep index to plot")
	out      = flag.String("out", "calibration.png", "Output PNG path")
)

func main() {
	flag.Parse()

	db, err := radardb.NewRadarDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	rec, err := db.GetLatestCalibration()
	if err != nil {
		log.Fatalf("failed to load calibration: %v", err)
	}
	if rec == nil {
		log.Fatal("no stored calibration")
	}

	bg := rec.Context.Sensors[*sensorID]
	if bg == nil {
		log.Fatalf("calibration %s has no sensor %d", rec.CalibrationID, *sensorID)
	}
	if *subIdx < 0 || *subIdx >= len(bg.Subsweeps) {
		log.Fatalf("subsweep %d out of range (calibration has %d)", *subIdx, len(bg.Subsweeps))
	}
	sub := bg.Subsweeps[*subIdx]

	meanPts := make(plotter.XYs, len(sub.BgMean))
	stdPts := make(plotter.XYs, len(sub.BgStd))
	for i := range sub.BgMean {
		meanPts[i] = plotter.XY{X: float64(i), Y: sub.BgMean[i]}
		stdPts[i] = plotter.XY{X: float64(i), Y: sub.BgStd[i]}
	}

	p := plot.New()
	p.Title.Text = "Background calibration"
	p.X.Label.Text = "range point"
	p.Y.Label.Text = "magnitude"

	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		log.Fatalf("mean line: %v", err)
	}
	meanLine.Color = color.RGBA{R: 220, G: 60, B: 40, A: 255}
	meanLine.Width = vg.Points(1)
	p.Add(meanLine)
	p.Legend.Add("zero-Doppler mean", meanLine)

	stdLine, err := plotter.NewLine(stdPts)
	if err != nil {
		log.Fatalf("std line: %v", err)
	}
	stdLine.Color = color.RGBA{R: 40, G: 90, B: 220, A: 255}
	stdLine.Width = vg.Points(1)
	p.Add(stdLine)
	p.Legend.Add("noise floor", stdLine)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, *out); err != nil {
		log.Fatalf("save plot: %v", err)
	}
	log.Printf("wrote %s (calibration %s, sensor %d, %d points)", *out, rec.CalibrationID, *sensorID, len(sub.BgMean))
}
