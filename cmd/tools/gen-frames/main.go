// gen-frames writes a synthetic frame log in the wire codec format, for
// replaying through the detector without hardware.
package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"

	radar "github.com/banshee-data/obstacle.report/internal/radar"
	"github.com/banshee-data/obstacle.report/internal/sensor"
)

var (
	out       = flag.String("out", "frames.bin", "Output file")
	frames    = flag.Int("frames", 200, "Number of scene frames to generate")
	sensors   = flag.Int("sensors", 1, "Number of sensors (1 or 2)")
	seed      = flag.Int64("seed", 1, "Random seed")
	noiseStd  = flag.Float64("noise", 1.0, "Background noise standard deviation")
	reflRange = flag.Float64("range", 0.6, "Reflector start range in metres (0 disables)")
	reflSpeed = flag.Float64("speed", 0.3, "Reflector radial speed in m/s, positive receding")
	reflAmp   = flag.Float64("amp", 10, "Reflector amplitude")
	appear    = flag.Int("appear", 32, "Frame at which the reflector appears")
)

func main() {
	flag.Parse()

	if *sensors < 1 || *sensors > 2 {
		log.Fatalf("sensors must be 1 or 2, got %d", *sensors)
	}
	ids := []int{1, 2}[:*sensors]

	sc := &radar.SensorConfig{
		Subsweeps: []radar.SubsweepConfig{
			{StartPointM: 0.2, NumPoints: 48, StepLength: 12, Profile: radar.Profile1, HWAAS: 8},
		},
		SweepsPerFrame: 16,
		SweepRateHz:    2000,
		FrameRateHz:    10,
	}

	src := sensor.NewSyntheticSource(sc, ids, *seed)
	src.NoiseStd = *noiseStd
	if *reflRange > 0 {
		src.Reflectors = []sensor.Reflector{
			{RangeM: *reflRange, VelocityMPS: *reflSpeed, Amplitude: *reflAmp, AppearAfter: *appear},
		}
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *out, err)
	}
	defer f.Close()
	w := bufio.NewWriterSize(f, 1<<16)

	ctx := context.Background()
	written := 0
	for src.FrameIndex() < *frames {
		frame, err := src.ReadFrame(ctx)
		if err != nil {
			log.Fatalf("generate frame: %v", err)
		}
		if err := sensor.WriteFrame(w, frame); err != nil {
			log.Fatalf("write frame: %v", err)
		}
		written++
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("flush: %v", err)
	}
	log.Printf("wrote %d frames (%d scenes, %d sensors) to %s", written, *frames, *sensors, *out)
}
