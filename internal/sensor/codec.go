// Package sensor provides frame sources for the detection pipeline: a
// serial-port client speaking the binary frame format, a synthetic
// generator for dev mode and tests, and a mock for unit tests.
package sensor

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/obstacle.report/internal/radar"
)

// Frame wire format (little endian):
//
//	magic       u32  "ORF1"
//	sensor_id   u16
//	subsweeps   u8
//	temp_dC     i16  temperature in deci-degrees C
//	tick_nanos  i64
//	per subsweep:
//	  sweeps    u16
//	  points    u16
//	  samples   sweeps*points pairs of i16 (I, Q)
const frameMagic = 0x3146524f // "ORF1"

const maxFrameDim = 4096 // sanity bound on sweeps/points from the wire

// WriteFrame encodes a frame to w. Samples are clamped into int16 range.
func WriteFrame(w io.Writer, f *radar.Frame) error {
	hdr := struct {
		Magic     uint32
		SensorID  uint16
		Subsweeps uint8
		TempDeciC int16
		TickNanos int64
	}{
		Magic:     frameMagic,
		SensorID:  uint16(f.SensorID),
		Subsweeps: uint8(len(f.Subsweeps)),
		TempDeciC: int16(math.Round(f.TempC * 10)),
		TickNanos: f.TickNanos,
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}

	for _, sub := range f.Subsweeps {
		sweeps := len(sub)
		points := 0
		if sweeps > 0 {
			points = len(sub[0])
		}
		dims := struct{ Sweeps, Points uint16 }{uint16(sweeps), uint16(points)}
		if err := binary.Write(w, binary.LittleEndian, &dims); err != nil {
			return fmt.Errorf("write subsweep dims: %w", err)
		}

		buf := make([]int16, 0, sweeps*points*2)
		for _, sweep := range sub {
			for _, v := range sweep {
				buf = append(buf, clampI16(real(v)), clampI16(imag(v)))
			}
		}
		if err := binary.Write(w, binary.LittleEndian, buf); err != nil {
			return fmt.Errorf("write samples: %w", err)
		}
	}
	return nil
}

// ReadFrameFrom decodes one frame from r. The reader must be positioned at
// a frame boundary; a bad magic word is reported, not resynchronised.
func ReadFrameFrom(r io.Reader) (*radar.Frame, error) {
	var hdr struct {
		Magic     uint32
		SensorID  uint16
		Subsweeps uint8
		TempDeciC int16
		TickNanos int64
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.Magic != frameMagic {
		return nil, fmt.Errorf("bad frame magic %08x", hdr.Magic)
	}

	f := &radar.Frame{
		SensorID:  int(hdr.SensorID),
		TickNanos: hdr.TickNanos,
		TempC:     float64(hdr.TempDeciC) / 10,
		Subsweeps: make([][][]complex128, hdr.Subsweeps),
	}

	for si := range f.Subsweeps {
		var dims struct{ Sweeps, Points uint16 }
		if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
			return nil, fmt.Errorf("read subsweep dims: %w", err)
		}
		if dims.Sweeps > maxFrameDim || dims.Points > maxFrameDim {
			return nil, fmt.Errorf("implausible subsweep dims %dx%d", dims.Sweeps, dims.Points)
		}

		buf := make([]int16, int(dims.Sweeps)*int(dims.Points)*2)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return nil, fmt.Errorf("read samples: %w", err)
		}

		sub := make([][]complex128, dims.Sweeps)
		for s := 0; s < int(dims.Sweeps); s++ {
			row := make([]complex128, dims.Points)
			for p := 0; p < int(dims.Points); p++ {
				off := (s*int(dims.Points) + p) * 2
				row[p] = complex(float64(buf[off]), float64(buf[off+1]))
			}
			sub[s] = row
		}
		f.Subsweeps[si] = sub
	}
	return f, nil
}

func clampI16(v float64) int16 {
	r := math.Round(v)
	if r > math.MaxInt16 {
		return math.MaxInt16
	}
	if r < math.MinInt16 {
		return math.MinInt16
	}
	return int16(r)
}
