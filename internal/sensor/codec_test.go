package sensor

import (
	"bytes"
	"context"
	"io"
	"math"
	"testing"

	"github.com/banshee-data/obstacle.report/internal/radar"
)

func testFrame() *radar.Frame {
	f := &radar.Frame{
		SensorID:  3,
		TickNanos: 1700000000123456789,
		TempC:     31.5,
		Subsweeps: [][][]complex128{
			{
				{complex(1, -2), complex(300, 4)},
				{complex(-5, 6), complex(7, -8000)},
			},
			{
				{complex(0, 0), complex(12, 12)},
				{complex(-1, 1), complex(2, -2)},
			},
		},
	}
	return f
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	orig := testFrame()
	if err := WriteFrame(&buf, orig); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrameFrom(&buf)
	if err != nil {
		t.Fatalf("ReadFrameFrom: %v", err)
	}
	if got.SensorID != orig.SensorID {
		t.Errorf("sensor id %d, want %d", got.SensorID, orig.SensorID)
	}
	if got.TickNanos != orig.TickNanos {
		t.Errorf("tick %d, want %d", got.TickNanos, orig.TickNanos)
	}
	// Temperature is carried in deci-degrees.
	if math.Abs(got.TempC-orig.TempC) > 0.05 {
		t.Errorf("temp %.2f, want %.2f", got.TempC, orig.TempC)
	}
	if len(got.Subsweeps) != len(orig.Subsweeps) {
		t.Fatalf("subsweeps %d, want %d", len(got.Subsweeps), len(orig.Subsweeps))
	}
	for si := range orig.Subsweeps {
		for s := range orig.Subsweeps[si] {
			for p := range orig.Subsweeps[si][s] {
				w := orig.Subsweeps[si][s][p]
				g := got.Subsweeps[si][s][p]
				if math.Abs(real(g)-real(w)) > 0.5 || math.Abs(imag(g)-imag(w)) > 0.5 {
					t.Errorf("sample [%d][%d][%d] = %v, want %v", si, s, p, g, w)
				}
			}
		}
	}
}

func TestReadFrameFromBadMagic(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0, 0, 0, 0, 0})
	if _, err := ReadFrameFrom(buf); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestReadFrameFromTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, testFrame()); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	short := buf.Bytes()[:buf.Len()-4]
	if _, err := ReadFrameFrom(bytes.NewReader(short)); err == nil {
		t.Fatal("expected error for truncated frame")
	}
}

func TestMockSourceExhaustion(t *testing.T) {
	src := &MockSource{Frames: []*radar.Frame{testFrame(), testFrame()}}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := src.ReadFrame(ctx); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if _, err := src.ReadFrame(ctx); err != io.EOF {
		t.Fatalf("expected io.EOF past end, got %v", err)
	}
}
