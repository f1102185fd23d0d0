package sensor

import (
	"bufio"
	"context"
	"fmt"

	"go.bug.st/serial"

	"github.com/banshee-data/obstacle.report/internal/monitoring"
	"github.com/banshee-data/obstacle.report/internal/radar"
)

// RadarPort reads binary frames from a serial-attached sensor module. It
// implements radar.FrameSource; the detector owns pacing, the port owns the
// connection.
type RadarPort struct {
	serial.Port
	reader *bufio.Reader
	name   string
}

// NewRadarPort opens the serial port at the sensor module's fixed settings.
func NewRadarPort(portName string) (*RadarPort, error) {
	mode := &serial.Mode{
		BaudRate: 921600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	monitoring.Logf("opened radar port %s at %d baud", portName, mode.BaudRate)
	return &RadarPort{
		Port:   port,
		reader: bufio.NewReaderSize(port, 1<<16),
		name:   portName,
	}, nil
}

// ReadFrame blocks until one complete frame arrives. Context cancellation
// is honoured between frames; a read already in flight finishes first.
func (p *RadarPort) ReadFrame(ctx context.Context) (*radar.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := ReadFrameFrom(p.reader)
	if err != nil {
		return nil, fmt.Errorf("radar port %s: %w", p.name, err)
	}
	return f, nil
}

// Close closes the underlying serial port.
func (p *RadarPort) Close() error {
	return p.Port.Close()
}
