package sensor

import (
	"context"
	"io"

	"github.com/banshee-data/obstacle.report/internal/radar"
)

// MockSource replays a fixed frame sequence. It implements
// radar.FrameSource for tests; reads past the end return io.EOF.
type MockSource struct {
	Frames []*radar.Frame
	pos    int
	closed bool
}

// ReadFrame returns the next queued frame.
func (m *MockSource) ReadFrame(ctx context.Context) (*radar.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.closed || m.pos >= len(m.Frames) {
		return nil, io.EOF
	}
	f := m.Frames[m.pos]
	m.pos++
	return f, nil
}

// Close marks the source exhausted.
func (m *MockSource) Close() error {
	m.closed = true
	return nil
}
