package sensor

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/banshee-data/obstacle.report/internal/radar"
)

// FileSource replays a recorded frame stream, as written by the gen-frames
// tool or a capture session. Frames are returned as fast as the consumer
// asks; io.EOF ends the stream.
type FileSource struct {
	f  *os.File
	br *bufio.Reader
}

// NewFileSource opens a frame log for replay.
func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame log: %w", err)
	}
	return &FileSource{f: f, br: bufio.NewReaderSize(f, 1<<16)}, nil
}

func (s *FileSource) ReadFrame(ctx context.Context) (*radar.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadFrameFrom(s.br)
}

func (s *FileSource) Close() error {
	return s.f.Close()
}
