package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// FileSource reads raw mono s16le PCM from a file, or stdin when the path
// is "-".
type FileSource struct {
	Path       string
	SampleRate int
	FrameSize  int
	// Start stamps the first frame; zero means the time Start is called.
	StartAt time.Time
	// Stdin overrides os.Stdin for the "-" path.
	Stdin io.Reader
}

// Start opens the input.
func (f *FileSource) Start(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := f.StartAt
	if start.IsZero() {
		start = time.Now()
	}
	if f.Path == "-" {
		in := f.Stdin
		if in == nil {
			in = os.Stdin
		}
		return newPCMStream(in, nil, f.SampleRate, f.FrameSize, start), nil
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	return newPCMStream(file, file.Close, f.SampleRate, f.FrameSize, start), nil
}
