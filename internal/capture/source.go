// Package capture turns audio inputs into timestamped frames.
package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// Defaults used when a source leaves rate or frame size unset.
const (
	DefaultSampleRate = 16000
	DefaultFrameSize  = 1024
)

// Source opens a frame stream.
type Source interface {
	Start(ctx context.Context) (Stream, error)
}

// Stream yields frames until io.EOF.
type Stream interface {
	Next() (model.AudioFrame, error)
	Close() error
}

// pcmStream decodes mono s16le PCM into frames. Frames are stamped from the
// number of samples read so far, never from the wall clock.
type pcmStream struct {
	r         io.Reader
	closer    func() error
	rate      int
	frameSize int
	start     time.Time
	samples   int64
	buf       []byte
	done      bool
}

func newPCMStream(r io.Reader, closer func() error, rate, frameSize int, start time.Time) *pcmStream {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &pcmStream{
		r:         r,
		closer:    closer,
		rate:      rate,
		frameSize: frameSize,
		start:     start,
		buf:       make([]byte, frameSize*2),
	}
}

func (s *pcmStream) Next() (model.AudioFrame, error) {
	if s.done {
		return model.AudioFrame{}, io.EOF
	}
	n, err := io.ReadFull(s.r, s.buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.done = true
			return model.AudioFrame{}, io.EOF
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			return model.AudioFrame{}, err
		}
		// Short final frame; an odd trailing byte is dropped.
		s.done = true
		n -= n % 2
		if n == 0 {
			return model.AudioFrame{}, io.EOF
		}
	}
	frame := model.AudioFrame{
		Samples:    decodeS16LE(s.buf[:n]),
		SampleRate: s.rate,
		At:         s.start.Add(time.Duration(s.samples) * time.Second / time.Duration(s.rate)),
	}
	s.samples += int64(len(frame.Samples))
	return frame, nil
}

func (s *pcmStream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func decodeS16LE(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}
