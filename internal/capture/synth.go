package capture

import (
	"context"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// SynthSource generates a voice-like signal: phrases of a harmonic tone
// whose pitch wanders around BaseHz, separated by short pauses, with an
// occasional sustained dip below the base.
type SynthSource struct {
	BaseHz     float64
	Duration   time.Duration
	SampleRate int
	FrameSize  int
	// Phrase and Gap set the voiced and silent segment lengths.
	Phrase time.Duration
	Gap    time.Duration
	// DipChance is the probability that a phrase is sung DipDepth Hz low.
	DipChance float64
	DipDepth  float64
	// Seed fixes the random sequence; zero seeds from the clock.
	Seed    int64
	StartAt time.Time
	// Realtime paces frames to the wall clock.
	Realtime bool
}

// Start returns a stream over the generated signal.
func (s *SynthSource) Start(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := *s
	if cfg.BaseHz <= 0 {
		cfg.BaseHz = 180
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.Phrase <= 0 {
		cfg.Phrase = 4 * time.Second
	}
	if cfg.Gap < 0 {
		cfg.Gap = 0
	}
	if cfg.DipDepth <= 0 {
		cfg.DipDepth = 25
	}
	if cfg.StartAt.IsZero() {
		cfg.StartAt = time.Now()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	total := int64(cfg.Duration.Seconds() * float64(cfg.SampleRate))
	return &synthStream{
		ctx:   ctx,
		cfg:   cfg,
		rnd:   rand.New(rand.NewSource(seed)),
		total: total,
	}, nil
}

type synthStream struct {
	ctx   context.Context
	cfg   SynthSource
	rnd   *rand.Rand
	total int64
	pos   int64
	phase float64

	started   bool
	phraseIdx int
	phraseOff float64
	phraseDip bool
}

func (s *synthStream) Next() (model.AudioFrame, error) {
	if err := s.ctx.Err(); err != nil {
		return model.AudioFrame{}, err
	}
	if s.pos >= s.total {
		return model.AudioFrame{}, io.EOF
	}
	n := int64(s.cfg.FrameSize)
	if remaining := s.total - s.pos; remaining < n {
		n = remaining
	}
	rate := float64(s.cfg.SampleRate)
	at := s.cfg.StartAt.Add(time.Duration(float64(s.pos) / rate * float64(time.Second)))
	if s.cfg.Realtime {
		if err := s.wait(at); err != nil {
			return model.AudioFrame{}, err
		}
	}

	samples := make([]float32, n)
	cycle := s.cfg.Phrase + s.cfg.Gap
	for i := range samples {
		t := time.Duration(float64(s.pos+int64(i)) / rate * float64(time.Second))
		idx := int(t / cycle)
		if idx != s.phraseIdx || !s.started {
			s.startPhrase(idx)
		}
		inPhrase := t%cycle < s.cfg.Phrase
		noise := 0.002 * (2*s.rnd.Float64() - 1)
		if !inPhrase {
			samples[i] = float32(noise)
			continue
		}
		sec := t.Seconds()
		hz := s.cfg.BaseHz + s.phraseOff + 4*math.Sin(2*math.Pi*5*sec)
		if s.phraseDip {
			hz -= s.cfg.DipDepth
		}
		s.phase += 2 * math.Pi * hz / rate
		if s.phase > 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
		var v float64
		for h := 1; h <= 5; h++ {
			v += math.Sin(float64(h)*s.phase) / float64(h)
		}
		samples[i] = float32(0.2*v + noise)
	}
	s.pos += n
	return model.AudioFrame{Samples: samples, SampleRate: s.cfg.SampleRate, At: at}, nil
}

func (s *synthStream) startPhrase(idx int) {
	s.started = true
	s.phraseIdx = idx
	s.phraseOff = (s.rnd.Float64()*2 - 1) * 8
	s.phraseDip = s.rnd.Float64() < s.cfg.DipChance
}

func (s *synthStream) wait(at time.Time) error {
	delay := time.Until(at)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *synthStream) Close() error { return nil }
