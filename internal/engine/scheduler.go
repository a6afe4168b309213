package engine

// Analysis cadences, in voiced frames.
const (
	FormantEvery   = 5
	QualityEvery   = 10
	RoughnessEvery = 15
)

// Plan lists the secondary analyses due for a voiced frame.
type Plan struct {
	Formants  bool
	Quality   bool
	Roughness bool
}

// Scheduler decides which expensive analyses run on each voiced frame.
// It only counts frames, so the same frame sequence always yields the same
// schedule.
type Scheduler struct {
	count uint64
}

// Next advances the counter for one voiced frame and returns its plan.
func (s *Scheduler) Next() Plan {
	s.count++
	return Plan{
		Formants:  s.count%FormantEvery == 0,
		Quality:   s.count%QualityEvery == 0,
		Roughness: s.count%RoughnessEvery == 0,
	}
}

// Count returns the number of voiced frames seen.
func (s *Scheduler) Count() uint64 {
	return s.count
}

// Reset restarts the cadence.
func (s *Scheduler) Reset() {
	s.count = 0
}
