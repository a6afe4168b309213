package engine

import "testing"

func TestSchedulerCadenceOver150Frames(t *testing.T) {
	var s Scheduler
	var formants, quality, roughness int
	for i := 1; i <= 150; i++ {
		plan := s.Next()
		if plan.Formants != (i%5 == 0) {
			t.Fatalf("frame %d: formants=%v", i, plan.Formants)
		}
		if plan.Quality != (i%10 == 0) {
			t.Fatalf("frame %d: quality=%v", i, plan.Quality)
		}
		if plan.Roughness != (i%15 == 0) {
			t.Fatalf("frame %d: roughness=%v", i, plan.Roughness)
		}
		if plan.Formants {
			formants++
		}
		if plan.Quality {
			quality++
		}
		if plan.Roughness {
			roughness++
		}
	}
	if formants != 30 || quality != 15 || roughness != 10 {
		t.Fatalf("expected 30/15/10 runs, got %d/%d/%d", formants, quality, roughness)
	}
}

func TestSchedulerResetRestartsCadence(t *testing.T) {
	var s Scheduler
	for i := 0; i < 4; i++ {
		s.Next()
	}
	s.Reset()
	for i := 1; i <= 4; i++ {
		if s.Next().Formants {
			t.Fatalf("formants ran at frame %d after reset", i)
		}
	}
	if !s.Next().Formants {
		t.Fatalf("expected formants on fifth frame after reset")
	}
}
