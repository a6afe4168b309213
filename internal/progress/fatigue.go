package progress

import "math"

// FatigueScore rates the vocal load of one session from 0 (rested) to 100.
// Duration and strain contribute up to 30 points each, jitter and shimmer
// up to 20.
func FatigueScore(durationMinutes float64, strainEvents uint32, jitter, shimmer float64) float64 {
	score := durationTier(durationMinutes) + strainTier(strainEvents) + jitterTier(jitter) + shimmerTier(shimmer)
	return math.Max(0, math.Min(100, score))
}

func durationTier(minutes float64) float64 {
	switch {
	case minutes < 15:
		return 0
	case minutes < 30:
		return 10
	case minutes < 45:
		return 20
	case minutes < 60:
		return 25
	default:
		return 30
	}
}

func strainTier(events uint32) float64 {
	switch {
	case events == 0:
		return 0
	case events < 3:
		return 10
	case events < 6:
		return 20
	case events < 10:
		return 25
	default:
		return 30
	}
}

func jitterTier(jitter float64) float64 {
	switch {
	case jitter < 1:
		return 0
	case jitter < 1.5:
		return 7
	case jitter < 2:
		return 14
	default:
		return 20
	}
}

func shimmerTier(shimmer float64) float64 {
	switch {
	case shimmer < 5:
		return 0
	case shimmer < 7:
		return 7
	case shimmer < 10:
		return 14
	default:
		return 20
	}
}

// HealthGrade buckets an averaged voice metric the way the health view
// shows it.
type HealthGrade string

const (
	GradeExcellent HealthGrade = "excellent"
	GradeGood      HealthGrade = "good"
	GradeFair      HealthGrade = "fair"
	GradePoor      HealthGrade = "poor"
)

// GradeJitter grades jitter in percent.
func GradeJitter(v float64) HealthGrade {
	return gradeBelow(v, 1, 1.5, 2)
}

// GradeShimmer grades shimmer in percent.
func GradeShimmer(v float64) HealthGrade {
	return gradeBelow(v, 5, 7, 10)
}

// GradeHNR grades the harmonics-to-noise ratio in dB.
func GradeHNR(v float64) HealthGrade {
	switch {
	case v > 18:
		return GradeExcellent
	case v > 15:
		return GradeGood
	case v > 12:
		return GradeFair
	default:
		return GradePoor
	}
}

// GradeStrainRate grades the share of strained roughness samples, in percent.
func GradeStrainRate(v float64) HealthGrade {
	return gradeBelow(v, 5, 10, 20)
}

func gradeBelow(v, excellent, good, fair float64) HealthGrade {
	switch {
	case v < excellent:
		return GradeExcellent
	case v < good:
		return GradeGood
	case v < fair:
		return GradeFair
	default:
		return GradePoor
	}
}
