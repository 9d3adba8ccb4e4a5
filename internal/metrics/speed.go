package metrics

import (
	"time"

	"classpulse/internal/config"
	"classpulse/pkg/types"
)

// computeSpeed summarizes answer times within the trailing speed window.
// Trend compares the mean of the older half of the sample against the newer
// half; a shift of at least TrendDelta in either direction classifies it.
func computeSpeed(events []types.AnswerEvent, now time.Time, cfg config.MetricsConfig) types.SpeedMetrics {
	m := types.SpeedMetrics{Trend: types.TrendNoData}

	cutoff := now.Add(-cfg.SpeedWindow)
	var times []float64
	for _, e := range events {
		if !e.CreatedAt.Before(cutoff) {
			times = append(times, e.TimeSpent)
		}
	}

	if len(times) == 0 {
		return m
	}

	m.SampleCount = len(times)
	m.Min = times[0]
	m.Max = times[0]
	var sum float64
	for _, t := range times {
		sum += t
		if t < m.Min {
			m.Min = t
		}
		if t > m.Max {
			m.Max = t
		}
	}
	m.Average = sum / float64(len(times))
	m.Latest = times[len(times)-1]

	if len(times) < cfg.TrendMinSamples {
		m.Trend = types.TrendInsufficientData
		return m
	}

	half := len(times) / 2
	earlier := mean(times[:half])
	recent := mean(times[half:])

	switch {
	case earlier == 0 && recent == 0:
		m.Trend = types.TrendStable
	case recent <= earlier*(1-cfg.TrendDelta):
		m.Trend = types.TrendAccelerating
	case recent >= earlier*(1+cfg.TrendDelta):
		m.Trend = types.TrendDecelerating
	default:
		m.Trend = types.TrendStable
	}

	return m
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
