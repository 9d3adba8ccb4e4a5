package metrics

import (
	"classpulse/internal/config"
	"classpulse/pkg/types"
)

// computeAccuracy summarizes correctness over the session-to-date events.
// Overall and the consecutive-miss streak are bounded by AccuracyMaxSamples;
// the trend compares the most recent RecentWindow attempts against the
// window immediately before them once AccuracyTrendMin total attempts exist.
func computeAccuracy(events []types.AnswerEvent, cfg config.MetricsConfig) types.AccuracyMetrics {
	m := types.AccuracyMetrics{Trend: types.AccuracyInsufficientData}

	total := len(events)
	if total == 0 {
		return m
	}
	m.SampleCount = total

	sample := events
	if len(sample) > cfg.AccuracyMaxSamples {
		sample = sample[len(sample)-cfg.AccuracyMaxSamples:]
	}
	m.Overall = correctRate(sample)

	recent := sample
	if len(recent) > cfg.RecentWindow {
		recent = recent[len(recent)-cfg.RecentWindow:]
	}
	m.Recent = correctRate(recent)

	// Current miss streak: scan backward from the newest event until a
	// correct answer or the sample boundary.
	for i := len(sample) - 1; i >= 0; i-- {
		if sample[i].Correct {
			break
		}
		m.ConsecutiveMisses++
	}

	if total >= cfg.AccuracyTrendMin && total >= 2*cfg.RecentWindow {
		previous := events[total-2*cfg.RecentWindow : total-cfg.RecentWindow]
		m.Previous = correctRate(previous)

		diff := m.Recent - m.Previous
		switch {
		case diff >= cfg.TrendDelta:
			m.Trend = types.AccuracyImproving
		case diff <= -cfg.TrendDelta:
			m.Trend = types.AccuracyDeclining
		default:
			m.Trend = types.AccuracyStable
		}
	}

	return m
}

func correctRate(events []types.AnswerEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	correct := 0
	for _, e := range events {
		if e.Correct {
			correct++
		}
	}
	return float64(correct) / float64(len(events))
}
