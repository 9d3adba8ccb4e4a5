package metrics

import (
	"math"
	"time"

	"classpulse/internal/config"
	"classpulse/pkg/types"
)

// computeDifficulty evaluates fit of the session's difficulty level from
// same-level events in the trailing difficulty window, capped at
// DifficultySamples. The match score peaks as accuracy approaches 0.75.
func computeDifficulty(events []types.AnswerEvent, meta *types.SessionMeta, now time.Time, cfg config.MetricsConfig) types.DifficultyMetrics {
	m := types.DifficultyMetrics{
		Level:      meta.DifficultyLevel,
		Status:     types.AdaptNoData,
		Suggestion: types.SuggestMaintain,
	}

	cutoff := now.Add(-cfg.DifficultyWindow)
	var sample []types.AnswerEvent
	for _, e := range events {
		if e.Difficulty == meta.DifficultyLevel && !e.CreatedAt.Before(cutoff) {
			sample = append(sample, e)
		}
	}
	if len(sample) > cfg.DifficultySamples {
		sample = sample[len(sample)-cfg.DifficultySamples:]
	}
	if len(sample) == 0 {
		return m
	}

	m.SampleCount = len(sample)
	m.Accuracy = correctRate(sample)
	var sum float64
	for _, e := range sample {
		sum += e.TimeSpent
	}
	m.AverageTime = sum / float64(len(sample))

	m.MatchScore = clamp01(1 - math.Abs(m.Accuracy-0.75)/0.75)

	switch {
	case m.Accuracy >= cfg.EasyAccuracy && m.AverageTime <= cfg.EasyMaxTime:
		m.Status = types.AdaptTooEasy
		m.Suggestion = types.SuggestIncrease
	case m.Accuracy <= cfg.HardAccuracy || m.AverageTime >= cfg.HardMinTime:
		m.Status = types.AdaptTooHard
		m.Suggestion = types.SuggestDecrease
	default:
		m.Status = types.AdaptAppropriate
		m.Suggestion = types.SuggestMaintain
	}

	return m
}
