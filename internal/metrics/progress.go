package metrics

import (
	"time"

	"classpulse/internal/config"
	"classpulse/pkg/types"
)

// Fallback per-item estimate when a learner has no usable baseline.
const defaultSecondsPerItem = 60.0

// computeProgress tracks completion against the session target and
// classifies pace. The ahead and behind factors form an intentionally
// asymmetric band so the classification does not flap around parity.
func computeProgress(events []types.AnswerEvent, meta *types.SessionMeta, baseline *types.BaselineProfile, now time.Time, cfg config.MetricsConfig) types.ProgressMetrics {
	m := types.ProgressMetrics{
		Completed: len(events),
		Target:    meta.TargetCount,
		Pace:      types.PaceOnTrack,
	}

	elapsed := now.Sub(meta.CreatedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	m.ElapsedSeconds = elapsed

	if m.Target > 0 {
		m.Ratio = clamp01(float64(m.Completed) / float64(m.Target))
	}

	if m.Completed > 0 && m.Target > m.Completed {
		m.EstimatedRemaining = float64(m.Target-m.Completed) * (elapsed / float64(m.Completed))
	}

	expected := expectedDuration(meta, baseline)
	if m.Target > 0 && expected > 0 && elapsed > 0 {
		timeFraction := elapsed / expected
		completionRate := float64(m.Completed) / float64(m.Target)

		switch {
		case m.Completed > 0 && completionRate >= timeFraction*cfg.PaceAheadFactor:
			m.Pace = types.PaceAhead
		case completionRate <= timeFraction*cfg.PaceBehindFactor:
			m.Pace = types.PaceBehind
		}
	}

	return m
}

// expectedDuration estimates how long the session should take: the learner's
// typical session duration when known, otherwise typical answer time (or the
// fallback) times the target count.
func expectedDuration(meta *types.SessionMeta, baseline *types.BaselineProfile) float64 {
	if baseline != nil && baseline.TypicalSessionSecs > 0 {
		return baseline.TypicalSessionSecs
	}
	perItem := defaultSecondsPerItem
	if baseline != nil && baseline.TypicalAnswerTime > 0 {
		perItem = baseline.TypicalAnswerTime
	}
	return float64(meta.TargetCount) * perItem
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
