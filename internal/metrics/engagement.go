package metrics

import (
	"time"

	"classpulse/internal/config"
	"classpulse/pkg/types"
)

// computeEngagement measures event density in the trailing engagement
// window. The rate denominator is the span back to the oldest in-window
// event, clamped to one minute so a single fresh event does not produce an
// unbounded rate.
func computeEngagement(events []types.AnswerEvent, now time.Time, cfg config.MetricsConfig) types.EngagementMetrics {
	m := types.EngagementMetrics{Tier: types.EngagementLow}

	if len(events) > 0 {
		sinceLast := now.Sub(events[len(events)-1].CreatedAt)
		m.SecondsSinceLast = sinceLast.Seconds()
		m.Active = sinceLast < cfg.ActiveWithin
	}

	cutoff := now.Add(-cfg.EngagementWindow)
	var recent []types.AnswerEvent
	for _, e := range events {
		if !e.CreatedAt.Before(cutoff) {
			recent = append(recent, e)
		}
	}
	if len(recent) == 0 {
		return m
	}

	minutes := now.Sub(recent[0].CreatedAt).Minutes()
	if minutes < 1 {
		minutes = 1
	}
	m.EventsPerMinute = float64(len(recent)) / minutes

	switch {
	case m.EventsPerMinute >= cfg.HighRatePerMin:
		m.Tier = types.EngagementHigh
	case m.EventsPerMinute >= cfg.MediumRatePerMin:
		m.Tier = types.EngagementMedium
	}

	return m
}
