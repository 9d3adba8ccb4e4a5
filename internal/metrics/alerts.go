package metrics

import (
	"fmt"
	"time"

	"classpulse/internal/config"
	"classpulse/pkg/types"
)

// evaluateAlerts checks a snapshot against the alert thresholds. Each alert
// is independent; multiple may fire in one cycle. A session with no answer
// events yet produces no alerts since there is no activity to judge.
func evaluateAlerts(snap *types.MetricsSnapshot, cfg config.MetricsConfig, now time.Time) []types.Alert {
	if snap.Progress.Completed == 0 {
		return nil
	}

	var alerts []types.Alert

	if snap.Accuracy.SampleCount >= cfg.AccuracyTrendMin &&
		snap.Accuracy.Previous-snap.Accuracy.Recent > cfg.AccuracyDropDelta {
		alerts = append(alerts, types.Alert{
			Kind:     types.AlertAccuracyDrop,
			Severity: types.SeverityWarning,
			Message: fmt.Sprintf("accuracy dropped from %.0f%% to %.0f%%",
				snap.Accuracy.Previous*100, snap.Accuracy.Recent*100),
			Value:     snap.Accuracy.Recent,
			Threshold: cfg.AccuracyDropDelta,
			Timestamp: now,
		})
	}

	if snap.Accuracy.ConsecutiveMisses >= cfg.ConsecutiveMissMax {
		alerts = append(alerts, types.Alert{
			Kind:     types.AlertConsecutiveErrors,
			Severity: types.SeverityCritical,
			Message: fmt.Sprintf("%d incorrect answers in a row",
				snap.Accuracy.ConsecutiveMisses),
			Value:     float64(snap.Accuracy.ConsecutiveMisses),
			Threshold: float64(cfg.ConsecutiveMissMax),
			Timestamp: now,
		})
	}

	if snap.Speed.Trend == types.TrendDecelerating {
		alerts = append(alerts, types.Alert{
			Kind:     types.AlertSpeedDecline,
			Severity: types.SeverityInfo,
			Message: fmt.Sprintf("answer speed is slowing, averaging %.1fs",
				snap.Speed.Average),
			Value:     snap.Speed.Average,
			Threshold: cfg.TrendDelta,
			Timestamp: now,
		})
	}

	if snap.Engagement.Tier == types.EngagementLow {
		alerts = append(alerts, types.Alert{
			Kind:     types.AlertLowEngagement,
			Severity: types.SeverityWarning,
			Message: fmt.Sprintf("activity dropped to %.1f events/min",
				snap.Engagement.EventsPerMinute),
			Value:     snap.Engagement.EventsPerMinute,
			Threshold: cfg.MediumRatePerMin,
			Timestamp: now,
		})
	}

	return alerts
}
