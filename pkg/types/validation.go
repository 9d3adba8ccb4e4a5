package types

import (
	"regexp"
)

// Compiled once at package initialization; ID validation runs on every
// connection attempt.
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks learner and session ID format. IDs are 1-50 characters
// from [a-zA-Z0-9_-], matching what the platform issues.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 50 {
		return false
	}
	return idRegex.MatchString(id)
}

// IsValidSeverity reports whether s is one of the closed severity set.
func IsValidSeverity(s AlertSeverity) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	default:
		return false
	}
}

// IsValidAlertKind reports whether k is one of the closed alert kinds.
func IsValidAlertKind(k AlertKind) bool {
	switch k {
	case AlertAccuracyDrop, AlertConsecutiveErrors, AlertSpeedDecline, AlertLowEngagement:
		return true
	default:
		return false
	}
}

// IsValidSpeedTrend reports whether t is one of the closed speed trends.
func IsValidSpeedTrend(t SpeedTrend) bool {
	switch t {
	case TrendAccelerating, TrendDecelerating, TrendStable, TrendNoData, TrendInsufficientData:
		return true
	default:
		return false
	}
}

// IsValidAccuracyTrend reports whether t is one of the closed accuracy trends.
func IsValidAccuracyTrend(t AccuracyTrend) bool {
	switch t {
	case AccuracyImproving, AccuracyDeclining, AccuracyStable, AccuracyInsufficientData:
		return true
	default:
		return false
	}
}

// IsValidPace reports whether p is one of the closed pace values.
func IsValidPace(p Pace) bool {
	switch p {
	case PaceAhead, PaceBehind, PaceOnTrack:
		return true
	default:
		return false
	}
}

// IsValidEngagementTier reports whether t is one of the closed tiers.
func IsValidEngagementTier(t EngagementTier) bool {
	switch t {
	case EngagementHigh, EngagementMedium, EngagementLow:
		return true
	default:
		return false
	}
}

// IsValidAdaptationStatus reports whether s is one of the closed statuses.
func IsValidAdaptationStatus(s AdaptationStatus) bool {
	switch s {
	case AdaptTooEasy, AdaptTooHard, AdaptAppropriate, AdaptNoData:
		return true
	default:
		return false
	}
}
