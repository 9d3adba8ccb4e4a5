package metrics

import (
	"testing"
	"time"

	"classpulse/pkg/types"
)

// answerRun builds events oldest first from correctness flags.
func answerRun(correct ...bool) []types.AnswerEvent {
	now := time.Now()
	events := make([]types.AnswerEvent, len(correct))
	for i, c := range correct {
		events[i] = types.AnswerEvent{
			Correct:   c,
			TimeSpent: 30,
			CreatedAt: now.Add(-time.Duration(len(correct)-i) * time.Second),
		}
	}
	return events
}

func repeatAnswers(correct bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = correct
	}
	return out
}

func TestComputeAccuracyEmpty(t *testing.T) {
	m := computeAccuracy(nil, testMetricsConfig())

	if m.SampleCount != 0 {
		t.Errorf("expected zero samples, got %d", m.SampleCount)
	}
	if m.Trend != types.AccuracyInsufficientData {
		t.Errorf("expected insufficient_data, got %s", m.Trend)
	}
	if m.Overall != 0 || m.Recent != 0 {
		t.Error("empty input should yield zero rates")
	}
}

func TestComputeAccuracyRates(t *testing.T) {
	// 3 correct of 4.
	m := computeAccuracy(answerRun(true, true, false, true), testMetricsConfig())

	if m.Overall != 0.75 {
		t.Errorf("expected overall 0.75, got %f", m.Overall)
	}
	if m.Recent != 0.75 {
		t.Errorf("expected recent 0.75, got %f", m.Recent)
	}
	if m.ConsecutiveMisses != 0 {
		t.Errorf("expected no current miss streak, got %d", m.ConsecutiveMisses)
	}
	if m.Overall < 0 || m.Overall > 1 || m.Recent < 0 || m.Recent > 1 {
		t.Error("rates must stay within [0,1]")
	}
}

func TestComputeAccuracyMissStreak(t *testing.T) {
	m := computeAccuracy(answerRun(true, true, false, false, false), testMetricsConfig())
	if m.ConsecutiveMisses != 3 {
		t.Errorf("expected streak of 3, got %d", m.ConsecutiveMisses)
	}

	// A correct answer resets the streak.
	m = computeAccuracy(answerRun(false, false, true), testMetricsConfig())
	if m.ConsecutiveMisses != 0 {
		t.Errorf("expected streak reset to 0, got %d", m.ConsecutiveMisses)
	}
}

func TestComputeAccuracySampleCap(t *testing.T) {
	cfg := testMetricsConfig()

	// 30 misses followed by 20 correct: only the capped tail counts.
	flags := append(repeatAnswers(false, 30), repeatAnswers(true, cfg.AccuracyMaxSamples)...)
	m := computeAccuracy(answerRun(flags...), cfg)

	if m.Overall != 1.0 {
		t.Errorf("overall should only cover the capped sample, got %f", m.Overall)
	}
	if m.SampleCount != 50 {
		t.Errorf("sample count should report session total, got %d", m.SampleCount)
	}
}

func TestComputeAccuracyTrend(t *testing.T) {
	cfg := testMetricsConfig()

	tests := []struct {
		name  string
		flags []bool
		want  types.AccuracyTrend
	}{
		{
			// Previous window all misses, recent window all correct.
			"improving",
			append(repeatAnswers(false, 10), repeatAnswers(true, 10)...),
			types.AccuracyImproving,
		},
		{
			"declining",
			append(repeatAnswers(true, 10), repeatAnswers(false, 10)...),
			types.AccuracyDeclining,
		},
		{
			"stable",
			repeatAnswers(true, 20),
			types.AccuracyStable,
		},
		{
			"too few attempts",
			repeatAnswers(true, 10),
			types.AccuracyInsufficientData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := computeAccuracy(answerRun(tt.flags...), cfg)
			if m.Trend != tt.want {
				t.Errorf("expected %s, got %s", tt.want, m.Trend)
			}
		})
	}
}
