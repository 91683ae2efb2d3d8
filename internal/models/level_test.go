package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		ok       bool
	}{
		{input: "high", expected: LevelHigh, ok: true},
		{input: " Moderate ", expected: LevelModerate, ok: true},
		{input: "medium", expected: LevelModerate, ok: true},
		{input: "very high", expected: LevelVeryHigh, ok: true},
		{input: "critical", expected: LevelVeryHigh, ok: true},
		{input: "normal", expected: LevelNone, ok: true},
		{input: "2300", ok: false},
		{input: "pizza", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, ok := ParseLevel(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, level)
			}
		})
	}
}

func TestLevel_Ordering(t *testing.T) {
	assert.True(t, LevelHigh.AtLeast(LevelModerate))
	assert.True(t, LevelModerate.AtLeast(LevelModerate))
	assert.False(t, LevelLow.AtLeast(LevelModerate))
	assert.Less(t, LevelNone.Rank(), LevelVeryHigh.Rank())

	assert.Equal(t, LevelNone, LevelFromRank(-3))
	assert.Equal(t, LevelVeryHigh, LevelFromRank(42))
	assert.Equal(t, LevelHigh, LevelFromRank(LevelHigh.Rank()))
}

func TestUserPreferences_ThresholdFor(t *testing.T) {
	prefs := UserPreferences{
		UserID:             "u1",
		AlertSensitivity:   LevelHigh,
		CategoryThresholds: map[string]Level{"sodium": LevelLow},
	}

	assert.Equal(t, LevelLow, prefs.ThresholdFor("sodium"))
	assert.Equal(t, LevelHigh, prefs.ThresholdFor("sugar"))
	assert.Equal(t, LevelModerate, DefaultPreferences("u2").ThresholdFor("sugar"))
	assert.False(t, DefaultPreferences("u2").HasChannel())
}

func TestDailySummary_CloneDoesNotAlias(t *testing.T) {
	summary := NewDailySummary("u1", mustDate(t, "2026-10-19"))
	summary.AnalysisRefs = append(summary.AnalysisRefs, "a1")
	summary.SetInsights([]Insight{{SourceID: "a1", Recommendations: []string{"drink water"}}})

	clone := summary.Clone()
	clone.AnalysisRefs[0] = "changed"
	insights := clone.Insights()
	insights[0].Recommendations[0] = "changed"

	assert.Equal(t, "a1", summary.AnalysisRefs[0])
	assert.Equal(t, "drink water", summary.Insights()[0].Recommendations[0])
	assert.Equal(t, "u1:2026-10-19", summary.Key())
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := ParseDate(value)
	if err != nil {
		t.Fatalf("bad date %q: %v", value, err)
	}
	return parsed
}
