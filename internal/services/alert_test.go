package services

import (
	"testing"

	"healthcompanion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		category string
		value    string
		expected models.Level
		ok       bool
	}{
		{category: "sodium", value: "high", expected: models.LevelHigh, ok: true},
		{category: "sodium_mg", value: "2600", expected: models.LevelVeryHigh, ok: true},
		{category: "sodium_mg", value: "900", expected: models.LevelModerate, ok: true},
		{category: "sodium_mg", value: "50", expected: models.LevelNone, ok: true},
		{category: "glucose_mg_dl", value: "130", expected: models.LevelHigh, ok: true},
		{category: "a1c", value: "5.8", expected: models.LevelLow, ok: true},
		{category: "protein_g", value: "40", ok: false},
		{category: "sodium", value: "lots", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.category+"="+tt.value, func(t *testing.T) {
			level, ok := ResolveLevel(tt.category, tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, level)
			}
		})
	}
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, "sodium", NormalizeCategory("Sodium_MG"))
	assert.Equal(t, "glucose", NormalizeCategory("glucose_mg_dl"))
	assert.Equal(t, "systolic", NormalizeCategory("systolic_mmhg"))
	assert.Equal(t, "saturated_fat", NormalizeCategory("saturated_fat_g"))
	assert.Equal(t, "calories", NormalizeCategory("calories"))
}

func TestAlertService_SodiumHighOverModerateThreshold(t *testing.T) {
	service := NewAlertService()
	insight := models.Insight{
		UserID:   "u1",
		SourceID: "u1/lunch.jpg",
		Trigger:  models.TriggerUpload,
		Findings: models.Findings{"sodium": "high"},
	}
	prefs := models.UserPreferences{UserID: "u1", AlertSensitivity: models.LevelModerate}

	alerts := service.Evaluate(insight, prefs)

	require.Len(t, alerts, 1)
	assert.Equal(t, "sodium", alerts[0].Category)
	assert.Equal(t, models.LevelHigh, alerts[0].Severity)
	assert.Equal(t, "Sodium was high in this upload", alerts[0].Message)
}

func TestAlertService_OneAlertPerCategory(t *testing.T) {
	service := NewAlertService()
	insight := models.Insight{
		Findings: models.Findings{
			"sodium":    "moderate",
			"sodium_mg": "2600",
			"sugar_g":   "30",
			"protein_g": "45",
		},
	}
	prefs := models.DefaultPreferences("u1")

	alerts := service.Evaluate(insight, prefs)

	require.Len(t, alerts, 2)
	assert.Equal(t, models.Alert{
		Category: "sodium",
		Severity: models.LevelVeryHigh,
		Message:  "Sodium was very high in this upload (2600 mg)",
	}, alerts[0])
	assert.Equal(t, "sugar", alerts[1].Category)
	assert.Equal(t, models.LevelHigh, alerts[1].Severity)
}

func TestAlertService_CategoryOverride(t *testing.T) {
	service := NewAlertService()
	insight := models.Insight{Findings: models.Findings{"sodium": "low", "sugar": "moderate"}}
	prefs := models.UserPreferences{
		AlertSensitivity:   models.LevelHigh,
		CategoryThresholds: map[string]models.Level{"sodium": models.LevelLow},
	}

	alerts := service.Evaluate(insight, prefs)

	require.Len(t, alerts, 1)
	assert.Equal(t, "sodium", alerts[0].Category)
}

func TestAlertService_EmptyFindingsRaiseNothing(t *testing.T) {
	service := NewAlertService()

	alerts := service.Evaluate(models.Insight{Findings: models.Findings{}}, models.DefaultPreferences("u1"))

	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)
}

// Raising a finding never lowers severity and lowering a threshold never
// removes an alert.
func TestAlertService_ThresholdMonotonicity(t *testing.T) {
	service := NewAlertService()
	levels := []models.Level{
		models.LevelNone,
		models.LevelLow,
		models.LevelModerate,
		models.LevelHigh,
		models.LevelVeryHigh,
	}

	for _, threshold := range levels {
		previousRank := -1
		for _, finding := range levels {
			alerts := service.Evaluate(
				models.Insight{Findings: models.Findings{"sugar": finding.String()}},
				models.UserPreferences{AlertSensitivity: threshold},
			)

			rank := -1
			if len(alerts) == 1 {
				rank = alerts[0].Severity.Rank()
				assert.True(t, finding.AtLeast(threshold))
			}
			assert.GreaterOrEqual(t, rank, previousRank, "finding %s threshold %s", finding, threshold)
			previousRank = rank
		}
	}

	for _, finding := range levels[1:] {
		alertedAtHigherThreshold := false
		for i := len(levels) - 1; i >= 0; i-- {
			alerts := service.Evaluate(
				models.Insight{Findings: models.Findings{"sugar": finding.String()}},
				models.UserPreferences{AlertSensitivity: levels[i]},
			)
			if alertedAtHigherThreshold {
				assert.Len(t, alerts, 1, "lowering threshold to %s dropped alert for %s", levels[i], finding)
			}
			if len(alerts) == 1 {
				alertedAtHigherThreshold = true
			}
		}
	}

	previousRank := -1
	for _, grams := range []string{"1", "6", "14", "20", "26", "49", "50", "120"} {
		alerts := service.Evaluate(
			models.Insight{Findings: models.Findings{"sugar_g": grams}},
			models.UserPreferences{AlertSensitivity: models.LevelLow},
		)
		rank := -1
		if len(alerts) == 1 {
			rank = alerts[0].Severity.Rank()
		}
		assert.GreaterOrEqual(t, rank, previousRank, "sugar_g=%s", grams)
		previousRank = rank
	}
}
