package services

import (
	"fmt"
	"sort"
	"strings"

	"healthcompanion/internal/models"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/shopspring/decimal"
)

// unitSuffixes are stripped so "sodium_mg" and "sodium" share one category.
var unitSuffixes = []string{"_mg_dl", "_mmhg", "_kcal", "_mg", "_g"}

// referenceBands are the lower bounds at which a numeric finding reaches
// each level. Values below Low rate as none.
type referenceBands struct {
	Low      decimal.Decimal
	Moderate decimal.Decimal
	High     decimal.Decimal
	VeryHigh decimal.Decimal
}

func bands(low, moderate, high, veryHigh string) referenceBands {
	return referenceBands{
		Low:      decimal.RequireFromString(low),
		Moderate: decimal.RequireFromString(moderate),
		High:     decimal.RequireFromString(high),
		VeryHigh: decimal.RequireFromString(veryHigh),
	}
}

// Per-meal limits for nutrients and adult reference ranges for lab values.
var numericReferences = map[string]referenceBands{
	"sodium_mg":           bands("200", "800", "1500", "2300"),
	"sugar_g":             bands("5", "15", "25", "50"),
	"saturated_fat_g":     bands("2", "7", "13", "20"),
	"calories":            bands("200", "700", "1200", "2000"),
	"glucose_mg_dl":       bands("100", "110", "126", "200"),
	"ldl_mg_dl":           bands("100", "130", "160", "190"),
	"cholesterol_mg_dl":   bands("200", "220", "240", "300"),
	"triglycerides_mg_dl": bands("150", "175", "200", "500"),
	"systolic_mmhg":       bands("120", "130", "140", "180"),
	"diastolic_mmhg":      bands("80", "85", "90", "120"),
	"a1c":                 bands("5.7", "6.0", "6.5", "9.0"),
}

func (b referenceBands) level(value decimal.Decimal) models.Level {
	switch {
	case value.GreaterThanOrEqual(b.VeryHigh):
		return models.LevelVeryHigh
	case value.GreaterThanOrEqual(b.High):
		return models.LevelHigh
	case value.GreaterThanOrEqual(b.Moderate):
		return models.LevelModerate
	case value.GreaterThanOrEqual(b.Low):
		return models.LevelLow
	default:
		return models.LevelNone
	}
}

func NormalizeCategory(category string) string {
	normalized := strings.ToLower(strings.TrimSpace(category))
	for _, suffix := range unitSuffixes {
		if trimmed, ok := strings.CutSuffix(normalized, suffix); ok && trimmed != "" {
			return trimmed
		}
	}
	return normalized
}

// ResolveLevel rates a single finding. Rated values parse directly; numeric
// values are rated against the reference bands of their category. Findings
// that cannot be rated report false.
func ResolveLevel(category string, value string) (models.Level, bool) {
	if level, ok := models.ParseLevel(value); ok {
		return level, true
	}

	number, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return models.LevelNone, false
	}

	reference, ok := numericReferences[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		return models.LevelNone, false
	}
	return reference.level(number), true
}

type AlertService struct {
	log logger.Logger
}

func NewAlertService() *AlertService {
	return &AlertService{
		log: logger.New("alertService"),
	}
}

// Evaluate raises at most one alert per category for every finding whose
// level reaches the user's threshold. When several findings map to the same
// category the most severe one wins.
func (s *AlertService) Evaluate(insight models.Insight, prefs models.UserPreferences) []models.Alert {
	categories := make([]string, 0, len(insight.Findings))
	for category := range insight.Findings {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	best := make(map[string]models.Alert)
	for _, category := range categories {
		value := insight.Findings[category]
		level, ok := ResolveLevel(category, value)
		if !ok || level == models.LevelNone {
			continue
		}

		normalized := NormalizeCategory(category)
		threshold := prefs.ThresholdFor(normalized)
		if override, ok := prefs.CategoryThresholds[category]; ok && override != "" {
			threshold = override
		}
		if !level.AtLeast(threshold) {
			continue
		}

		if current, exists := best[normalized]; exists && current.Severity.Rank() >= level.Rank() {
			continue
		}
		best[normalized] = models.Alert{
			Category: normalized,
			Severity: level,
			Message:  alertMessage(normalized, category, value, level, insight.Trigger),
		}
	}

	alerts := make([]models.Alert, 0, len(best))
	for _, alert := range best {
		alerts = append(alerts, alert)
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Severity.Rank() != alerts[j].Severity.Rank() {
			return alerts[i].Severity.Rank() > alerts[j].Severity.Rank()
		}
		return alerts[i].Category < alerts[j].Category
	})

	if len(alerts) > 0 {
		s.log.Function("Evaluate").Debug("alerts raised",
			"userID", insight.UserID,
			"sourceID", insight.SourceID,
			"count", len(alerts))
	}
	return alerts
}

func alertMessage(normalized, category, value string, level models.Level, trigger models.Trigger) string {
	label := strings.ReplaceAll(normalized, "_", " ")
	rating := strings.ReplaceAll(level.String(), "_", " ")
	subject := "this upload"
	if trigger == models.TriggerSchedule {
		subject = "the last week"
	}

	if _, rated := models.ParseLevel(value); rated {
		return fmt.Sprintf("%s was %s in %s", capitalize(label), rating, subject)
	}
	measured := strings.TrimSpace(value + " " + unitOf(category))
	return fmt.Sprintf("%s was %s in %s (%s)", capitalize(label), rating, subject, measured)
}

func unitOf(category string) string {
	lower := strings.ToLower(category)
	switch {
	case strings.HasSuffix(lower, "_mg_dl"):
		return "mg/dL"
	case strings.HasSuffix(lower, "_mmhg"):
		return "mmHg"
	case strings.HasSuffix(lower, "_mg"):
		return "mg"
	case strings.HasSuffix(lower, "_g"):
		return "g"
	case lower == "calories":
		return "kcal"
	case lower == "a1c":
		return "%"
	default:
		return ""
	}
}

func capitalize(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
