package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"healthcompanion/internal/models"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	// Recurring means elevated on at least this many distinct days of history.
	recurringDays = 2

	defaultTrendDays       = 90
	defaultTrendDataPoints = 5
)

// A category moves when its mean rank shifts by at least half a level
// between the two halves of the trend window.
var trendShift = decimal.NewFromFloat(0.5)

var categoryAdvice = map[string]string{
	"sodium":        "Balance the rest of the day with low-sodium choices and drink water.",
	"sugar":         "Swap sweetened drinks and desserts for fruit or unsweetened options.",
	"saturated_fat": "Favour lean proteins and plant oils over fried or fatty foods.",
	"calories":      "Keep the next meals lighter and add a short walk.",
	"glucose":       "Discuss your glucose results with your doctor and limit refined carbohydrates.",
	"a1c":           "Ask your doctor about a follow-up A1C test and a diabetes risk review.",
	"ldl":           "Add fibre-rich foods and discuss your LDL level at your next check-up.",
	"cholesterol":   "Increase fibre and reduce saturated fat to support healthy cholesterol.",
	"triglycerides": "Cut back on sugar and alcohol and review triglycerides with your doctor.",
	"systolic":      "Monitor your blood pressure and reduce salt intake.",
	"diastolic":     "Monitor your blood pressure and reduce salt intake.",
}

// InsightService turns analysis results and recent history into insights.
// Generation is deterministic: the same inputs always yield the same Insight.
type InsightService struct {
	historyDays     int
	trendDays       int
	trendDataPoints int
	log             logger.Logger
}

func NewInsightService(historyDays int) *InsightService {
	return &InsightService{
		historyDays:     historyDays,
		trendDays:       defaultTrendDays,
		trendDataPoints: defaultTrendDataPoints,
		log:             logger.New("insightService"),
	}
}

// WithTrendWindow sets the lookback and the minimum number of uploads a
// trend needs.
func (s *InsightService) WithTrendWindow(days, minDataPoints int) *InsightService {
	if days > 0 {
		s.trendDays = days
	}
	if minDataPoints > 0 {
		s.trendDataPoints = minDataPoints
	}
	return s
}

// HistoryWindow is the [from, to) range of summaries consulted for date.
func (s *InsightService) HistoryWindow(date time.Time) (time.Time, time.Time) {
	day := models.DateOf(date)
	return day.AddDate(0, 0, -s.historyDays), day
}

// Generate derives the insight for one completed analysis result on date.
// history is read only.
func (s *InsightService) Generate(
	result models.AnalysisResult,
	date time.Time,
	history []*models.DailySummary,
) models.Insight {
	windowStart, windowEnd := s.HistoryWindow(date)
	findings := copyFindings(result.Findings)
	elevated := elevatedCategories(findings)

	recommendations := make([]string, 0, len(elevated)+1)
	for _, category := range elevated {
		recommendations = append(recommendations, adviceFor(category))
	}

	if len(history) > 0 {
		recurring := recurringCategories(history, windowStart, windowEnd)
		for _, category := range elevated {
			if days := recurring[category]; days >= recurringDays {
				recommendations = append(recommendations,
					fmt.Sprintf("%s has been elevated on %d of the last %d days.",
						capitalize(strings.ReplaceAll(category, "_", " ")), days, s.historyDays))
			}
		}
	}

	return models.Insight{
		ID:              models.InsightID(result.ArtifactRef),
		SourceID:        result.ArtifactRef,
		AnalysisRef:     result.ArtifactRef,
		UserID:          result.UserID,
		Trigger:         models.TriggerUpload,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		Findings:        findings,
		Recommendations: dedupe(recommendations),
		Alerts:          []models.Alert{},
	}
}

// GenerateDigest builds the schedule-path insight for userID on date from
// the peak level of each category over history. With no history the digest
// carries no findings and no recommendations.
func (s *InsightService) GenerateDigest(
	userID string,
	date time.Time,
	history []*models.DailySummary,
) models.Insight {
	windowStart, windowEnd := s.HistoryWindow(date)
	sourceID := models.DigestSourceID(windowEnd)

	insight := models.Insight{
		ID:              models.InsightID(userID + "/" + sourceID),
		SourceID:        sourceID,
		UserID:          userID,
		Trigger:         models.TriggerSchedule,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		Findings:        models.Findings{},
		Recommendations: []string{},
		Alerts:          []models.Alert{},
	}

	peaks := make(map[string]models.Level)
	uploads := 0
	for _, summary := range history {
		if summary.Date.Before(windowStart) || !summary.Date.Before(windowEnd) {
			continue
		}
		for _, entry := range summary.Insights() {
			if entry.Trigger != models.TriggerUpload {
				continue
			}
			uploads++
			for category, value := range entry.Findings {
				level, ok := ResolveLevel(category, value)
				if !ok {
					continue
				}
				normalized := NormalizeCategory(category)
				if current, seen := peaks[normalized]; !seen || level.Rank() > current.Rank() {
					peaks[normalized] = level
				}
			}
		}
	}

	if uploads == 0 {
		return insight
	}

	for category, level := range peaks {
		insight.Findings[category] = level.String()
	}

	recurring := recurringCategories(history, windowStart, windowEnd)
	categories := sortedKeys(recurring)
	for _, category := range categories {
		days := recurring[category]
		if days < recurringDays {
			continue
		}
		insight.Recommendations = append(insight.Recommendations,
			fmt.Sprintf("%s was elevated on %d of the last %d days. %s",
				capitalize(strings.ReplaceAll(category, "_", " ")), days, s.historyDays, adviceFor(category)))
	}

	insight.Recommendations = append(insight.Recommendations,
		fmt.Sprintf("You logged %d upload(s) over the last %d days. Keep it up!", uploads, s.historyDays))

	return insight
}

// TrendWindow is the [from, to) range of summaries consulted for a trend
// as of asOf.
func (s *InsightService) TrendWindow(asOf time.Time) (time.Time, time.Time) {
	day := models.DateOf(asOf)
	return day.AddDate(0, 0, -s.trendDays), day
}

type trendPoint struct {
	day   time.Time
	level models.Level
}

// GenerateTrend builds the weekly trend for userID from upload insights in
// the trend window. It returns false when fewer uploads than the configured
// minimum fall inside the window.
func (s *InsightService) GenerateTrend(
	userID string,
	asOf time.Time,
	history []*models.DailySummary,
) (*models.HealthTrend, bool) {
	windowStart, windowEnd := s.TrendWindow(asOf)
	midpoint := windowStart.AddDate(0, 0, s.trendDays/2)

	points := make(map[string][]trendPoint)
	activeDays := make(map[string]bool)
	uploads := 0
	for _, summary := range history {
		if summary.Date.Before(windowStart) || !summary.Date.Before(windowEnd) {
			continue
		}
		for _, entry := range summary.Insights() {
			if entry.Trigger != models.TriggerUpload {
				continue
			}
			uploads++
			activeDays[models.FormatDate(summary.Date)] = true
			for category, value := range entry.Findings {
				level, ok := ResolveLevel(category, value)
				if !ok {
					continue
				}
				normalized := NormalizeCategory(category)
				points[normalized] = append(points[normalized], trendPoint{day: summary.Date, level: level})
			}
		}
	}

	if uploads < s.trendDataPoints {
		return nil, false
	}

	elevated := recurringCategories(history, windowStart, windowEnd)
	categories := make(map[string]models.CategoryTrend, len(points))
	recommendations := []string{}
	for _, category := range sortedKeys(points) {
		trend := summarizeTrend(points[category], midpoint)
		trend.ElevatedDays = elevated[category]
		categories[category] = trend

		label := capitalize(strings.ReplaceAll(category, "_", " "))
		switch trend.Direction {
		case models.TrendWorsening:
			recommendations = append(recommendations,
				fmt.Sprintf("%s has been trending up over the last %d days. %s", label, s.trendDays, adviceFor(category)))
		case models.TrendImproving:
			recommendations = append(recommendations,
				fmt.Sprintf("%s has improved over the last %d days. Keep it up!", label, s.trendDays))
		}
	}
	if len(recommendations) == 0 {
		recommendations = append(recommendations,
			fmt.Sprintf("Your tracked levels held steady over the last %d days.", s.trendDays))
	}

	return &models.HealthTrend{
		UserID:          userID,
		AsOf:            windowEnd,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		DataPoints:      uploads,
		ActiveDays:      len(activeDays),
		Categories:      datatypes.NewJSONType(categories),
		Recommendations: pq.StringArray(recommendations),
	}, true
}

// summarizeTrend compares mean rank before and after midpoint. A category
// seen in only one half is stable.
func summarizeTrend(points []trendPoint, midpoint time.Time) models.CategoryTrend {
	var early, late []int
	peak := models.LevelNone
	for _, point := range points {
		if point.level.Rank() > peak.Rank() {
			peak = point.level
		}
		if point.day.Before(midpoint) {
			early = append(early, point.level.Rank())
		} else {
			late = append(late, point.level.Rank())
		}
	}

	trend := models.CategoryTrend{
		Direction: models.TrendStable,
		EarlyMean: meanRank(early),
		LateMean:  meanRank(late),
		Peak:      peak,
	}
	if len(early) == 0 || len(late) == 0 {
		return trend
	}

	shift := trend.LateMean.Sub(trend.EarlyMean)
	switch {
	case shift.GreaterThanOrEqual(trendShift):
		trend.Direction = models.TrendWorsening
	case shift.LessThanOrEqual(trendShift.Neg()):
		trend.Direction = models.TrendImproving
	}
	return trend
}

func meanRank(ranks []int) decimal.Decimal {
	if len(ranks) == 0 {
		return decimal.Zero
	}
	sum := 0
	for _, rank := range ranks {
		sum += rank
	}
	return decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(ranks)))).Round(2)
}

func adviceFor(category string) string {
	if advice, ok := categoryAdvice[category]; ok {
		return advice
	}
	return fmt.Sprintf("Keep an eye on %s over the coming days.", strings.ReplaceAll(category, "_", " "))
}

// elevatedCategories returns the sorted normalized categories rated moderate
// or above.
func elevatedCategories(findings models.Findings) []string {
	seen := make(map[string]bool)
	for category, value := range findings {
		level, ok := ResolveLevel(category, value)
		if !ok || !level.AtLeast(models.LevelModerate) {
			continue
		}
		seen[NormalizeCategory(category)] = true
	}
	return sortedKeys(seen)
}

// recurringCategories counts, per normalized category, the distinct days in
// [from, to) on which an upload rated it moderate or above.
func recurringCategories(history []*models.DailySummary, from, to time.Time) map[string]int {
	days := make(map[string]map[string]bool)
	for _, summary := range history {
		if summary.Date.Before(from) || !summary.Date.Before(to) {
			continue
		}
		day := models.FormatDate(summary.Date)
		for _, entry := range summary.Insights() {
			if entry.Trigger != models.TriggerUpload {
				continue
			}
			for _, category := range elevatedCategories(entry.Findings) {
				if days[category] == nil {
					days[category] = make(map[string]bool)
				}
				days[category][day] = true
			}
		}
	}

	counts := make(map[string]int, len(days))
	for category, seen := range days {
		counts[category] = len(seen)
	}
	return counts
}

func copyFindings(findings models.Findings) models.Findings {
	copied := make(models.Findings, len(findings))
	for k, v := range findings {
		copied[k] = v
	}
	return copied
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
