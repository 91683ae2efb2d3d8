package models

import (
	"time"

	"github.com/google/uuid"
)

type Trigger string

const (
	TriggerUpload   Trigger = "upload"
	TriggerSchedule Trigger = "schedule"
)

var insightNamespace = uuid.MustParse("5b0f7a52-3c1e-4d8e-9a61-2f4c8d9e1a07")

// Alert is always carried inside an Insight.
type Alert struct {
	Category string `json:"category"`
	Severity Level  `json:"severity"`
	Message  string `json:"message"`
}

// Insight is the recommendation bundle derived from one analysis result (or,
// for the schedule path, from the user's recent history). It is never mutated
// after creation; a newer Insight with the same SourceID supersedes it.
type Insight struct {
	ID              uuid.UUID `json:"id"`
	SourceID        string    `json:"sourceId"`
	AnalysisRef     string    `json:"analysisRef,omitempty"`
	UserID          string    `json:"userId"`
	Trigger         Trigger   `json:"trigger"`
	WindowStart     time.Time `json:"windowStart"`
	WindowEnd       time.Time `json:"windowEnd"`
	Findings        Findings  `json:"findings,omitempty"`
	Recommendations []string  `json:"recommendations"`
	Alerts          []Alert   `json:"alerts"`
}

// InsightID is stable for a source so replays produce identical insights.
func InsightID(sourceID string) uuid.UUID {
	return uuid.NewSHA1(insightNamespace, []byte(sourceID))
}

func DigestSourceID(date time.Time) string {
	return "digest:" + FormatDate(date)
}

func (i Insight) HasAlerts() bool {
	return len(i.Alerts) > 0
}

// WithAlerts returns a copy of the insight carrying alerts.
func (i Insight) WithAlerts(alerts []Alert) Insight {
	copied := i
	copied.Alerts = append([]Alert{}, alerts...)
	return copied
}

// Date is the summary date this insight belongs to.
func (i Insight) Date() time.Time {
	return DateOf(i.WindowEnd)
}
