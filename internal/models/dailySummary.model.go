package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DailySummary is the single aggregation point per (user, date). Version is
// bumped by every successful compare-and-swap write.
type DailySummary struct {
	BaseUUIDModel
	UserID           string                        `gorm:"type:text;not null;uniqueIndex:idx_daily_summaries_user_date,priority:1" json:"userId"`
	Date             time.Time                     `gorm:"type:date;not null;uniqueIndex:idx_daily_summaries_user_date,priority:2" json:"date"`
	Version          int                           `gorm:"type:int;not null;default:1"                                             json:"version"`
	AnalysisRefs     pq.StringArray                `gorm:"type:text[]"                                                             json:"analysisRefs"`
	Entries          datatypes.JSONType[[]Insight] `gorm:"type:jsonb"                                                              json:"entries"`
	NotificationSent bool                          `gorm:"type:bool;default:false"                                                 json:"notificationSent"`
	NotifiedAt       *time.Time                    `gorm:"type:timestamp"                                                          json:"notifiedAt,omitempty"`
}

func (s *DailySummary) BeforeCreate(tx *gorm.DB) error {
	if s.UserID == "" || s.Date.IsZero() {
		return gorm.ErrInvalidValue
	}
	if s.Version == 0 {
		s.Version = 1
	}
	return s.BaseUUIDModel.BeforeCreate(tx)
}

func NewDailySummary(userID string, date time.Time) *DailySummary {
	return &DailySummary{
		UserID:       userID,
		Date:         DateOf(date),
		AnalysisRefs: pq.StringArray{},
		Entries:      datatypes.NewJSONType([]Insight{}),
	}
}

func SummaryKey(userID string, date time.Time) string {
	return fmt.Sprintf("%s:%s", userID, FormatDate(date))
}

func (s *DailySummary) Key() string {
	return SummaryKey(s.UserID, s.Date)
}

func (s *DailySummary) Insights() []Insight {
	return s.Entries.Data()
}

func (s *DailySummary) SetInsights(insights []Insight) {
	s.Entries = datatypes.NewJSONType(insights)
}

func (s *DailySummary) Insight(sourceID string) (Insight, bool) {
	for _, insight := range s.Insights() {
		if insight.SourceID == sourceID {
			return insight, true
		}
	}
	return Insight{}, false
}

func (s *DailySummary) AlertCount() int {
	count := 0
	for _, insight := range s.Insights() {
		count += len(insight.Alerts)
	}
	return count
}

// Clone returns a deep copy so merges never alias stored state.
func (s *DailySummary) Clone() *DailySummary {
	if s == nil {
		return nil
	}
	copied := *s
	copied.AnalysisRefs = slices.Clone(s.AnalysisRefs)
	insights := make([]Insight, 0, len(s.Insights()))
	for _, insight := range s.Insights() {
		insight.Recommendations = slices.Clone(insight.Recommendations)
		insight.Alerts = slices.Clone(insight.Alerts)
		if insight.Findings != nil {
			findings := make(Findings, len(insight.Findings))
			for k, v := range insight.Findings {
				findings[k] = v
			}
			insight.Findings = findings
		}
		insights = append(insights, insight)
	}
	copied.SetInsights(insights)
	if s.NotifiedAt != nil {
		notifiedAt := *s.NotifiedAt
		copied.NotifiedAt = &notifiedAt
	}
	return &copied
}
