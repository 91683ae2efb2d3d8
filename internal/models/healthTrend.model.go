package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendWorsening TrendDirection = "worsening"
	TrendStable    TrendDirection = "stable"
)

// CategoryTrend compares the mean level rank of one category in the older
// and newer halves of a trend window.
type CategoryTrend struct {
	Direction    TrendDirection  `json:"direction"`
	EarlyMean    decimal.Decimal `json:"earlyMean"`
	LateMean     decimal.Decimal `json:"lateMean"`
	Peak         Level           `json:"peak"`
	ElevatedDays int             `json:"elevatedDays"`
}

// HealthTrend is the weekly longitudinal record for a user. One row exists
// per (user, as-of date); rerunning a week overwrites it.
type HealthTrend struct {
	BaseUUIDModel
	UserID          string                                       `gorm:"type:text;not null;uniqueIndex:idx_health_trends_user_as_of,priority:1" json:"userId"`
	AsOf            time.Time                                    `gorm:"type:date;not null;uniqueIndex:idx_health_trends_user_as_of,priority:2" json:"asOf"`
	WindowStart     time.Time                                    `gorm:"type:date;not null"                                                     json:"windowStart"`
	WindowEnd       time.Time                                    `gorm:"type:date;not null"                                                     json:"windowEnd"`
	DataPoints      int                                          `gorm:"type:int;not null"                                                      json:"dataPoints"`
	ActiveDays      int                                          `gorm:"type:int;not null"                                                      json:"activeDays"`
	Categories      datatypes.JSONType[map[string]CategoryTrend] `gorm:"type:jsonb"                                                             json:"categories"`
	Recommendations pq.StringArray                               `gorm:"type:text[]"                                                            json:"recommendations"`
}

func (t *HealthTrend) BeforeCreate(tx *gorm.DB) error {
	if t.UserID == "" || t.AsOf.IsZero() {
		return gorm.ErrInvalidValue
	}
	return t.BaseUUIDModel.BeforeCreate(tx)
}

func (t *HealthTrend) Trends() map[string]CategoryTrend {
	return t.Categories.Data()
}
