package models

import (
	"strings"

	"gorm.io/gorm"
)

const DefaultLocale = "en-US"

type UserPreferences struct {
	BaseUUIDModel
	UserID             string           `gorm:"type:text;not null;uniqueIndex:idx_user_preferences_user" json:"userId"`
	ChannelAddress     string           `gorm:"type:text"                                                json:"channelAddress"`
	AlertSensitivity   Level            `gorm:"type:text;default:'moderate'"                             json:"alertSensitivity"`
	CategoryThresholds map[string]Level `gorm:"type:jsonb;serializer:json"                               json:"categoryThresholds,omitempty"`
	Locale             string           `gorm:"type:text;default:'en-US'"                                json:"locale"`
	DigestOptIn        bool             `gorm:"type:bool;default:false;index"                            json:"digestOptIn"`
}

func (up *UserPreferences) BeforeCreate(tx *gorm.DB) error {
	if up.UserID == "" {
		return gorm.ErrInvalidValue
	}

	if up.AlertSensitivity == "" {
		up.AlertSensitivity = LevelModerate
	}

	if up.Locale == "" {
		up.Locale = DefaultLocale
	}

	return up.BaseUUIDModel.BeforeCreate(tx)
}

// DefaultPreferences is used for users that never configured anything: no
// channel, moderate sensitivity.
func DefaultPreferences(userID string) UserPreferences {
	return UserPreferences{
		UserID:           userID,
		AlertSensitivity: LevelModerate,
		Locale:           DefaultLocale,
	}
}

func (up UserPreferences) HasChannel() bool {
	return strings.TrimSpace(up.ChannelAddress) != ""
}

// ThresholdFor returns the level at which a finding in category raises an alert.
func (up UserPreferences) ThresholdFor(category string) Level {
	if threshold, ok := up.CategoryThresholds[category]; ok && threshold != "" {
		return threshold
	}
	if up.AlertSensitivity == "" {
		return LevelModerate
	}
	return up.AlertSensitivity
}

// ActiveUser is one entry of the schedule fan-out.
type ActiveUser struct {
	UserID         string `json:"userId"`
	ChannelAddress string `json:"channelAddress"`
}
