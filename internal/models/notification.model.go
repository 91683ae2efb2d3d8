package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type NotificationStatus string

const (
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
	NotificationStatusSkipped NotificationStatus = "skipped"
)

// NotificationRequest is consumed by the external notification channel.
type NotificationRequest struct {
	UserID        string    `json:"userId"`
	Date          time.Time `json:"date"`
	Trigger       Trigger   `json:"trigger"`
	Address       string    `json:"address"`
	Content       string    `json:"content"`
	CorrelationID string    `json:"correlationId"`
	Force         bool      `json:"force,omitempty"`
}

func CorrelationID(userID string, date time.Time, trigger Trigger) string {
	return fmt.Sprintf("%s:%s:%s", userID, FormatDate(date), trigger)
}

// NotificationLog records every dispatch decision for a (user, date).
type NotificationLog struct {
	BaseUUIDModel
	UserID        string             `gorm:"type:text;not null;index:idx_notification_logs_user_date,composite:0" json:"userId"`
	Date          time.Time          `gorm:"type:date;not null;index:idx_notification_logs_user_date,composite:1" json:"date"`
	CorrelationID string             `gorm:"type:text;not null;index"                                             json:"correlationId"`
	Address       string             `gorm:"type:text"                                                            json:"address"`
	Status        NotificationStatus `gorm:"type:text;not null"                                                   json:"status"`
	Attempts      int                `gorm:"type:int;default:0"                                                   json:"attempts"`
	ErrorMessage  *string            `gorm:"type:text"                                                            json:"errorMessage,omitempty"`
}

func (n *NotificationLog) BeforeCreate(tx *gorm.DB) error {
	if n.CorrelationID == "" || n.Status == "" {
		return gorm.ErrInvalidValue
	}
	return n.BaseUUIDModel.BeforeCreate(tx)
}
