package repositories

import (
	"context"
	"time"

	"healthcompanion/internal/database"
	. "healthcompanion/internal/models"

	logger "github.com/Bparsons0904/goLogger"
)

type NotificationLogRepository interface {
	Record(ctx context.Context, entry *NotificationLog) error
	ListByUserDate(ctx context.Context, userID string, date time.Time) ([]*NotificationLog, error)
}

type notificationLogRepository struct {
	db  database.DB
	log logger.Logger
}

func NewNotificationLogRepository(db database.DB) NotificationLogRepository {
	return &notificationLogRepository{
		db:  db,
		log: logger.New("notificationLogRepository"),
	}
}

func (r *notificationLogRepository) Record(ctx context.Context, entry *NotificationLog) error {
	log := r.log.Function("Record")

	if err := r.db.SQLWithContext(ctx).Create(entry).Error; err != nil {
		return log.Err("failed to record notification", err, "correlationID", entry.CorrelationID)
	}
	return nil
}

func (r *notificationLogRepository) ListByUserDate(
	ctx context.Context,
	userID string,
	date time.Time,
) ([]*NotificationLog, error) {
	log := r.log.Function("ListByUserDate")

	var entries []*NotificationLog
	err := r.db.SQLWithContext(ctx).
		Where("user_id = ? AND date = ?", userID, DateOf(date)).
		Order("created_at ASC").
		Find(&entries).
		Error
	if err != nil {
		return nil, log.Err("failed to list notifications", err, "userID", userID)
	}
	return entries, nil
}
