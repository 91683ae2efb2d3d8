package repositories

import (
	"context"
	"time"

	"healthcompanion/internal/database"
	. "healthcompanion/internal/models"

	logger "github.com/Bparsons0904/goLogger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UploadEventRepository interface {
	// Record inserts the event unless its artifact was already seen and
	// reports whether it was new.
	Record(ctx context.Context, tx *gorm.DB, event *UploadEvent) (bool, error)
	GetByArtifact(ctx context.Context, artifactRef string) (*UploadEvent, error)
	MarkStatus(ctx context.Context, artifactRef string, status UploadStatus, detail *string) error
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*UploadEvent, error)
	ListActiveUserIDs(ctx context.Context, since time.Time) ([]string, error)
}

type uploadEventRepository struct {
	db  database.DB
	log logger.Logger
}

func NewUploadEventRepository(db database.DB) UploadEventRepository {
	return &uploadEventRepository{
		db:  db,
		log: logger.New("uploadEventRepository"),
	}
}

func (r *uploadEventRepository) Record(
	ctx context.Context,
	tx *gorm.DB,
	event *UploadEvent,
) (bool, error) {
	log := r.log.Function("Record")

	result := conn(r.db, tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "artifact_ref"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return false, log.Err("failed to record upload event", result.Error, "artifactRef", event.ArtifactRef)
	}

	return result.RowsAffected == 1, nil
}

func (r *uploadEventRepository) GetByArtifact(ctx context.Context, artifactRef string) (*UploadEvent, error) {
	event, err := gorm.G[*UploadEvent](r.db.SQL).
		Where("artifact_ref = ?", artifactRef).
		First(ctx)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return event, nil
}

func (r *uploadEventRepository) MarkStatus(
	ctx context.Context,
	artifactRef string,
	status UploadStatus,
	detail *string,
) error {
	log := r.log.Function("MarkStatus")

	err := r.db.SQLWithContext(ctx).
		Model(&UploadEvent{}).
		Where("artifact_ref = ?", artifactRef).
		Updates(map[string]any{"status": status, "error_detail": detail}).
		Error
	if err != nil {
		return log.Err("failed to mark upload status", err, "artifactRef", artifactRef, "status", status)
	}
	return nil
}

// ListPending returns uploads that never left the received state and arrived
// before olderThan, oldest first.
func (r *uploadEventRepository) ListPending(
	ctx context.Context,
	olderThan time.Time,
	limit int,
) ([]*UploadEvent, error) {
	log := r.log.Function("ListPending")

	var events []*UploadEvent
	err := r.db.SQLWithContext(ctx).
		Where("status = ? AND arrived_at < ?", UploadStatusReceived, olderThan).
		Order("arrived_at ASC").
		Limit(limit).
		Find(&events).
		Error
	if err != nil {
		return nil, log.Err("failed to list pending uploads", err)
	}
	return events, nil
}

func (r *uploadEventRepository) ListActiveUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	log := r.log.Function("ListActiveUserIDs")

	var userIDs []string
	err := r.db.SQLWithContext(ctx).
		Model(&UploadEvent{}).
		Distinct("user_id").
		Where("arrived_at >= ?", since).
		Order("user_id").
		Pluck("user_id", &userIDs).
		Error
	if err != nil {
		return nil, log.Err("failed to list active users", err, "since", since)
	}
	return userIDs, nil
}
