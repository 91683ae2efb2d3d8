package repositories

import (
	"context"
	"errors"
	"time"

	"healthcompanion/internal/database"
	. "healthcompanion/internal/models"

	logger "github.com/Bparsons0904/goLogger"
	"gorm.io/gorm"
)

type DailySummaryRepository interface {
	Get(ctx context.Context, userID string, date time.Time) (*DailySummary, error)
	// Create returns ErrVersionConflict when another writer created the
	// (user, date) row first.
	Create(ctx context.Context, summary *DailySummary) error
	// CompareAndSwap persists summary only if the stored version still equals
	// expectedVersion. On success summary.Version is advanced.
	CompareAndSwap(ctx context.Context, summary *DailySummary, expectedVersion int) error
	// ListRange returns the user's summaries with from <= date < to, oldest first.
	ListRange(ctx context.Context, userID string, from, to time.Time) ([]*DailySummary, error)
}

type dailySummaryRepository struct {
	db  database.DB
	log logger.Logger
}

func NewDailySummaryRepository(db database.DB) DailySummaryRepository {
	return &dailySummaryRepository{
		db:  db,
		log: logger.New("dailySummaryRepository"),
	}
}

func (r *dailySummaryRepository) Get(
	ctx context.Context,
	userID string,
	date time.Time,
) (*DailySummary, error) {
	summary, err := gorm.G[*DailySummary](r.db.SQL).
		Where("user_id = ? AND date = ?", userID, DateOf(date)).
		First(ctx)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return summary, nil
}

func (r *dailySummaryRepository) Create(ctx context.Context, summary *DailySummary) error {
	log := r.log.Function("Create")

	err := r.db.SQLWithContext(ctx).Create(summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrVersionConflict
		}
		return log.Err("failed to create daily summary", err, "key", summary.Key())
	}
	return nil
}

func (r *dailySummaryRepository) CompareAndSwap(
	ctx context.Context,
	summary *DailySummary,
	expectedVersion int,
) error {
	log := r.log.Function("CompareAndSwap")

	nextVersion := expectedVersion + 1
	result := r.db.SQLWithContext(ctx).
		Model(&DailySummary{}).
		Where("id = ? AND version = ?", summary.ID, expectedVersion).
		Updates(map[string]any{
			"version":           nextVersion,
			"analysis_refs":     summary.AnalysisRefs,
			"entries":           summary.Entries,
			"notification_sent": summary.NotificationSent,
			"notified_at":       summary.NotifiedAt,
		})
	if result.Error != nil {
		return log.Err("failed to update daily summary", result.Error, "key", summary.Key())
	}

	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	summary.Version = nextVersion
	return nil
}

func (r *dailySummaryRepository) ListRange(
	ctx context.Context,
	userID string,
	from, to time.Time,
) ([]*DailySummary, error) {
	log := r.log.Function("ListRange")

	var summaries []*DailySummary
	err := r.db.SQLWithContext(ctx).
		Where("user_id = ? AND date >= ? AND date < ?", userID, DateOf(from), DateOf(to)).
		Order("date ASC").
		Find(&summaries).
		Error
	if err != nil {
		return nil, log.Err("failed to list daily summaries", err, "userID", userID)
	}
	return summaries, nil
}
