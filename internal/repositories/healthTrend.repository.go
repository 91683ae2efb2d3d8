package repositories

import (
	"context"

	"healthcompanion/internal/database"
	. "healthcompanion/internal/models"

	logger "github.com/Bparsons0904/goLogger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type HealthTrendRepository interface {
	// Save inserts the trend or replaces the stored one for the same
	// (user, as-of date).
	Save(ctx context.Context, trend *HealthTrend) error
	Latest(ctx context.Context, userID string) (*HealthTrend, error)
}

type healthTrendRepository struct {
	db  database.DB
	log logger.Logger
}

func NewHealthTrendRepository(db database.DB) HealthTrendRepository {
	return &healthTrendRepository{
		db:  db,
		log: logger.New("healthTrendRepository"),
	}
}

func (r *healthTrendRepository) Save(ctx context.Context, trend *HealthTrend) error {
	log := r.log.Function("Save")

	err := r.db.SQLWithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "as_of"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"window_start",
				"window_end",
				"data_points",
				"active_days",
				"categories",
				"recommendations",
				"updated_at",
			}),
		}).
		Create(trend).
		Error
	if err != nil {
		return log.Err("failed to save health trend", err,
			"userID", trend.UserID,
			"asOf", FormatDate(trend.AsOf))
	}
	return nil
}

func (r *healthTrendRepository) Latest(ctx context.Context, userID string) (*HealthTrend, error) {
	trend, err := gorm.G[*HealthTrend](r.db.SQL).
		Where("user_id = ?", userID).
		Order("as_of DESC").
		First(ctx)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return trend, nil
}
