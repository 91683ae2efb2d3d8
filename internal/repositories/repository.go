package repositories

import (
	"errors"

	"healthcompanion/internal/database"

	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("daily summary version conflict")
)

type Repository struct {
	UploadEvent     UploadEventRepository
	AnalysisResult  AnalysisResultRepository
	UserPreferences UserPreferencesRepository
	DailySummary    DailySummaryRepository
	NotificationLog NotificationLogRepository
	HealthTrend     HealthTrendRepository
}

func New(db database.DB) Repository {
	return Repository{
		UploadEvent:     NewUploadEventRepository(db),
		AnalysisResult:  NewAnalysisResultRepository(db),
		UserPreferences: NewUserPreferencesRepository(db),
		DailySummary:    NewDailySummaryRepository(db),
		NotificationLog: NewNotificationLogRepository(db),
		HealthTrend:     NewHealthTrendRepository(db),
	}
}

// conn prefers the caller's transaction when one is in flight.
func conn(db database.DB, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db.SQL
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
