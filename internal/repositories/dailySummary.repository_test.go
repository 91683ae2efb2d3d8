package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"healthcompanion/internal/database"
	"healthcompanion/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (database.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), database.GormConfig())
	if err != nil {
		t.Fatalf("failed to open gorm db: %v", err)
	}

	return database.DB{SQL: gormDB}, mock
}

func testSummary() *models.DailySummary {
	summary := models.NewDailySummary("u1", time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	summary.ID = uuid.New()
	summary.Version = 3
	summary.AnalysisRefs = append(summary.AnalysisRefs, "u1/lunch.jpg")
	summary.SetInsights([]models.Insight{{SourceID: "u1/lunch.jpg", UserID: "u1"}})
	return summary
}

func TestDailySummaryRepository_CompareAndSwap_Success(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewDailySummaryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "daily_summaries" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	summary := testSummary()
	err := repo.CompareAndSwap(context.Background(), summary, 3)

	require.NoError(t, err)
	assert.Equal(t, 4, summary.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailySummaryRepository_CompareAndSwap_StaleVersion(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewDailySummaryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "daily_summaries" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	summary := testSummary()
	err := repo.CompareAndSwap(context.Background(), summary, 3)

	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 3, summary.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailySummaryRepository_CompareAndSwap_DatabaseError(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewDailySummaryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "daily_summaries" SET`)).
		WillReturnError(errors.New("connection reset"))

	err := repo.CompareAndSwap(context.Background(), testSummary(), 3)

	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrVersionConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailySummaryRepository_Get_NotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewDailySummaryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "daily_summaries"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "date", "version"}))

	summary, err := repo.Get(context.Background(), "u1", time.Now())

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadEventRepository_ListActiveUserIDs(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewUploadEventRepository(db)

	mock.ExpectQuery(`SELECT DISTINCT .*user_id.* FROM "upload_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1").AddRow("u2"))

	userIDs, err := repo.ListActiveUserIDs(context.Background(), time.Now().AddDate(0, 0, -30))

	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, userIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserPreferencesRepository_ListByUserIDs_Empty(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewUserPreferencesRepository(db)

	prefs, err := repo.ListByUserIDs(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, prefs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
