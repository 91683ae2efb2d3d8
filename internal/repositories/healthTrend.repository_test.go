package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthTrendRepository_Latest(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewHealthTrendRepository(db)

	asOf := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "user_id", "as_of", "data_points", "active_days"}).
		AddRow(uuid.New().String(), "u1", asOf, 12, 9)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "health_trends"`)).
		WillReturnRows(rows)

	trend, err := repo.Latest(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, "u1", trend.UserID)
	assert.Equal(t, 12, trend.DataPoints)
	assert.True(t, asOf.Equal(trend.AsOf))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthTrendRepository_LatestNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewHealthTrendRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "health_trends"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "as_of"}))

	trend, err := repo.Latest(context.Background(), "u1")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, trend)
	assert.NoError(t, mock.ExpectationsWereMet())
}
