package repositories

import (
	"context"

	"healthcompanion/internal/constants"
	"healthcompanion/internal/database"
	. "healthcompanion/internal/models"

	logger "github.com/Bparsons0904/goLogger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserPreferencesRepository interface {
	GetByUserID(ctx context.Context, userID string) (*UserPreferences, error)
	Upsert(ctx context.Context, prefs *UserPreferences) error
	ListDigestOptIn(ctx context.Context) ([]string, error)
	ListByUserIDs(ctx context.Context, userIDs []string) ([]*UserPreferences, error)
}

type userPreferencesRepository struct {
	db  database.DB
	log logger.Logger
}

func NewUserPreferencesRepository(db database.DB) UserPreferencesRepository {
	return &userPreferencesRepository{
		db:  db,
		log: logger.New("userPreferencesRepository"),
	}
}

func (r *userPreferencesRepository) GetByUserID(ctx context.Context, userID string) (*UserPreferences, error) {
	log := r.log.Function("GetByUserID")

	if r.db.Cache.Preferences != nil {
		var cached UserPreferences
		found, err := database.NewCacheBuilder(r.db.Cache.Preferences, userID).
			WithContext(ctx).
			WithHash(constants.UserPreferencesCachePrefix).
			Get(&cached)
		if err != nil {
			log.Warn("failed to get preferences from cache", "userID", userID, "error", err)
		}
		if found {
			return &cached, nil
		}
	}

	prefs, err := gorm.G[*UserPreferences](r.db.SQL).
		Where("user_id = ?", userID).
		First(ctx)
	if err != nil {
		return nil, translateNotFound(err)
	}

	r.cachePreferences(ctx, prefs)
	return prefs, nil
}

func (r *userPreferencesRepository) Upsert(ctx context.Context, prefs *UserPreferences) error {
	log := r.log.Function("Upsert")

	err := r.db.SQLWithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"channel_address",
				"alert_sensitivity",
				"category_thresholds",
				"locale",
				"digest_opt_in",
				"updated_at",
			}),
		}).
		Create(prefs).
		Error
	if err != nil {
		return log.Err("failed to upsert user preferences", err, "userID", prefs.UserID)
	}

	if r.db.Cache.Preferences != nil {
		if err := database.NewCacheBuilder(r.db.Cache.Preferences, prefs.UserID).
			WithContext(ctx).
			WithHash(constants.UserPreferencesCachePrefix).
			Delete(); err != nil {
			log.Warn("failed to clear preferences cache", "userID", prefs.UserID, "error", err)
		}
	}

	return nil
}

func (r *userPreferencesRepository) ListDigestOptIn(ctx context.Context) ([]string, error) {
	log := r.log.Function("ListDigestOptIn")

	var userIDs []string
	err := r.db.SQLWithContext(ctx).
		Model(&UserPreferences{}).
		Where("digest_opt_in = ?", true).
		Order("user_id").
		Pluck("user_id", &userIDs).
		Error
	if err != nil {
		return nil, log.Err("failed to list digest opt-in users", err)
	}
	return userIDs, nil
}

func (r *userPreferencesRepository) ListByUserIDs(
	ctx context.Context,
	userIDs []string,
) ([]*UserPreferences, error) {
	log := r.log.Function("ListByUserIDs")

	if len(userIDs) == 0 {
		return []*UserPreferences{}, nil
	}

	var prefs []*UserPreferences
	err := r.db.SQLWithContext(ctx).
		Where("user_id IN ?", userIDs).
		Find(&prefs).
		Error
	if err != nil {
		return nil, log.Err("failed to list user preferences", err, "count", len(userIDs))
	}
	return prefs, nil
}

func (r *userPreferencesRepository) cachePreferences(ctx context.Context, prefs *UserPreferences) {
	if r.db.Cache.Preferences == nil {
		return
	}

	err := database.NewCacheBuilder(r.db.Cache.Preferences, prefs.UserID).
		WithContext(ctx).
		WithHash(constants.UserPreferencesCachePrefix).
		WithStruct(prefs).
		WithTTL(constants.UserPreferencesCacheExpiry).
		Set()
	if err != nil {
		r.log.Function("cachePreferences").
			Warn("failed to cache preferences", "userID", prefs.UserID, "error", err)
	}
}
