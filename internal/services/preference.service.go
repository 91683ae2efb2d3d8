package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthcompanion/internal/models"
	"healthcompanion/internal/repositories"

	logger "github.com/Bparsons0904/goLogger"
)

type PreferenceService struct {
	preferences  repositories.UserPreferencesRepository
	uploads      repositories.UploadEventRepository
	lookbackDays int
	log          logger.Logger
}

func NewPreferenceService(
	preferences repositories.UserPreferencesRepository,
	uploads repositories.UploadEventRepository,
	lookbackDays int,
) *PreferenceService {
	return &PreferenceService{
		preferences:  preferences,
		uploads:      uploads,
		lookbackDays: lookbackDays,
		log:          logger.New("preferenceService"),
	}
}

// GetUserPreferences is a pure read. Users that never saved preferences get
// the defaults, which carry no channel.
func (s *PreferenceService) GetUserPreferences(ctx context.Context, userID string) (models.UserPreferences, error) {
	log := s.log.TraceFromContext(ctx).Function("GetUserPreferences")

	prefs, err := s.preferences.GetByUserID(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.DefaultPreferences(userID), nil
	}
	if err != nil {
		return models.UserPreferences{}, Transient(log.Err("failed to load preferences", err, "userID", userID))
	}

	resolved := *prefs
	if resolved.AlertSensitivity == "" {
		resolved.AlertSensitivity = models.LevelModerate
	}
	return resolved, nil
}

// ListActiveUsers returns every user with an upload inside the lookback
// window or an explicit digest opt-in, sorted by user id.
func (s *PreferenceService) ListActiveUsers(ctx context.Context, asOf time.Time) ([]models.ActiveUser, error) {
	log := s.log.TraceFromContext(ctx).Function("ListActiveUsers")

	since := models.DateOf(asOf).AddDate(0, 0, -s.lookbackDays)
	uploaders, err := s.uploads.ListActiveUserIDs(ctx, since)
	if err != nil {
		return nil, Transient(fmt.Errorf("%w: %w", ErrActiveUsersUnavailable,
			log.Err("failed to list recent uploaders", err, "since", since)))
	}

	optedIn, err := s.preferences.ListDigestOptIn(ctx)
	if err != nil {
		return nil, Transient(fmt.Errorf("%w: %w", ErrActiveUsersUnavailable,
			log.Err("failed to list digest opt-ins", err)))
	}

	ids := make(map[string]bool, len(uploaders)+len(optedIn))
	for _, id := range uploaders {
		ids[id] = true
	}
	for _, id := range optedIn {
		ids[id] = true
	}
	userIDs := sortedKeys(ids)
	if len(userIDs) == 0 {
		return []models.ActiveUser{}, nil
	}

	prefs, err := s.preferences.ListByUserIDs(ctx, userIDs)
	if err != nil {
		return nil, Transient(fmt.Errorf("%w: %w", ErrActiveUsersUnavailable,
			log.Err("failed to load channels", err, "users", len(userIDs))))
	}
	channels := make(map[string]string, len(prefs))
	for _, p := range prefs {
		channels[p.UserID] = p.ChannelAddress
	}

	users := make([]models.ActiveUser, 0, len(userIDs))
	for _, id := range userIDs {
		users = append(users, models.ActiveUser{UserID: id, ChannelAddress: channels[id]})
	}

	log.Info("active users resolved", "count", len(users), "since", since)
	return users, nil
}

// SavePreferences validates and stores a user's preferences.
func (s *PreferenceService) SavePreferences(ctx context.Context, prefs *models.UserPreferences) error {
	log := s.log.TraceFromContext(ctx).Function("SavePreferences")

	if prefs.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidPreferences)
	}
	if prefs.AlertSensitivity == "" {
		prefs.AlertSensitivity = models.LevelModerate
	}
	if !prefs.AlertSensitivity.Valid() {
		return fmt.Errorf("%w: unknown sensitivity %q", ErrInvalidPreferences, prefs.AlertSensitivity)
	}
	for category, level := range prefs.CategoryThresholds {
		if !level.Valid() {
			return fmt.Errorf("%w: unknown threshold %q for %s", ErrInvalidPreferences, level, category)
		}
	}
	if prefs.Locale == "" {
		prefs.Locale = models.DefaultLocale
	}

	if err := s.preferences.Upsert(ctx, prefs); err != nil {
		return log.Err("failed to save preferences", err, "userID", prefs.UserID)
	}
	return nil
}
