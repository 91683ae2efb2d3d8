package seed

import (
	"healthcompanion/internal/models"

	logger "github.com/Bparsons0904/goLogger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Seed writes preferences for a few development users so the digest and
// notification paths have something to act on.
func Seed(db *gorm.DB, log logger.Logger) error {
	log = log.Function("seed")
	log.Info("Seeding development data")

	preferences := []models.UserPreferences{
		{
			UserID:           "demo-user",
			ChannelAddress:   "demo-user@example.com",
			AlertSensitivity: models.LevelModerate,
			DigestOptIn:      true,
		},
		{
			UserID:           "sensitive-user",
			ChannelAddress:   "sensitive-user@example.com",
			AlertSensitivity: models.LevelLow,
			CategoryThresholds: map[string]models.Level{
				"sodium": models.LevelLow,
				"sugar":  models.LevelLow,
			},
		},
		{
			UserID:           "quiet-user",
			AlertSensitivity: models.LevelHigh,
		},
	}

	for _, prefs := range preferences {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&prefs).Error
		if err != nil {
			return log.Err("failed to seed preferences", err, "userID", prefs.UserID)
		}
	}

	log.Info("Seeded user preferences", "count", len(preferences))
	return nil
}
