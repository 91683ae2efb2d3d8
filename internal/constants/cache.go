package constants

import "time"

const (
	UserPreferencesCachePrefix = "user_preferences" // CacheBuilder adds colon
	UserPreferencesCacheExpiry = time.Hour
	DigestTickLockPrefix       = "digest_tick" // one key per digest date
	DigestTickLockExpiry       = 23 * time.Hour
	NotificationQueue          = "health-notifications"
)
