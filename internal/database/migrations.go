package database

import (
	"healthcompanion/internal/models"

	logger "github.com/Bparsons0904/goLogger"
)

// MigrationModels lists every table owned by the pipeline.
func MigrationModels() []any {
	return []any{
		&models.UploadEvent{},
		&models.AnalysisResult{},
		&models.UserPreferences{},
		&models.DailySummary{},
		&models.NotificationLog{},
		&models.HealthTrend{},
	}
}

// MigrateModels runs GORM AutoMigrate for all models
func (db *DB) MigrateModels() error {
	log := logger.New("database").Function("MigrateModels")
	log.Info("Starting database migration")

	for _, model := range MigrationModels() {
		if err := db.SQL.AutoMigrate(model); err != nil {
			return log.Err("Failed to migrate model", err, "model", model)
		}
	}

	log.Info("Database migration completed successfully")
	return nil
}

// CreateIndexes creates indexes GORM cannot express through struct tags.
func (db *DB) CreateIndexes() error {
	log := logger.New("database").Function("CreateIndexes")
	log.Info("Creating additional database indexes")

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_upload_events_pending ON upload_events(arrived_at) WHERE status = 'received'",
		"CREATE INDEX IF NOT EXISTS idx_daily_summaries_date ON daily_summaries(date DESC)",
		"CREATE INDEX IF NOT EXISTS idx_health_trends_as_of ON health_trends(as_of DESC)",
	}

	for _, indexSQL := range indexes {
		if err := db.SQL.Exec(indexSQL).Error; err != nil {
			log.Warn("Failed to create index", "sql", indexSQL, "error", err)
		}
	}

	log.Info("Additional database indexes created")
	return nil
}
