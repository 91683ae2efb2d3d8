package repositories

import (
	"context"

	"healthcompanion/internal/database"
	. "healthcompanion/internal/models"

	logger "github.com/Bparsons0904/goLogger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnalysisResultRepository interface {
	GetByArtifact(ctx context.Context, artifactRef string) (*AnalysisResult, error)
	// CreatePending inserts a pending row unless one already exists for the
	// artifact and reports whether it was inserted.
	CreatePending(ctx context.Context, tx *gorm.DB, result *AnalysisResult) (bool, error)
	Save(ctx context.Context, result *AnalysisResult) error
}

type analysisResultRepository struct {
	db  database.DB
	log logger.Logger
}

func NewAnalysisResultRepository(db database.DB) AnalysisResultRepository {
	return &analysisResultRepository{
		db:  db,
		log: logger.New("analysisResultRepository"),
	}
}

func (r *analysisResultRepository) GetByArtifact(
	ctx context.Context,
	artifactRef string,
) (*AnalysisResult, error) {
	result, err := gorm.G[*AnalysisResult](r.db.SQL).
		Where("artifact_ref = ?", artifactRef).
		First(ctx)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return result, nil
}

func (r *analysisResultRepository) CreatePending(
	ctx context.Context,
	tx *gorm.DB,
	result *AnalysisResult,
) (bool, error) {
	log := r.log.Function("CreatePending")

	created := conn(r.db, tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "artifact_ref"}},
			DoNothing: true,
		}).
		Create(result)
	if created.Error != nil {
		return false, log.Err("failed to create pending analysis", created.Error, "artifactRef", result.ArtifactRef)
	}
	return created.RowsAffected == 1, nil
}

func (r *analysisResultRepository) Save(ctx context.Context, result *AnalysisResult) error {
	log := r.log.Function("Save")

	if err := r.db.SQLWithContext(ctx).Save(result).Error; err != nil {
		return log.Err("failed to save analysis result", err, "artifactRef", result.ArtifactRef, "status", result.Status)
	}
	return nil
}
