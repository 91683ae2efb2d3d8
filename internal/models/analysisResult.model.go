package models

import (
	"time"

	"gorm.io/gorm"
)

type AnalysisStatus string

const (
	AnalysisStatusPending   AnalysisStatus = "pending"
	AnalysisStatusCompleted AnalysisStatus = "completed"
	AnalysisStatusFailed    AnalysisStatus = "failed"
)

// Findings maps a finding category to its reported value, e.g. "sodium" -> "high"
// or "sodium_mg" -> "2600".
type Findings map[string]string

type AnalysisResult struct {
	BaseUUIDModel
	ArtifactRef string         `gorm:"type:text;not null;uniqueIndex:idx_analysis_results_artifact" json:"artifactRef"`
	UserID      string         `gorm:"type:text;not null;index"                                     json:"userId"`
	Kind        ArtifactKind   `gorm:"type:text;not null"                                           json:"kind"`
	Status      AnalysisStatus `gorm:"type:text;default:'pending';index"                            json:"status"`
	Findings    Findings       `gorm:"type:jsonb;serializer:json"                                   json:"findings"`
	Summary     string         `gorm:"type:text"                                                    json:"summary,omitempty"`
	ErrorDetail *string        `gorm:"type:text"                                                    json:"errorDetail,omitempty"`
	Retryable   bool           `gorm:"type:bool;default:false"                                      json:"retryable"`
	Attempts    int            `gorm:"type:int;default:0"                                           json:"attempts"`
	CompletedAt *time.Time     `gorm:"type:timestamp"                                               json:"completedAt,omitempty"`
}

func (r *AnalysisResult) BeforeCreate(tx *gorm.DB) error {
	if r.ArtifactRef == "" {
		return gorm.ErrInvalidValue
	}
	if r.Status == "" {
		r.Status = AnalysisStatusPending
	}
	return r.BaseUUIDModel.BeforeCreate(tx)
}

func NewPendingAnalysis(event UploadEvent) *AnalysisResult {
	return &AnalysisResult{
		ArtifactRef: event.ArtifactRef,
		UserID:      event.UserID,
		Kind:        event.Kind,
		Status:      AnalysisStatusPending,
	}
}

func (r *AnalysisResult) Complete(findings Findings, summary string, at time.Time) {
	if findings == nil {
		findings = Findings{}
	}
	r.Status = AnalysisStatusCompleted
	r.Findings = findings
	r.Summary = summary
	r.ErrorDetail = nil
	r.Retryable = false
	r.CompletedAt = &at
}

func (r *AnalysisResult) Fail(detail string, retryable bool) {
	r.Status = AnalysisStatusFailed
	r.ErrorDetail = &detail
	r.Retryable = retryable
	r.Findings = nil
}

func (r *AnalysisResult) IsCompleted() bool {
	return r.Status == AnalysisStatusCompleted
}

func (r *AnalysisResult) ErrorMessage() string {
	if r.ErrorDetail == nil {
		return ""
	}
	return *r.ErrorDetail
}
