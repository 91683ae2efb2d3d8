package models

import (
	"errors"
	"path"
	"strings"
	"time"

	"gorm.io/gorm"
)

type ArtifactKind string

const (
	ArtifactKindFoodImage       ArtifactKind = "food-image"
	ArtifactKindMedicalDocument ArtifactKind = "medical-document"
	ArtifactKindUnknown         ArtifactKind = "unknown"
)

type UploadStatus string

const (
	UploadStatusReceived  UploadStatus = "received"
	UploadStatusProcessed UploadStatus = "processed"
	UploadStatusFailed    UploadStatus = "failed"
)

var (
	ErrInvalidArtifactPath = errors.New("artifact path must be {userId}/{filename}")
	ErrArtifactOwner       = errors.New("artifact path does not belong to user")
)

var kindByExtension = map[string]ArtifactKind{
	".jpg":  ArtifactKindFoodImage,
	".jpeg": ArtifactKindFoodImage,
	".png":  ArtifactKindFoodImage,
	".heic": ArtifactKindFoodImage,
	".webp": ArtifactKindFoodImage,
	".pdf":  ArtifactKindMedicalDocument,
	".tif":  ArtifactKindMedicalDocument,
	".tiff": ArtifactKindMedicalDocument,
}

type UploadEvent struct {
	BaseUUIDModel
	ArtifactRef string       `gorm:"type:text;not null;uniqueIndex:idx_upload_events_artifact"            json:"artifactRef"`
	UserID      string       `gorm:"type:text;not null;index:idx_upload_events_user_arrived,composite:0"  json:"userId"`
	Kind        ArtifactKind `gorm:"type:text;not null"                                                   json:"kind"`
	ArrivedAt   time.Time    `gorm:"type:timestamp;not null;index:idx_upload_events_user_arrived,composite:1" json:"arrivedAt"`
	Status      UploadStatus `gorm:"type:text;default:'received';index"                                   json:"status"`
	ErrorDetail *string      `gorm:"type:text"                                                            json:"errorDetail,omitempty"`
}

func (e *UploadEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ArtifactRef == "" || e.UserID == "" {
		return gorm.ErrInvalidValue
	}
	if e.Status == "" {
		e.Status = UploadStatusReceived
	}
	return e.BaseUUIDModel.BeforeCreate(tx)
}

// Date is the aggregation key date for this upload.
func (e UploadEvent) Date() time.Time {
	return DateOf(e.ArrivedAt)
}

func KindFromFilename(filename string) ArtifactKind {
	if kind, ok := kindByExtension[strings.ToLower(path.Ext(filename))]; ok {
		return kind
	}
	return ArtifactKindUnknown
}

// UploadEventFromPath builds an event from an upload-completion notification.
// The first path segment of artifactPath names the owning user.
func UploadEventFromPath(artifactPath string, userID string, timestamp time.Time) (*UploadEvent, error) {
	cleaned := strings.TrimPrefix(path.Clean(strings.TrimSpace(artifactPath)), "/")
	owner, filename, found := strings.Cut(cleaned, "/")
	if !found || owner == "" || filename == "" || owner == "." || owner == ".." {
		return nil, ErrInvalidArtifactPath
	}

	if userID == "" {
		userID = owner
	}
	if owner != userID {
		return nil, ErrArtifactOwner
	}

	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return &UploadEvent{
		ArtifactRef: cleaned,
		UserID:      owner,
		Kind:        KindFromFilename(filename),
		ArrivedAt:   timestamp.UTC(),
		Status:      UploadStatusReceived,
	}, nil
}
