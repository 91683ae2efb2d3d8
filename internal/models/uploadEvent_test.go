package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadEventFromPath(t *testing.T) {
	arrived := time.Date(2026, 10, 19, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))

	tests := []struct {
		name         string
		artifactPath string
		userID       string
		expectedErr  error
		expectedKind ArtifactKind
		expectedRef  string
	}{
		{
			name:         "food image",
			artifactPath: "u1/lunch.JPG",
			userID:       "u1",
			expectedKind: ArtifactKindFoodImage,
			expectedRef:  "u1/lunch.JPG",
		},
		{
			name:         "medical document with leading slash",
			artifactPath: "/u1/labs/panel.pdf",
			userID:       "u1",
			expectedKind: ArtifactKindMedicalDocument,
			expectedRef:  "u1/labs/panel.pdf",
		},
		{
			name:         "owner taken from path when user missing",
			artifactPath: "u2/dinner.png",
			expectedKind: ArtifactKindFoodImage,
			expectedRef:  "u2/dinner.png",
		},
		{
			name:         "unsupported extension still produces event",
			artifactPath: "u1/notes.txt",
			userID:       "u1",
			expectedKind: ArtifactKindUnknown,
			expectedRef:  "u1/notes.txt",
		},
		{
			name:         "no filename",
			artifactPath: "u1",
			userID:       "u1",
			expectedErr:  ErrInvalidArtifactPath,
		},
		{
			name:         "parent directory as owner",
			artifactPath: "../u2/a.jpg",
			expectedErr:  ErrInvalidArtifactPath,
		},
		{
			name:         "parent directory with claimed owner",
			artifactPath: "../u2/a.jpg",
			userID:       "..",
			expectedErr:  ErrInvalidArtifactPath,
		},
		{
			name:         "owner mismatch",
			artifactPath: "u2/lunch.jpg",
			userID:       "u1",
			expectedErr:  ErrArtifactOwner,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := UploadEventFromPath(tt.artifactPath, tt.userID, arrived)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, event)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedKind, event.Kind)
			assert.Equal(t, tt.expectedRef, event.ArtifactRef)
			assert.Equal(t, UploadStatusReceived, event.Status)
			assert.Equal(t, time.UTC, event.ArrivedAt.Location())
		})
	}
}

func TestUploadEvent_DateUsesUTC(t *testing.T) {
	arrived := time.Date(2026, 10, 19, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	event, err := UploadEventFromPath("u1/lunch.jpg", "u1", arrived)
	require.NoError(t, err)

	assert.Equal(t, "2026-10-20", FormatDate(event.Date()))
}

func TestParseDate(t *testing.T) {
	date, err := ParseDate("2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), date)

	_, err = ParseDate("19/10/2026")
	assert.Error(t, err)
}
