package services

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	logger "github.com/Bparsons0904/goLogger"
)

var mimeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".heic": "image/heic",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// ArtifactStore reads uploaded artifacts by their reference.
type ArtifactStore interface {
	Read(ctx context.Context, artifactRef string) ([]byte, string, error)
}

// FileArtifactStore serves artifacts from a directory laid out as
// {root}/{userId}/{filename}.
type FileArtifactStore struct {
	root string
	log  logger.Logger
}

func NewFileArtifactStore(root string) *FileArtifactStore {
	return &FileArtifactStore{
		root: root,
		log:  logger.New("fileArtifactStore"),
	}
}

func (s *FileArtifactStore) Read(ctx context.Context, artifactRef string) ([]byte, string, error) {
	log := s.log.TraceFromContext(ctx).Function("Read")

	if err := ctx.Err(); err != nil {
		return nil, "", Transient(err)
	}

	cleaned := path.Clean("/" + artifactRef)
	fullPath := filepath.Join(s.root, filepath.FromSlash(cleaned))
	rel, err := filepath.Rel(s.root, fullPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil, "", log.Err("artifact path escapes store root", ErrInvalidArtifact, "artifactRef", artifactRef)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", log.Err("artifact not found", ErrArtifactNotFound, "artifactRef", artifactRef)
		}
		return nil, "", Transient(log.Err("failed to read artifact", err, "artifactRef", artifactRef))
	}

	return data, MimeTypeFor(artifactRef), nil
}

func MimeTypeFor(artifactRef string) string {
	if mimeType, ok := mimeByExtension[strings.ToLower(path.Ext(artifactRef))]; ok {
		return mimeType
	}
	return "application/octet-stream"
}
