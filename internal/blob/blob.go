// Package blob stores prescription images. The interface is the contract the
// prescription service depends on; DiskStore is the bundled implementation
// writing under a local upload directory.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store uploads a binary payload and returns a serving URL.
type Store interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

var extByContentType = map[string]string{
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

// DiskStore writes uploads to a local directory served by the API.
type DiskStore struct {
	dir    string
	logger *zap.Logger
}

// NewDiskStore creates the directory if needed.
func NewDiskStore(dir string, logger *zap.Logger) (*DiskStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir, logger: logger}, nil
}

// Upload writes the payload under a generated name and returns its URL path.
func (s *DiskStore) Upload(_ context.Context, data []byte, contentType string) (string, error) {
	ext, ok := extByContentType[contentType]
	if !ok {
		ext = ".bin"
	}

	name := uuid.New().String() + ext
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}

	s.logger.Debug("prescription image stored",
		zap.String("file", name),
		zap.Int("bytes", len(data)))

	return "/" + filepath.ToSlash(filepath.Join(s.dir, name)), nil
}
