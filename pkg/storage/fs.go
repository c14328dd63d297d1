package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/menta2k/image-redactor/internal/utils"
)

// FS writes results into a local directory
type FS struct {
	dir string
}

// NewFS creates the directory if needed
func NewFS(dir string) (*FS, error) {
	if dir == "" {
		dir = "./results"
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &FS{dir: dir}, nil
}

// Save writes data to dir/name and returns the file path
func (s *FS) Save(ctx context.Context, name string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name = utils.SanitizeFilename(filepath.Base(name))
	if name == "" {
		return "", fmt.Errorf("invalid result name")
	}

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write result: %w", err)
	}
	return path, nil
}
