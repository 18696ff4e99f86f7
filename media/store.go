package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store saves generated artifacts (finished export archives) outside the process.
type Store interface {
	// Save writes data under the asset type's directory and returns the path relative to
	// the store root.
	Save(assetType AssetType, filename string, data io.Reader) (string, error)
	// GetFullPath returns the absolute filesystem path for a relative asset path.
	GetFullPath(relativePath string) (string, error)
}

// LocalStorage implements Store on the local filesystem.
type LocalStorage struct {
	basePath        string
	resolvedPathMap map[AssetType]string
	logger          zerolog.Logger
}

// NewLocalStorage creates the base directory and resolves each asset type's subdirectory.
func NewLocalStorage(basePath string, subDirs map[AssetType]string, logger zerolog.Logger) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}
	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	resolved := make(map[AssetType]string, len(subDirs))
	for assetType, subDir := range subDirs {
		fullPath := filepath.Clean(filepath.Join(absBasePath, subDir))
		if !strings.HasPrefix(fullPath, absBasePath) {
			return nil, fmt.Errorf("invalid subdirectory configuration: '%s' resolves outside base path '%s'", subDir, absBasePath)
		}
		resolved[assetType] = fullPath
	}

	logger = logger.With().Str("component", "media.store").Logger()
	logger.Info().Str("path", absBasePath).Msg("initialized local storage")
	return &LocalStorage{basePath: absBasePath, resolvedPathMap: resolved, logger: logger}, nil
}

// EnsureDir creates the directory for the asset type if it doesn't exist.
func (ls *LocalStorage) EnsureDir(assetType AssetType) (string, error) {
	dirPath, ok := ls.resolvedPathMap[assetType]
	if !ok {
		dirPath = filepath.Join(ls.basePath, string(assetType))
	}
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to ensure directory '%s': %w", dirPath, err)
	}
	return dirPath, nil
}

func (ls *LocalStorage) Save(assetType AssetType, filename string, data io.Reader) (string, error) {
	if filename == "" || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("invalid filename '%s'", filename)
	}
	dir, err := ls.EnsureDir(assetType)
	if err != nil {
		return "", err
	}

	fullSavePath := filepath.Join(dir, filename)
	outFile, err := os.Create(fullSavePath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file '%s': %w", fullSavePath, err)
	}
	if _, err := io.Copy(outFile, data); err != nil {
		outFile.Close()
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to close '%s': %w", fullSavePath, err)
	}

	relativePath, err := filepath.Rel(ls.basePath, fullSavePath)
	if err != nil {
		return "", fmt.Errorf("internal error calculating relative path: %w", err)
	}
	ls.logger.Info().Str("path", fullSavePath).Msg("saved asset")
	return filepath.ToSlash(relativePath), nil
}

// GetFullPath calculates the absolute path and rejects anything outside the store root.
func (ls *LocalStorage) GetFullPath(relativePath string) (string, error) {
	fullPath := filepath.Join(ls.basePath, filepath.Clean(relativePath))
	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", relativePath, err)
	}
	if !strings.HasPrefix(absFullPath, ls.basePath) {
		return "", fmt.Errorf("invalid path: access denied for '%s'", relativePath)
	}
	return absFullPath, nil
}

// ArchiveFilename returns a unique name for a new export archive.
func ArchiveFilename(now time.Time) string {
	return fmt.Sprintf("gallery_export_%d_%s.zip", now.Unix(), uuid.NewString()[:8])
}
