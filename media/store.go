package media

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Store saves and retrieves upload artifacts (raw photos, annotated copies).
type Store interface {
	// Save writes data under the directory of assetType and returns the path relative to the store root
	Save(assetType AssetType, filename string, data io.Reader) (string, error)
	Get(relativePath string) (io.ReadCloser, os.FileInfo, error)
	Delete(relativePath string) error
	GetFullPath(relativePath string) (string, error)
	EnsureDir(assetType AssetType) (string, error)
}

// LocalStorage implements Store on the local filesystem
type LocalStorage struct {
	basePath string               // absolute MEDIA_STORAGE_PATH
	dirs     map[AssetType]string // asset type -> absolute directory
}

// NewLocalStorage creates the base directory and resolves the per-asset subdirectories.
func NewLocalStorage(basePath string, subDirs map[AssetType]string) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}
	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	dirs := make(map[AssetType]string, len(subDirs))
	for assetType, subDir := range subDirs {
		full, err := within(absBasePath, subDir)
		if err != nil {
			return nil, fmt.Errorf("invalid subdirectory for %s: %w", assetType, err)
		}
		dirs[assetType] = full
	}

	log.Printf("media.store: Initialized LocalStorage at %s", absBasePath)
	return &LocalStorage{basePath: absBasePath, dirs: dirs}, nil
}

// within joins rel onto base and rejects results that escape base.
func within(base, rel string) (string, error) {
	full := filepath.Join(base, rel)
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("'%s' resolves outside '%s'", rel, base)
	}
	return full, nil
}

func (ls *LocalStorage) EnsureDir(assetType AssetType) (string, error) {
	dir, ok := ls.dirs[assetType]
	if !ok {
		return "", fmt.Errorf("asset type '%s' is not configured", assetType)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to ensure directory '%s': %w", dir, err)
	}
	return dir, nil
}

// Save writes to a temp file and renames it into place so readers never see a partial file.
func (ls *LocalStorage) Save(assetType AssetType, filename string, data io.Reader) (string, error) {
	if filename == "" || filepath.Base(filename) != filename {
		return "", fmt.Errorf("invalid filename '%s'", filename)
	}
	dir, err := ls.EnsureDir(assetType)
	if err != nil {
		return "", err
	}
	fullSavePath := filepath.Join(dir, filename)
	if err := writeFileAtomic(fullSavePath, data); err != nil {
		return "", err
	}

	relativePath, err := filepath.Rel(ls.basePath, fullSavePath)
	if err != nil {
		return "", fmt.Errorf("internal error calculating relative path: %w", err)
	}
	log.Printf("media.store: Saved %s asset to %s", assetType, fullSavePath)
	return filepath.ToSlash(relativePath), nil
}

func writeFileAtomic(path string, data io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file next to '%s': %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write data to '%s': %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush '%s': %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move file into '%s': %w", path, err)
	}
	return nil
}

func (ls *LocalStorage) Get(relativePath string) (io.ReadCloser, os.FileInfo, error) {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open asset '%s': %w", relativePath, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat asset '%s': %w", relativePath, err)
	}
	return file, info, nil
}

func (ls *LocalStorage) Delete(relativePath string) error {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete asset '%s': %w", relativePath, err)
	}
	return nil
}

// GetFullPath resolves a store-relative path, refusing traversal outside the root.
func (ls *LocalStorage) GetFullPath(relativePath string) (string, error) {
	full, err := within(ls.basePath, filepath.Clean(filepath.FromSlash(relativePath)))
	if err != nil {
		return "", fmt.Errorf("invalid path: access denied for '%s'", relativePath)
	}
	return full, nil
}
