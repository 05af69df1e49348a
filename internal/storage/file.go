package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/log"
)

// FileStorage stores below a root directory of the local filesystem.
type FileStorage struct {
	root       string
	downloader *Downloader
}

func NewFileStorage(root string, dl *Downloader) *FileStorage {
	return &FileStorage{root: root, downloader: dl}
}

func (s *FileStorage) dir(folder string) (string, error) {
	dir := filepath.Join(s.root, folder)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", &PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}
	return dir, nil
}

func (s *FileStorage) SaveJSON(ctx context.Context, v any, folder, name string) error {
	dir, err := s.dir(folder)
	if err != nil {
		return err
	}
	filename := filepath.Join(dir, jsonName(name))
	data, err := encodeJSON(v)
	if err != nil {
		return &PersistenceError{Op: "encode", Path: filename, Err: err}
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return &PersistenceError{Op: "write", Path: filename, Err: err}
	}
	log.LoggerFromContext(ctx).Debug(fmt.Sprintf("wrote json file %s", filename))
	return nil
}

func (s *FileStorage) SaveImage(ctx context.Context, url, folder, name string) error {
	dir, err := s.dir(folder)
	if err != nil {
		return err
	}
	filename := filepath.Join(dir, name)
	data, _, err := s.downloader.Download(ctx, url)
	if err != nil {
		return &PersistenceError{Op: "download", Path: url, Err: err}
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return &PersistenceError{Op: "write", Path: filename, Err: err}
	}
	log.LoggerFromContext(ctx).Debug(fmt.Sprintf("wrote image file %s", filename))
	return nil
}

// ListFiles returns the files directly in folder, relative to the root and
// sorted by name. A missing folder has no files.
func (s *FileStorage) ListFiles(ctx context.Context, folder, fileType string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, folder))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() || !matchesType(e.Name(), fileType) {
			continue
		}
		files = append(files, filepath.Join(folder, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (s *FileStorage) ReadJSON(ctx context.Context, path string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.root, path))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error while reading %s: %w", path, err)
	}
	return nil
}
