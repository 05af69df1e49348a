package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// StdoutStorage prints json documents instead of storing them. Images are
// only logged. Nothing can be read back.
type StdoutStorage struct {
	w      io.Writer
	logger *slog.Logger
}

// NewStdoutStorage returns a StdoutStorage writing to w, or to stdout if w
// is nil.
func NewStdoutStorage(w io.Writer) *StdoutStorage {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutStorage{
		w:      w,
		logger: slog.With(slog.String("storage", STDOUT_STORAGE_TYPE)),
	}
}

func (s *StdoutStorage) SaveJSON(ctx context.Context, v any, folder, name string) error {
	data, err := encodeJSON(v)
	if err != nil {
		s.logger.Error(fmt.Sprintf("error while writing %s: %v", name, err))
		return &PersistenceError{Op: "encode", Path: name, Err: err}
	}
	if _, err := s.w.Write(data); err != nil {
		return &PersistenceError{Op: "write", Path: name, Err: err}
	}
	return nil
}

func (s *StdoutStorage) SaveImage(ctx context.Context, url, folder, name string) error {
	s.logger.Info(fmt.Sprintf("not downloading image %s (%s)", name, url))
	return nil
}

func (s *StdoutStorage) ListFiles(ctx context.Context, folder, fileType string) ([]string, error) {
	return []string{}, nil
}

func (s *StdoutStorage) ReadJSON(ctx context.Context, path string, v any) error {
	return errors.New("stdout storage cannot read files")
}
