// Package storage persists records and images to a filesystem, an object
// store or stdout.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/fetch"
)

const (
	FILE_STORAGE_TYPE   = "file"
	S3_STORAGE_TYPE     = "s3"
	STDOUT_STORAGE_TYPE = "stdout"
)

// Storage saves and reads back json documents and images. Folders are
// created on demand. Paths returned by ListFiles can be passed to ReadJSON.
type Storage interface {
	SaveJSON(ctx context.Context, v any, folder, name string) error
	SaveImage(ctx context.Context, url, folder, name string) error
	ListFiles(ctx context.Context, folder, fileType string) ([]string, error)
	ReadJSON(ctx context.Context, path string, v any) error
}

// StorageConfig defines the necessary parameters to create a Storage.
type StorageConfig struct {
	Type string `yaml:"type" env:"STORAGE_TYPE" env-default:"file"`
	// Root is the base directory, or the key prefix in the bucket.
	Root            string `yaml:"root" env:"STORAGE_ROOT" env-default:"raw_data"`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET"`
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT" env-default:"s3.amazonaws.com"`
	Region          string `yaml:"region" env:"S3_REGION"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
	UseSSL          bool   `yaml:"use_ssl" env:"S3_USE_SSL" env-default:"true"`
	// PerRecordFiles additionally writes one <item_id>.json per record.
	PerRecordFiles bool `yaml:"per_record_files"`
}

// PersistenceError is returned when a storage or database write failed.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure (%s %s): %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewStorage returns the storage configured by sc. Images are downloaded
// with a client built from fc.
func NewStorage(ctx context.Context, sc *StorageConfig, fc *fetch.FetcherConfig) (Storage, error) {
	dl := NewDownloader(fc)
	switch sc.Type {
	case FILE_STORAGE_TYPE, "":
		return NewFileStorage(sc.Root, dl), nil
	case S3_STORAGE_TYPE:
		return NewS3Storage(ctx, sc, dl)
	case STDOUT_STORAGE_TYPE:
		return NewStdoutStorage(nil), nil
	default:
		return nil, fmt.Errorf("storage of type %s not implemented", sc.Type)
	}
}

// encodeJSON writes indented json without escaping html characters since
// urls contain '&'.
func encodeJSON(v any) ([]byte, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	var indentBuffer bytes.Buffer
	if err := json.Indent(&indentBuffer, buffer.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return indentBuffer.Bytes(), nil
}

// jsonName appends the .json extension unless name has it already.
func jsonName(name string) string {
	if strings.HasSuffix(name, ".json") {
		return name
	}
	return name + ".json"
}

// matchesType reports whether name has the extension fileType, given with
// or without the dot. An empty fileType matches everything.
func matchesType(name, fileType string) bool {
	if fileType == "" {
		return true
	}
	return strings.EqualFold(path.Ext(name), "."+strings.TrimPrefix(fileType, "."))
}
