package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Storage stores objects in a bucket of an S3 compatible object store.
// Folders are key prefixes below the configured root.
type S3Storage struct {
	client     *minio.Client
	bucket     string
	root       string
	downloader *Downloader
	logger     *slog.Logger
}

// NewS3Storage connects to the object store and creates the bucket if it
// does not exist yet.
func NewS3Storage(ctx context.Context, sc *StorageConfig, dl *Downloader) (*S3Storage, error) {
	if sc.Bucket == "" {
		return nil, errors.New("s3 storage needs a bucket")
	}
	client, err := minio.New(sc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(sc.AccessKeyID, sc.SecretAccessKey, ""),
		Secure: sc.UseSSL,
		Region: sc.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating s3 client: %w", err)
	}
	s := &S3Storage{
		client:     client,
		bucket:     sc.Bucket,
		root:       strings.Trim(sc.Root, "/"),
		downloader: dl,
		logger:     log.LoggerFromContext(ctx).With(slog.String("storage", S3_STORAGE_TYPE), slog.String("bucket", sc.Bucket)),
	}
	if err := s.ensureBucket(ctx, sc.Region); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *S3Storage) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return &PersistenceError{Op: "bucket", Path: s.bucket, Err: err}
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		// somebody else might have been faster
		if exists, errExists := s.client.BucketExists(ctx, s.bucket); errExists == nil && exists {
			return nil
		}
		return &PersistenceError{Op: "bucket", Path: s.bucket, Err: err}
	}
	s.logger.Info(fmt.Sprintf("created bucket %s", s.bucket))
	return nil
}

func (s *S3Storage) key(folder, name string) string {
	return objectKey(s.root, folder, name)
}

// objectKey joins the parts with '/', ignoring empty ones.
func objectKey(parts ...string) string {
	nonEmpty := []string{}
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return path.Join(nonEmpty...)
}

func (s *S3Storage) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return &PersistenceError{Op: "put", Path: key, Err: err}
	}
	s.logger.Debug(fmt.Sprintf("wrote object %s", key))
	return nil
}

func (s *S3Storage) SaveJSON(ctx context.Context, v any, folder, name string) error {
	key := s.key(folder, jsonName(name))
	data, err := encodeJSON(v)
	if err != nil {
		return &PersistenceError{Op: "encode", Path: key, Err: err}
	}
	return s.put(ctx, key, data, "application/json")
}

func (s *S3Storage) SaveImage(ctx context.Context, url, folder, name string) error {
	data, contentType, err := s.downloader.Download(ctx, url)
	if err != nil {
		return &PersistenceError{Op: "download", Path: url, Err: err}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return s.put(ctx, s.key(folder, name), data, contentType)
}

// ListFiles returns the keys directly below folder, relative to the root.
func (s *S3Storage) ListFiles(ctx context.Context, folder, fileType string) ([]string, error) {
	prefix := s.key(folder, "")
	if prefix != "" {
		prefix += "/"
	}
	files := []string{}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.HasSuffix(name, "/") || !matchesType(name, fileType) {
			continue
		}
		files = append(files, objectKey(folder, name))
	}
	sort.Strings(files)
	return files, nil
}

func (s *S3Storage) ReadJSON(ctx context.Context, p string, v any) error {
	key := s.key(p, "")
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()
	if err := json.NewDecoder(obj).Decode(v); err != nil {
		return fmt.Errorf("error while reading %s: %w", key, err)
	}
	return nil
}
