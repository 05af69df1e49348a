package storage

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/fetch"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/recipe"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/images/pie.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func sampleRecords(t *testing.T) []*recipe.Record {
	t.Helper()
	r, err := recipe.NewRecord("https://www.bbcgoodfood.com/recipes/chicken-pie", map[string]any{
		"recipe_name": "Chicken & leek pie",
		"ingredients": []map[string]string{{"ingredient": "500g chicken"}, {"ingredient": "2 leeks"}},
		"method":      []map[string]string{},
	}, []string{"https://images.example.com/pie.jpg?quality=90&resize=440"})
	require.NoError(t, err)
	return []*recipe.Record{r}
}

func TestFileStorageJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := NewFileStorage(root, NewDownloader(nil))
	records := sampleRecords(t)

	// the folder does not exist yet
	require.NoError(t, s.SaveJSON(ctx, records, "chicken-pie/data", "chicken-pie-1"))
	require.NoError(t, s.SaveJSON(ctx, records, "chicken-pie/data", "chicken-pie-1"))

	raw, err := os.ReadFile(filepath.Join(root, "chicken-pie", "data", "chicken-pie-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "quality=90&resize=440")
	assert.Contains(t, string(raw), "Chicken & leek pie")

	files, err := s.ListFiles(ctx, "chicken-pie/data", ".json")
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join("chicken-pie/data", "chicken-pie-1.json")}, files)

	var back []*recipe.Record
	require.NoError(t, s.ReadJSON(ctx, files[0], &back))
	if diff := cmp.Diff(records, back); diff != "" {
		t.Fatalf("records changed during round trip (-want +got):\n%s", diff)
	}

	var generic []map[string]any
	require.NoError(t, s.ReadJSON(ctx, files[0], &generic))
	assert.Equal(t, records[0].ItemUUID.String(), generic[0]["item_uuid"])
}

func TestFileStorageListFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := NewFileStorage(root, nil)

	files, err := s.ListFiles(ctx, "missing", ".json")
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, s.SaveJSON(ctx, map[string]string{"b": "1"}, "data", "b"))
	require.NoError(t, s.SaveJSON(ctx, map[string]string{"a": "1"}, "data", "a.json"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "data", "sub.json"), os.ModePerm))

	files, err = s.ListFiles(ctx, "data", "json")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("data", "a.json"), filepath.Join("data", "b.json")}, files)

	files, err = s.ListFiles(ctx, "data", "")
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestFileStorageSaveImage(t *testing.T) {
	ctx := context.Background()
	srv := newImageServer(t)
	root := t.TempDir()
	s := NewFileStorage(root, NewDownloader(&fetch.FetcherConfig{RequestsPerSecond: 100}))

	require.NoError(t, s.SaveImage(ctx, srv.URL+"/images/pie.png", "chicken/images", "chicken-pie.png"))
	data, err := os.ReadFile(filepath.Join(root, "chicken", "images", "chicken-pie.png"))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	err = s.SaveImage(ctx, srv.URL+"/images/missing.png", "chicken/images", "missing.png")
	var persistErr *PersistenceError
	require.True(t, errors.As(err, &persistErr))
	assert.Equal(t, "download", persistErr.Op)
	_, err = os.Stat(filepath.Join(root, "chicken", "images", "missing.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStorageReadErrors(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := NewFileStorage(root, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.json"), []byte("{"), 0644))

	var v map[string]any
	assert.Error(t, s.ReadJSON(ctx, "broken.json", &v))
	assert.Error(t, s.ReadJSON(ctx, "missing.json", &v))
}

func TestStdoutStorage(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	s := NewStdoutStorage(&buf)

	require.NoError(t, s.SaveJSON(ctx, sampleRecords(t), "data", "batch"))
	assert.Contains(t, buf.String(), `"recipe_name": "Chicken & leek pie"`)
	assert.NoError(t, s.SaveImage(ctx, "https://images.example.com/pie.jpg", "images", "pie.jpg"))

	files, err := s.ListFiles(ctx, "data", ".json")
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Error(t, s.ReadJSON(ctx, "data/batch.json", &map[string]any{}))
}

func TestNewStorage(t *testing.T) {
	ctx := context.Background()
	st, err := NewStorage(ctx, &StorageConfig{Type: FILE_STORAGE_TYPE, Root: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStorage{}, st)

	st, err = NewStorage(ctx, &StorageConfig{Type: STDOUT_STORAGE_TYPE}, nil)
	require.NoError(t, err)
	assert.IsType(t, &StdoutStorage{}, st)

	_, err = NewStorage(ctx, &StorageConfig{Type: S3_STORAGE_TYPE}, nil)
	assert.Error(t, err, "a bucket is required")

	_, err = NewStorage(ctx, &StorageConfig{Type: "floppy"}, nil)
	assert.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		parts    []string
		expected string
	}{
		{[]string{"raw_data", "chicken/data", "a.json"}, "raw_data/chicken/data/a.json"},
		{[]string{"", "chicken/data/", "a.json"}, "chicken/data/a.json"},
		{[]string{"/raw_data/", "chicken", ""}, "raw_data/chicken"},
		{[]string{"", ""}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, objectKey(tt.parts...), "%v", tt.parts)
	}
}

func TestMatchesType(t *testing.T) {
	assert.True(t, matchesType("a.json", ".json"))
	assert.True(t, matchesType("a.JSON", "json"))
	assert.True(t, matchesType("a.png", ""))
	assert.False(t, matchesType("a.json.bak", ".json"))
}

// TestS3Storage needs an S3 compatible endpoint, eg. a local minio server:
// S3_TEST_ENDPOINT=localhost:9000 S3_ACCESS_KEY_ID=minioadmin S3_SECRET_ACCESS_KEY=minioadmin
func TestS3Storage(t *testing.T) {
	endpoint := os.Getenv("S3_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("S3_TEST_ENDPOINT not set")
	}
	ctx := context.Background()
	srv := newImageServer(t)
	s, err := NewS3Storage(ctx, &StorageConfig{
		Bucket:          "recipe-test",
		Root:            "raw_data",
		Endpoint:        endpoint,
		Region:          "us-east-1",
		AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
	}, NewDownloader(nil))
	require.NoError(t, err)

	records := sampleRecords(t)
	require.NoError(t, s.SaveJSON(ctx, records, "chicken/data", "batch"))
	require.NoError(t, s.SaveImage(ctx, srv.URL+"/images/pie.png", "chicken/images", "chicken-pie.png"))

	files, err := s.ListFiles(ctx, "chicken/data", ".json")
	require.NoError(t, err)
	require.Contains(t, files, "chicken/data/batch.json")

	var back []*recipe.Record
	require.NoError(t, s.ReadJSON(ctx, "chicken/data/batch.json", &back))
	if diff := cmp.Diff(records, back); diff != "" {
		t.Fatalf("records changed during round trip (-want +got):\n%s", diff)
	}
}
