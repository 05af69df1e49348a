package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/recipes/chicken-pie", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body><h1>Chicken pie</h1><p>%s</p></body></html>", r.Header.Get("User-Agent"))
	})
	mux.HandleFunc("/search/recipes/page/99/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<div class="template-error__content">Page not found</div>`)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStaticFetcher(t *testing.T) {
	srv := newTestServer(t)
	f := NewStaticFetcher(&FetcherConfig{UserAgent: "recipe-test-agent", RequestsPerSecond: 100})
	defer f.Cancel()

	body, err := f.Fetch(context.Background(), srv.URL+"/recipes/chicken-pie", FetchOpts{})
	require.NoError(t, err)
	assert.Contains(t, body, "<h1>Chicken pie</h1>")
	assert.Contains(t, body, "recipe-test-agent")
}

func TestStaticFetcherReturnsNotFoundPages(t *testing.T) {
	srv := newTestServer(t)
	f := NewStaticFetcher(&FetcherConfig{})

	body, err := f.Fetch(context.Background(), srv.URL+"/search/recipes/page/99/", FetchOpts{})
	require.NoError(t, err)
	assert.Contains(t, body, "template-error__content")
}

func TestStaticFetcherServerError(t *testing.T) {
	srv := newTestServer(t)
	f := NewStaticFetcher(&FetcherConfig{})

	_, err := f.Fetch(context.Background(), srv.URL+"/broken", FetchOpts{})
	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
}

func TestStaticFetcherCancelledContext(t *testing.T) {
	srv := newTestServer(t)
	f := NewStaticFetcher(&FetcherConfig{RequestsPerSecond: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, srv.URL+"/recipes/chicken-pie", FetchOpts{})
	assert.Error(t, err)
}

func TestMockFetcher(t *testing.T) {
	f := NewMockFetcher(&FetcherConfig{
		MockPages: []MockPage{
			{Url: "https://www.example.com/a", Content: "<p>a</p>"},
			{Url: "https://www.example.com/gone", Content: "<p>gone</p>", Code: 410},
			{Url: "https://www.example.com/busy", Content: "busy", Code: 503},
		},
	})

	body, err := f.Fetch(context.Background(), "https://www.example.com/a", FetchOpts{})
	require.NoError(t, err)
	assert.Equal(t, "<p>a</p>", body)

	body, err = f.Fetch(context.Background(), "https://www.example.com/gone", FetchOpts{})
	require.NoError(t, err)
	assert.Equal(t, "<p>gone</p>", body)

	_, err = f.Fetch(context.Background(), "https://www.example.com/busy", FetchOpts{})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 503, statusErr.Code)

	_, err = f.Fetch(context.Background(), "https://www.example.com/b", FetchOpts{})
	assert.Error(t, err)
	assert.False(t, errors.As(err, &statusErr))
	assert.Equal(t, []string{
		"https://www.example.com/a",
		"https://www.example.com/gone",
		"https://www.example.com/busy",
		"https://www.example.com/b",
	}, f.History())
}

func TestNewFetcher(t *testing.T) {
	tests := []struct {
		fetcherType string
		expected    any
		wantErr     bool
	}{
		{"", &StaticFetcher{}, false},
		{STATIC_FETCHER_TYPE, &StaticFetcher{}, false},
		{MOCK_FETCHER_TYPE, &MockFetcher{}, false},
		{"carrier-pigeon", nil, true},
	}
	for _, tt := range tests {
		f, err := NewFetcher(&FetcherConfig{Type: tt.fetcherType})
		if tt.wantErr {
			assert.Error(t, err, tt.fetcherType)
			continue
		}
		require.NoError(t, err, tt.fetcherType)
		assert.IsType(t, tt.expected, f, tt.fetcherType)
	}
}
