// Package fetch retrieves the html of a page, either as served (static) or
// after rendering it in a headless browser (dynamic).
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/log"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/types"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/utils"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	STATIC_FETCHER_TYPE  = "static"
	DYNAMIC_FETCHER_TYPE = "dynamic"
	MOCK_FETCHER_TYPE    = "mock"
)

// A Fetcher allows to fetch the content of a web page
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOpts) (string, error)
	Cancel()
}

// FetchOpts are the per request options. Interactions are run after the
// page has loaded and before its html is read.
type FetchOpts struct {
	Interaction []*types.Interaction
}

// FetcherConfig defines how pages are fetched.
type FetcherConfig struct {
	Type              string     `yaml:"type" env:"FETCHER_TYPE" env-default:"static"`
	UserAgent         string     `yaml:"user_agent" env:"FETCHER_USER_AGENT" env-default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"`
	PageLoadWaitMS    int        `yaml:"page_load_wait_ms" env-default:"2000"`
	TimeoutS          int        `yaml:"timeout_s" env-default:"30"`
	RequestsPerSecond float64    `yaml:"requests_per_second" env-default:"2"`
	DebugDir          string     `yaml:"debug_dir" env-default:"debug"`
	MockPages         []MockPage `yaml:"-"`
}

// MockPage is a page served by the MockFetcher.
type MockPage struct {
	Url     string
	Content string
	// Code is the http status served with the page, 0 means 200.
	Code int
}

// StatusError is returned for responses that do not carry a usable page.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status code error for %s: %d %s", e.URL, e.Code, e.Status)
}

// NewFetcher returns the fetcher configured by fc.
func NewFetcher(fc *FetcherConfig) (Fetcher, error) {
	switch fc.Type {
	case STATIC_FETCHER_TYPE, "":
		return NewStaticFetcher(fc), nil
	case DYNAMIC_FETCHER_TYPE:
		return NewDynamicFetcher(fc), nil
	case MOCK_FETCHER_TYPE:
		return NewMockFetcher(fc), nil
	default:
		return nil, fmt.Errorf("fetcher of type %s not implemented", fc.Type)
	}
}

// NewRestyClient returns the http client shared by the static fetcher and
// the image downloader. Requests are rate limited.
func NewRestyClient(fc *FetcherConfig) *resty.Client {
	client := resty.New()
	if fc.UserAgent != "" {
		client.SetHeader("User-Agent", fc.UserAgent)
	}
	client.SetHeader("Accept", "*/*")
	timeout := 30 * time.Second
	if fc.TimeoutS > 0 {
		timeout = time.Duration(fc.TimeoutS) * time.Second
	}
	client.SetTimeout(timeout)

	if fc.RequestsPerSecond > 0 {
		// max burst >= 1 just means that no requests will be dropped
		rateLimiter := rate.NewLimiter(rate.Limit(fc.RequestsPerSecond), 1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}
	return client
}

func writeHTMLToFile(ctx context.Context, urlStr, content, dir string) {
	logger := log.LoggerFromContext(ctx)
	if dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			logger.Warn(fmt.Sprintf("failed to create debug directory: %v", err))
			return
		}
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		logger.Warn(fmt.Sprintf("failed to parse url %s: %v", urlStr, err))
		return
	}
	r, err := utils.RandomString(u.Host)
	if err != nil {
		logger.Warn(fmt.Sprintf("failed to generate file name: %v", err))
		return
	}
	filename := filepath.Join(dir, fmt.Sprintf("%s.html", r))
	logger.Debug(fmt.Sprintf("writing html to file %s", filename), slog.String("url", urlStr))
	if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
		logger.Warn(fmt.Sprintf("failed to write html file: %v", err))
	}
}
