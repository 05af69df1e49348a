package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/log"
)

type MockFetcher struct {
	*FetcherConfig
	pagesMap map[string]MockPage

	mu      sync.Mutex
	history []string
}

func NewMockFetcher(fc *FetcherConfig) *MockFetcher {
	df := &MockFetcher{
		FetcherConfig: fc,
		pagesMap:      map[string]MockPage{},
	}
	for _, p := range fc.MockPages {
		df.pagesMap[p.Url] = p
	}
	return df
}

func (d *MockFetcher) Fetch(ctx context.Context, urlStr string, opts FetchOpts) (string, error) {
	d.mu.Lock()
	d.history = append(d.history, urlStr)
	d.mu.Unlock()
	if p, ok := d.pagesMap[urlStr]; ok {
		if p.Code != 0 && !servesPage(p.Code) {
			return "", &StatusError{URL: urlStr, Code: p.Code, Status: fmt.Sprintf("%d %s", p.Code, http.StatusText(p.Code))}
		}
		if log.Debug {
			writeHTMLToFile(ctx, urlStr, p.Content, d.DebugDir)
		}
		return p.Content, nil
	}

	return "", errors.New("page not found")
}

// History returns the requested urls in order.
func (d *MockFetcher) History() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.history...)
}

// To comply with the Fetcher interface
func (df *MockFetcher) Cancel() {}
