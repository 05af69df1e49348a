package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/log"
	"github.com/go-resty/resty/v2"
)

// The StaticFetcher fetches static page content
type StaticFetcher struct {
	*FetcherConfig
	client *resty.Client
}

func NewStaticFetcher(fc *FetcherConfig) *StaticFetcher {
	return &StaticFetcher{
		FetcherConfig: fc,
		client:        NewRestyClient(fc),
	}
}

// Fetch returns the body of url. Not found pages are returned as well since
// sites render their own error page which is detected by locator.
func (s *StaticFetcher) Fetch(ctx context.Context, url string, opts FetchOpts) (string, error) {
	logger := log.LoggerFromContext(ctx)
	logger.Debug("fetching page", slog.String("fetcher", "static"), slog.String("url", url), slog.String("user-agent", s.UserAgent))
	if len(opts.Interaction) > 0 {
		logger.Debug(fmt.Sprintf("static fetcher ignores %d interaction(s)", len(opts.Interaction)))
	}

	res, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", err
	}
	if code := res.StatusCode(); !servesPage(code) {
		return "", &StatusError{URL: url, Code: code, Status: res.Status()}
	}
	resString := string(res.Body())
	if log.Debug {
		writeHTMLToFile(ctx, url, resString, s.DebugDir)
	}
	return resString, nil
}

func (s *StaticFetcher) Cancel() {}

// servesPage reports whether a response with code carries a page. Not found
// pages are passed on so the site's own error marker can classify them.
func servesPage(code int) bool {
	return code >= 200 && code < 300 || code == http.StatusNotFound || code == http.StatusGone
}
