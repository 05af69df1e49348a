package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/fetch"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/log"
	"github.com/go-resty/resty/v2"
)

// Downloader fetches images. It shares the rate limited client setup with
// the static fetcher.
type Downloader struct {
	client *resty.Client
}

func NewDownloader(fc *fetch.FetcherConfig) *Downloader {
	if fc == nil {
		fc = &fetch.FetcherConfig{}
	}
	return &Downloader{client: fetch.NewRestyClient(fc)}
}

// Download returns the body and content type of url.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, string, error) {
	log.LoggerFromContext(ctx).Debug("downloading image", slog.String("url", url))
	res, err := d.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", err
	}
	if !res.IsSuccess() {
		return nil, "", fmt.Errorf("status code error: %d %s", res.StatusCode(), res.Status())
	}
	return res.Body(), res.Header().Get("Content-Type"), nil
}
