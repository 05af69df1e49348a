package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/log"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/types"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/utils"
)

// The DynamicFetcher renders js. All pages are opened as tabs of the same
// browser so cookies, eg. an accepted consent banner, survive between
// fetches.
type DynamicFetcher struct {
	*FetcherConfig
	allocContext   context.Context
	cancelAlloc    context.CancelFunc
	browserContext context.Context
	cancelBrowser  context.CancelFunc
	mu             sync.Mutex
}

func NewDynamicFetcher(fc *FetcherConfig) *DynamicFetcher {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1920, 1080), // desktop view, on mobile some buttons are missing
	)
	if fc.UserAgent != "" {
		opts = append(opts,
			chromedp.UserAgent(fc.UserAgent))
	}
	allocContext, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	d := &DynamicFetcher{
		FetcherConfig: fc,
		allocContext:  allocContext,
		cancelAlloc:   cancelAlloc,
	}
	if d.PageLoadWaitMS == 0 {
		d.PageLoadWaitMS = 2000 // default
	}
	return d
}

// Cancel closes the browser. The fetcher cannot be used afterwards.
func (d *DynamicFetcher) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancelBrowser != nil {
		d.cancelBrowser()
	}
	d.cancelAlloc()
}

func (d *DynamicFetcher) browser(ctx context.Context) (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browserContext != nil {
		return d.browserContext, nil
	}
	logger := log.LoggerFromContext(ctx)
	bctx, cancel := chromedp.NewContext(d.allocContext)
	actions := []chromedp.Action{}
	if log.Debug {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			protocolVersion, product, revision, userAgent, jsVersion, err := browser.GetVersion().Do(ctx)
			if err != nil {
				logger.Warn("failed to get chrome version", slog.String("err", err.Error()))
				return nil
			}
			logger.Debug(fmt.Sprintf("chrome version: protocolVersion=%s, product=%s, revision=%s, userAgent=%s, jsVersion=%s",
				protocolVersion, product, revision, userAgent, jsVersion))
			return nil
		}))
	}
	// the first Run starts the browser
	if err := chromedp.Run(bctx, actions...); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	d.browserContext, d.cancelBrowser = bctx, cancel
	return bctx, nil
}

func (d *DynamicFetcher) Fetch(ctx context.Context, urlStr string, opts FetchOpts) (string, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("fetcher", "dynamic"), slog.String("url", urlStr))
	logger.Debug("fetching page", slog.String("user-agent", d.UserAgent))

	bctx, err := d.browser(ctx)
	if err != nil {
		return "", err
	}
	tabCtx, cancel := chromedp.NewContext(bctx)
	defer cancel()
	// stop the tab when the caller gives up
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var body string
	sleepTime := time.Duration(d.PageLoadWaitMS) * time.Millisecond
	actions := []chromedp.Action{
		chromedp.Navigate(urlStr),
		chromedp.Sleep(sleepTime),
	}
	logger.Debug(fmt.Sprintf("appended chrome actions: Navigate, Sleep(%v)", sleepTime))
	for j, ia := range opts.Interaction {
		logger.Debug(fmt.Sprintf("processing interaction nr %d, type %s", j, ia.Type))
		actions = append(actions, interactionActions(logger, ia)...)
	}
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		body, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))

	if log.Debug {
		if d.DebugDir != "" {
			if err := os.MkdirAll(d.DebugDir, os.ModePerm); err != nil {
				return "", fmt.Errorf("failed to create debug directory: %v", err)
			}
		}
		u, _ := url.Parse(urlStr)
		var buf []byte
		r, err := utils.RandomString(u.Host)
		if err != nil {
			return "", err
		}
		filename := filepath.Join(d.DebugDir, fmt.Sprintf("%s.png", r))
		actions = append(actions, chromedp.CaptureScreenshot(&buf))
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			logger.Debug(fmt.Sprintf("writing screenshot to file %s", filename))
			return os.WriteFile(filename, buf, 0644)
		}))
		logger.Debug("appended chrome actions: CaptureScreenshot, ActionFunc (save screenshot)")
	}

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", err
	}

	if log.Debug {
		writeHTMLToFile(ctx, urlStr, body, d.DebugDir)
	}
	return body, nil
}

func interactionActions(logger *slog.Logger, ia *types.Interaction) []chromedp.Action {
	delay := 500 * time.Millisecond // default is .5 seconds
	if ia.Delay > 0 {
		delay = time.Duration(ia.Delay) * time.Millisecond
	}
	actions := []chromedp.Action{}
	switch ia.Type {
	case types.InteractionTypeClick:
		count := 1 // default is 1
		if ia.Count > 0 {
			count = ia.Count
		}
		for i := 0; i < count; i++ {
			// pop-ups are optional, we only click the element if it exists
			actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
				queryOpts := []chromedp.QueryOption{chromedp.AtLeast(0)}
				if ia.Frame != "" {
					var frames []*cdp.Node
					if err := chromedp.Nodes(ia.Frame, &frames, chromedp.AtLeast(0)).Do(ctx); err != nil {
						return err
					}
					if len(frames) == 0 {
						logger.Debug(fmt.Sprintf("no frame found for selector: %s", ia.Frame))
						return nil
					}
					queryOpts = append(queryOpts, chromedp.FromNode(frames[0]))
				}
				var nodes []*cdp.Node
				if err := chromedp.Nodes(ia.Selector, &nodes, queryOpts...).Do(ctx); err != nil {
					return err
				}
				if len(nodes) == 0 {
					logger.Debug(fmt.Sprintf("nothing to click for selector: %s", ia.Selector))
					return nil
				}
				logger.Debug(fmt.Sprintf("clicking on node with selector: %s", ia.Selector))
				return chromedp.MouseClickNode(nodes[0]).Do(ctx)
			}))
			actions = append(actions, chromedp.Sleep(delay))
		}
	case types.InteractionTypeScroll:
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			logger.Debug("scrolling down the page")
			return chromedp.KeyEvent(kb.End).Do(ctx)
		}))
		actions = append(actions, chromedp.Sleep(delay))
	case types.InteractionTypeWait:
		timeout := 10 * time.Second
		if ia.Timeout > 0 {
			timeout = time.Duration(ia.Timeout) * time.Millisecond
		}
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			wctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			err := chromedp.WaitVisible(ia.Selector).Do(wctx)
			if errors.Is(err, context.DeadlineExceeded) {
				logger.Debug(fmt.Sprintf("gave up waiting for %s after %v", ia.Selector, timeout))
				return nil
			}
			return err
		}))
	default:
		logger.Warn(fmt.Sprintf("unknown interaction type %s", ia.Type))
	}
	return actions
}
