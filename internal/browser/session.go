// Package browser owns the single navigation resource of a run. A Session
// has exactly one current page; navigating replaces it and turns every node
// taken from the previous page stale.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/dom"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/fetch"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/locator"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/log"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/types"
)

// SessionError means the session could not be created or a page could not
// be reached at all. It is fatal to a run.
type SessionError struct {
	Op  string
	URL string
	Err error
}

func (e *SessionError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("session failure (%s): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("session failure (%s %s): %v", e.Op, e.URL, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

var errClosed = errors.New("session is closed")

// Session is not safe for concurrent use.
type Session struct {
	fetcher fetch.Fetcher
	current *dom.Document
	pending []*types.Interaction
	closed  bool
	logger  *slog.Logger
}

// NewSession wraps f. The session owns f and cancels it on Close.
func NewSession(ctx context.Context, f fetch.Fetcher) (*Session, error) {
	if f == nil {
		return nil, &SessionError{Op: "create", Err: errors.New("no fetcher")}
	}
	return &Session{
		fetcher: f,
		logger:  log.LoggerFromContext(ctx),
	}, nil
}

// NewSessionFromConfig creates the fetcher described by fc and a session
// around it.
func NewSessionFromConfig(ctx context.Context, fc *fetch.FetcherConfig) (*Session, error) {
	f, err := fetch.NewFetcher(fc)
	if err != nil {
		return nil, &SessionError{Op: "create", Err: err}
	}
	return NewSession(ctx, f)
}

// DismissPopup queues interactions, eg. accepting a cookie banner, that are
// run once with the next navigation.
func (s *Session) DismissPopup(interactions ...*types.Interaction) {
	s.pending = append(s.pending, interactions...)
}

// Navigate loads url as the new current page. Page scoped interactions run
// after any queued pop-up dismissals. A *fetch.StatusError is returned as is
// since it concerns this page only; every other failure is a *SessionError.
func (s *Session) Navigate(ctx context.Context, url string, interactions ...*types.Interaction) (*dom.Document, error) {
	if s.closed {
		return nil, &SessionError{Op: "navigate", URL: url, Err: errClosed}
	}
	if s.current != nil {
		s.current.Invalidate()
		s.current = nil
	}
	opts := fetch.FetchOpts{Interaction: append(append([]*types.Interaction{}, s.pending...), interactions...)}
	s.logger.Debug(fmt.Sprintf("navigating to %s", url), slog.Int("interactions", len(opts.Interaction)))
	body, err := s.fetcher.Fetch(ctx, url, opts)
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) {
			return nil, statusErr
		}
		return nil, &SessionError{Op: "navigate", URL: url, Err: err}
	}
	s.pending = nil
	doc, err := dom.Parse(strings.NewReader(body), url)
	if err != nil {
		return nil, &SessionError{Op: "parse", URL: url, Err: err}
	}
	s.current = doc
	return doc, nil
}

// Current returns the current page or nil if nothing was loaded yet.
func (s *Session) Current() *dom.Document {
	return s.current
}

// Close releases the browser. It is safe to call more than once.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.current != nil {
		s.current.Invalidate()
	}
	s.fetcher.Cancel()
	s.logger.Debug("session closed")
}

func (s *Session) page() (dom.Page, error) {
	if s.current == nil {
		return dom.Page{}, fmt.Errorf("%w: no page loaded", dom.ErrStaleElement)
	}
	return dom.Page{Doc: s.current}, nil
}

// FindOne looks up loc on the current page. A nil context means the root.
func (s *Session) FindOne(context *dom.Node, loc locator.Locator) (*dom.Node, error) {
	p, err := s.page()
	if err != nil {
		return nil, err
	}
	return p.FindOne(context, loc)
}

func (s *Session) FindMany(context *dom.Node, loc locator.Locator) ([]*dom.Node, error) {
	p, err := s.page()
	if err != nil {
		return nil, err
	}
	return p.FindMany(context, loc)
}

func (s *Session) TextOf(n *dom.Node) (string, error) {
	return dom.TextOf(n)
}

func (s *Session) AttributeOf(n *dom.Node, name string) (string, bool, error) {
	return dom.AttributeOf(n, name)
}
