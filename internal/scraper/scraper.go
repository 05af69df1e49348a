// Package scraper drives a browser session through the search of a recipe
// site: submit the search, walk the result pages, visit every detail page
// and extract a record from it.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/browser"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/dom"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/fetch"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/locator"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/log"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/pagedef"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/recipe"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/types"
)

// Policy decides what a missing required field does to a run.
type Policy string

const (
	PolicySkipPage Policy = "skip_page"
	PolicyAbortRun Policy = "abort_run"
)

// ErrInvalidPage is returned for pages rendering the site's error marker.
var ErrInvalidPage = errors.New("invalid page")

type Options struct {
	MissingRequired Policy
	// LenientScalars turns every missing scalar into an empty value.
	LenientScalars bool
}

// PageHandler receives the records of every result page.
type PageHandler interface {
	// Exists reports whether a record with this item id is stored already.
	Exists(ctx context.Context, itemID string) (bool, error)
	HandlePage(ctx context.Context, term string, page int, records []*recipe.Record) error
}

type Scraper struct {
	site        *Site
	session     *browser.Session
	interpreter *pagedef.Interpreter
	opts        Options
	consentDone bool
	status      types.RunStatus
}

// New returns a scraper using session. The caller keeps ownership of the
// session and has to close it.
func New(site *Site, session *browser.Session, opts Options) (*Scraper, error) {
	if err := site.Validate(); err != nil {
		return nil, err
	}
	switch opts.MissingRequired {
	case "":
		opts.MissingRequired = PolicySkipPage
	case PolicySkipPage, PolicyAbortRun:
	default:
		return nil, fmt.Errorf("unknown policy for missing required fields: %s", opts.MissingRequired)
	}
	return &Scraper{
		site:        site,
		session:     session,
		interpreter: pagedef.NewInterpreter(pagedef.Options{LenientScalars: opts.LenientScalars}),
		opts:        opts,
	}, nil
}

func (s *Scraper) transition(ctx context.Context, ss *SearchSession, to State) {
	log.LoggerFromContext(ctx).Debug(fmt.Sprintf("state %s -> %s", ss.State, to), slog.String("term", ss.Term))
	ss.State = to
}

// present reports whether loc matches on the current page. A zero locator
// never matches.
func (s *Scraper) present(loc locator.Locator) (bool, error) {
	if loc.IsZero() {
		return false, nil
	}
	nodes, err := s.session.FindMany(nil, loc)
	return len(nodes) > 0, err
}

// Search submits the search for term. pages is the number of result pages
// to walk; 0 means the count is read from the pagination control, which
// defaults to 1 page without one.
func (s *Scraper) Search(ctx context.Context, term string, pages int) (*SearchSession, error) {
	logger := log.LoggerFromContext(ctx)
	ss := &SearchSession{Term: term, State: Idle}
	if !s.consentDone {
		s.session.DismissPopup(s.site.Consent...)
		s.consentDone = true
	}

	searchURL := s.site.SearchPageURL(term)
	s.transition(ctx, ss, SearchSubmitted)
	if _, err := s.session.Navigate(ctx, searchURL); err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) {
			logger.Error(fmt.Sprintf("search page not available: %v", err))
			s.status.NrErrors++
			s.transition(ctx, ss, NoResults)
			return ss, nil
		}
		return nil, err
	}

	noResults, err := s.present(s.site.NoResults)
	if err != nil {
		return nil, err
	}
	if noResults {
		logger.Info(fmt.Sprintf("no results for search term '%s'", term))
		s.transition(ctx, ss, NoResults)
		return ss, nil
	}
	s.transition(ctx, ss, ResultsFound)

	if pages > 0 {
		ss.TotalPages = pages
	} else {
		ss.TotalPages, err = s.countPages()
		if err != nil {
			return nil, err
		}
		logger.Debug(fmt.Sprintf("detected %d result page(s)", ss.TotalPages))
	}
	return ss, nil
}

var pageNumberRe = regexp.MustCompile(`\d+`)

// countPages returns the highest number shown in the pagination control.
func (s *Scraper) countPages() (int, error) {
	if s.site.PageNumbers.IsZero() {
		return 1, nil
	}
	nodes, err := s.session.FindMany(nil, s.site.PageNumbers)
	if err != nil {
		return 0, err
	}
	highest := 1
	for _, n := range nodes {
		text, err := s.session.TextOf(n)
		if err != nil {
			return 0, err
		}
		for _, m := range pageNumberRe.FindAllString(text, -1) {
			if i, err := strconv.Atoi(m); err == nil && i > highest {
				highest = i
			}
		}
	}
	return highest, nil
}

// ResultURLs loads result page page of ss and collects the detail page
// urls in the order the result cards appear. An invalid result page yields
// no urls.
func (s *Scraper) ResultURLs(ctx context.Context, ss *SearchSession, page int) ([]string, error) {
	logger := log.LoggerFromContext(ctx)
	s.transition(ctx, ss, PaginationLoop)
	ss.Page = page
	ss.URLs = nil

	pageURL := s.site.ResultsPageURL(ss.Term, page)
	if err := s.navigate(ctx, pageURL); err != nil {
		if errors.Is(err, ErrInvalidPage) {
			logger.Warn(fmt.Sprintf("result page %d is not valid, skipping it", page), slog.String("url", pageURL))
			return nil, nil
		}
		return nil, err
	}

	cards, err := s.session.FindMany(nil, s.site.ResultCards)
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(s.session.Current().URL())
	seen := map[string]bool{}
	urls := []string{}
	for _, card := range cards {
		href, ok, err := s.session.AttributeOf(card, "href")
		if err != nil {
			return nil, err
		}
		if !ok || href == "" {
			continue
		}
		abs, err := resolve(base, href)
		if err != nil {
			logger.Warn(fmt.Sprintf("ignoring result card link %s: %v", href, err))
			continue
		}
		if !seen[abs] {
			seen[abs] = true
			urls = append(urls, abs)
		}
	}
	logger.Debug(fmt.Sprintf("found %d detail page url(s) on result page %d", len(urls), page))
	ss.URLs = urls
	return urls, nil
}

func resolve(base *url.URL, href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	// The path is kept as linked, a trailing slash can name another page.
	return purell.NormalizeURL(u,
		purell.FlagsSafe|
			purell.FlagRemoveDotSegments|
			purell.FlagRemoveFragment|
			purell.FlagSortQuery), nil
}

// navigate loads pageURL and checks it for the invalid page marker.
func (s *Scraper) navigate(ctx context.Context, pageURL string, interactions ...*types.Interaction) error {
	if _, err := s.session.Navigate(ctx, pageURL, interactions...); err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) {
			return fmt.Errorf("%w: %v", ErrInvalidPage, err)
		}
		return err
	}
	invalid, err := s.present(s.site.InvalidPage)
	if err != nil {
		return err
	}
	if invalid {
		return fmt.Errorf("%w: %s", ErrInvalidPage, pageURL)
	}
	return nil
}

// ScrapePage visits a detail page and extracts its record. It fails with
// ErrInvalidPage, a *pagedef.ExtractionError or a *browser.SessionError.
func (s *Scraper) ScrapePage(ctx context.Context, pageURL string) (*recipe.Record, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("url", pageURL))
	ctx = log.ContextWithLogger(ctx, logger)
	if err := s.navigate(ctx, pageURL, s.site.DetailPopup...); err != nil {
		return nil, err
	}

	var root *dom.Node
	if s.site.Root != nil {
		n, err := s.session.FindOne(nil, *s.site.Root)
		if err != nil {
			return nil, &pagedef.ExtractionError{Field: "root", Locator: *s.site.Root, Err: err}
		}
		root = n
	}
	res, err := s.interpreter.Interpret(ctx, s.session, root, s.site.Definition)
	if err != nil {
		return nil, err
	}
	s.status.NrDropped += len(res.Dropped)

	images, err := s.imageURLs(root)
	if err != nil {
		return nil, err
	}
	rec, err := recipe.NewRecord(pageURL, res.Values, images)
	if err != nil {
		return nil, err
	}
	logger.Debug("extracted record", slog.Any("values", res))
	return rec, nil
}

func (s *Scraper) imageURLs(root *dom.Node) ([]string, error) {
	images := []string{}
	if s.site.Images.IsZero() {
		return images, nil
	}
	nodes, err := s.session.FindMany(root, s.site.Images)
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(s.session.Current().URL())
	for _, n := range nodes {
		src, ok, err := s.session.AttributeOf(n, s.site.imageAttr())
		if err != nil {
			return nil, err
		}
		if !ok || src == "" {
			continue
		}
		if u, err := url.Parse(src); err == nil && base != nil {
			src = base.ResolveReference(u).String()
		}
		images = append(images, src)
	}
	return images, nil
}

// Run walks all result pages of term and hands the records of every page
// to h. Records h already knows are not scraped. A detail page that cannot
// be scraped is logged and skipped; session failures and errors returned by
// h end the run.
func (s *Scraper) Run(ctx context.Context, term string, pages int, h PageHandler) (types.RunStatus, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("term", term))
	ctx = log.ContextWithLogger(ctx, logger)
	s.status = types.RunStatus{SearchTerm: term, LastScrapeStart: time.Now()}
	err := s.run(ctx, term, pages, h)
	s.status.LastScrapeEnd = time.Now()
	if err == nil {
		logger.Info(fmt.Sprintf("scraped %d record(s) from %d result page(s)", s.status.NrItems, s.status.NrPages))
	}
	return s.status, err
}

func (s *Scraper) run(ctx context.Context, term string, pages int, h PageHandler) error {
	ss, err := s.Search(ctx, term, pages)
	if err != nil {
		return err
	}
	if ss.State == NoResults {
		s.transition(ctx, ss, Done)
		return nil
	}

	for page := 1; page <= ss.TotalPages; page++ {
		urls, err := s.ResultURLs(ctx, ss, page)
		if err != nil {
			return err
		}
		s.status.NrPages++
		records := []*recipe.Record{}
		for _, u := range urls {
			rec, err := s.visit(ctx, ss, u, h)
			if err != nil {
				return err
			}
			if rec != nil {
				records = append(records, rec)
			}
		}
		if len(records) == 0 {
			continue
		}
		if err := h.HandlePage(ctx, term, page, records); err != nil {
			return err
		}
		s.status.NrItems += len(records)
	}
	s.transition(ctx, ss, Done)
	return nil
}

// visit returns a nil record for skipped pages. Only errors that end the
// run are returned.
func (s *Scraper) visit(ctx context.Context, ss *SearchSession, pageURL string, h PageHandler) (*recipe.Record, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("url", pageURL))
	itemID, err := recipe.ItemIDFromURL(pageURL)
	if err != nil {
		logger.Warn(fmt.Sprintf("skipping page: %v", err))
		s.status.NrErrors++
		return nil, nil
	}
	exists, err := h.Exists(ctx, itemID)
	if err != nil {
		logger.Warn(fmt.Sprintf("could not check whether %s exists, scraping it: %v", itemID, err))
	}
	if exists {
		logger.Debug(fmt.Sprintf("record %s exists already, skipping", itemID))
		s.status.NrSkipped++
		return nil, nil
	}

	s.transition(ctx, ss, DetailPageVisit)
	rec, err := s.ScrapePage(ctx, pageURL)
	var extErr *pagedef.ExtractionError
	switch {
	case err == nil:
		s.transition(ctx, ss, Extracted)
		return rec, nil
	case errors.Is(err, ErrInvalidPage):
		s.transition(ctx, ss, ExtractionFailed)
		logger.Warn(fmt.Sprintf("page not found, skipping: %v", err))
		s.status.NrErrors++
		return nil, nil
	case errors.As(err, &extErr):
		s.transition(ctx, ss, ExtractionFailed)
		if s.opts.MissingRequired == PolicyAbortRun {
			return nil, err
		}
		logger.Warn(fmt.Sprintf("skipping page: %v", err))
		s.status.NrErrors++
		return nil, nil
	default:
		s.transition(ctx, ss, ExtractionFailed)
		return nil, err
	}
}

// Status returns the counters of the current or last run.
func (s *Scraper) Status() types.RunStatus {
	return s.status
}
