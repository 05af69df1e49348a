// Package pipeline runs the whole collection for a search term: scrape the
// result pages, skip known records, store json batches and images and
// persist the records to the database.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/browser"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/database"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/fetch"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/log"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/recipe"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/scraper"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/storage"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/types"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/utils"
	"github.com/google/uuid"
)

// PersistPolicy decides what a failed storage or database write does to a
// run.
type PersistPolicy string

const (
	PersistAbort PersistPolicy = "abort"
	PersistSkip  PersistPolicy = "skip"
)

const (
	dataFolder    = "data"
	imagesFolder  = "images"
	recordsFolder = "records"
)

type Options struct {
	// Table is the parent table of the database layout.
	Table           string
	OnPersistError  PersistPolicy
	PerRecordFiles  bool
	MissingRequired scraper.Policy
	LenientScalars  bool
}

// Pipeline wires a site, a fetcher, a storage and an optional database.
// Without a database nothing is deduplicated or persisted to tables.
type Pipeline struct {
	site       *scraper.Site
	fc         *fetch.FetcherConfig
	storage    storage.Storage
	db         *database.RecipeDB
	layout     *database.Layout
	opts       Options
	newSession func(context.Context, *fetch.FetcherConfig) (*browser.Session, error)
}

func New(site *scraper.Site, fc *fetch.FetcherConfig, st storage.Storage, db *database.RecipeDB, opts Options) (*Pipeline, error) {
	if err := site.Validate(); err != nil {
		return nil, fmt.Errorf("invalid site %s: %w", site.Name, err)
	}
	if st == nil {
		return nil, errors.New("pipeline needs a storage")
	}
	switch opts.OnPersistError {
	case "":
		opts.OnPersistError = PersistAbort
	case PersistAbort, PersistSkip:
	default:
		return nil, fmt.Errorf("unknown policy for persistence errors: %s", opts.OnPersistError)
	}
	if opts.Table == "" {
		opts.Table = "recipe"
	}
	layout, err := database.LayoutFromDefinition(site.Definition, opts.Table)
	if err != nil {
		return nil, err
	}
	if fc == nil {
		fc = &fetch.FetcherConfig{}
	}
	return &Pipeline{
		site:       site,
		fc:         fc,
		storage:    st,
		db:         db,
		layout:     layout,
		opts:       opts,
		newSession: browser.NewSessionFromConfig,
	}, nil
}

// Layout returns the database layout derived from the site's page
// definition.
func (p *Pipeline) Layout() *database.Layout {
	return p.layout
}

// Run collects the recipes for term. pages is the number of result pages,
// 0 detects it. The browser session lives for this one run.
func (p *Pipeline) Run(ctx context.Context, term string, pages int) (types.RunStatus, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("term", term))
	ctx = log.ContextWithLogger(ctx, logger)
	status := types.RunStatus{SearchTerm: term}

	session, err := p.newSession(ctx, p.fc)
	if err != nil {
		return status, err
	}
	defer session.Close()

	s, err := scraper.New(p.site, session, scraper.Options{
		MissingRequired: p.opts.MissingRequired,
		LenientScalars:  p.opts.LenientScalars,
	})
	if err != nil {
		return status, err
	}
	h := &handler{p: p}
	status, err = s.Run(ctx, term, pages, h)
	status.NrImages += h.nrImages
	status.NrErrors += h.nrErrors
	if err != nil {
		logger.Error(fmt.Sprintf("run ended early: %v", err))
	}
	return status, err
}

// RunAll runs every term in turn. A failing term does not stop the others.
func (p *Pipeline) RunAll(ctx context.Context, terms []string, pages int) ([]types.RunStatus, error) {
	statuses := []types.RunStatus{}
	var errs []error
	for _, term := range terms {
		st, err := p.Run(ctx, term, pages)
		statuses = append(statuses, st)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", term, err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return statuses, errors.Join(errs...)
}

// Load persists the json batches stored for term to the database and
// returns the number of records.
func (p *Pipeline) Load(ctx context.Context, term string) (int, error) {
	if p.db == nil {
		return 0, errors.New("loading needs a database")
	}
	logger := log.LoggerFromContext(ctx).With(slog.String("term", term))
	folder := path.Join(utils.FolderName(term), dataFolder)
	files, err := p.storage.ListFiles(ctx, folder, ".json")
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		logger.Warn(fmt.Sprintf("no json files in %s", folder))
		return 0, nil
	}
	n := 0
	for _, f := range files {
		var records []*recipe.Record
		if err := p.storage.ReadJSON(ctx, f, &records); err != nil {
			return n, fmt.Errorf("error while reading %s: %w", f, err)
		}
		if err := p.db.Persist(ctx, p.layout, records); err != nil {
			return n, err
		}
		logger.Info(fmt.Sprintf("loaded %d record(s) from %s", len(records), f))
		n += len(records)
	}
	return n, nil
}

// handler stores the records of every result page of one run.
type handler struct {
	p        *Pipeline
	nrImages int
	nrErrors int
}

func (h *handler) Exists(ctx context.Context, itemID string) (bool, error) {
	if h.p.db == nil {
		return false, nil
	}
	return h.p.db.RecordExists(ctx, h.p.layout.Table, h.p.layout.IDColumn, itemID)
}

func (h *handler) HandlePage(ctx context.Context, term string, page int, records []*recipe.Record) error {
	logger := log.LoggerFromContext(ctx).With(slog.Int("page", page))
	err := h.store(ctx, term, records)
	if err == nil {
		return nil
	}
	if h.p.opts.OnPersistError == PersistSkip {
		logger.Error(fmt.Sprintf("skipping %d record(s) of result page %d: %v", len(records), page, err))
		h.nrErrors++
		return nil
	}
	return err
}

func (h *handler) store(ctx context.Context, term string, records []*recipe.Record) error {
	logger := log.LoggerFromContext(ctx)
	folder := utils.FolderName(term)
	batch := fmt.Sprintf("%s-%s", folder, uuid.NewString())
	if err := h.p.storage.SaveJSON(ctx, records, path.Join(folder, dataFolder), batch); err != nil {
		return err
	}
	for _, rec := range records {
		if h.p.opts.PerRecordFiles {
			if err := h.p.storage.SaveJSON(ctx, rec, path.Join(folder, recordsFolder), rec.ItemID); err != nil {
				return err
			}
		}
		for i, u := range rec.ImageURLs {
			name := imageName(rec.ItemID, i, utils.FileExtFromURL(u, "jpg"))
			// a missing image does not invalidate the record
			if err := h.p.storage.SaveImage(ctx, u, path.Join(folder, imagesFolder), name); err != nil {
				logger.Warn(fmt.Sprintf("could not save image of %s: %v", rec.ItemID, err))
				h.nrErrors++
				continue
			}
			h.nrImages++
		}
	}
	if h.p.db == nil {
		return nil
	}
	return h.p.db.Persist(ctx, h.p.layout, records)
}

// imageName is <item_id>.<ext> for the first image and <item_id>-<n>.<ext>
// for the following ones.
func imageName(itemID string, i int, ext string) string {
	if i == 0 {
		return fmt.Sprintf("%s.%s", itemID, ext)
	}
	return fmt.Sprintf("%s-%d.%s", itemID, i+1, ext)
}
