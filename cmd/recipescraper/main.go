/*
recipescraper collects recipes from a recipe site. For every search term it
walks the search results, extracts a record from each recipe page and stores
the records as json, their images and a normalised copy in a database.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"

	"github.com/alecthomas/kong"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/config"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/database"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/log"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/pipeline"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/storage"
)

var version = "dev"

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug   bool        `short:"d" long:"debug" help:"Set log level to 'debug' and write fetched pages to the debug directory."`
	NoColor bool        `long:"no-color" help:"Disable colored log output."`

	Scrape ScrapeCmd `cmd:"" help:"Scrape recipes for the configured or given search terms."`
	Load   LoadCmd   `cmd:"" help:"Load stored json files into the database."`
	Config ConfigCmd `cmd:"" help:"Print the effective configuration."`
}

// Overrides are the flags that take precedence over the configuration.
type Overrides struct {
	Config  string   `short:"c" default:"./config.yml" help:"The location of the configuration file." type:"path"`
	Term    []string `short:"t" help:"Search term. Can be repeated and replaces the configured terms."`
	Storage string   `short:"s" help:"Storage backend (file, s3 or stdout)."`
	DSN     string   `help:"Database connection string."`
}

func (o *Overrides) load() (*config.Config, error) {
	cfg, err := config.NewConfig(o.Config)
	if err != nil {
		return nil, err
	}
	if len(o.Term) > 0 {
		cfg.Search.Terms = o.Term
	}
	if o.Storage != "" {
		cfg.Storage.Type = o.Storage
	}
	if o.DSN != "" {
		cfg.Database.DSN = o.DSN
	}
	return cfg, nil
}

type ScrapeCmd struct {
	Overrides `embed:""`
	Pages     int  `short:"p" default:"-1" help:"Number of result pages per term, 0 detects it. Negative values keep the configured number."`
	Stdout    bool `short:"o" help:"Write the records to stdout instead of the configured storage and skip the database."`
	Summary   bool `default:"true" negatable:"" help:"Print a summary table at the end."`
}

func (sc *ScrapeCmd) Run() error {
	cfg, err := sc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	if sc.Pages >= 0 {
		cfg.Search.Pages = sc.Pages
	}
	if sc.Stdout {
		cfg.Storage.Type = storage.STDOUT_STORAGE_TYPE
		cfg.Database.Disabled = true
	}
	if err := cfg.Validate(); err != nil {
		slog.Error(fmt.Sprintf("invalid configuration: %v", err))
		return err
	}
	if len(cfg.Search.Terms) == 0 {
		return errors.New("no search terms given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p, closeDB, err := newPipeline(ctx, cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer closeDB()

	slog.Info(fmt.Sprintf("scraping %d search term(s) on %s", len(cfg.Search.Terms), cfg.Site.Name))
	statuses, err := p.RunAll(ctx, cfg.Search.Terms, cfg.Search.Pages)
	if sc.Summary {
		printSummary(os.Stdout, statuses)
	}
	return err
}

type LoadCmd struct {
	Overrides `embed:""`
}

func (lc *LoadCmd) Run() error {
	cfg, err := lc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	if err := cfg.Validate(); err != nil {
		slog.Error(fmt.Sprintf("invalid configuration: %v", err))
		return err
	}
	if cfg.Database.Disabled {
		return errors.New("the database is disabled")
	}
	ctx := context.Background()
	p, closeDB, err := newPipeline(ctx, cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer closeDB()

	var errs []error
	for _, term := range cfg.Search.Terms {
		n, err := p.Load(ctx, term)
		if err != nil {
			slog.Error(fmt.Sprintf("%s: %v", term, err))
			errs = append(errs, err)
			continue
		}
		slog.Info(fmt.Sprintf("loaded %d record(s) for '%s'", n, term))
	}
	return errors.Join(errs...)
}

type ConfigCmd struct {
	Overrides `embed:""`
}

func (cc *ConfigCmd) Run() error {
	cfg, err := cc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	return cfg.Write(os.Stdout)
}

// newPipeline sets up storage, database and pipeline. The returned function
// closes the database.
func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	st, err := storage.NewStorage(ctx, &cfg.Storage, &cfg.Fetcher)
	if err != nil {
		return nil, nil, err
	}
	var db *database.RecipeDB
	closeDB := func() {}
	if !cfg.Database.Disabled {
		db, err = database.Open(cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		closeDB = func() {
			if err := db.Close(); err != nil {
				slog.Warn(fmt.Sprintf("error while closing the database: %v", err))
			}
		}
	}
	p, err := pipeline.New(cfg.Site, &cfg.Fetcher, st, db, cfg.PipelineOptions())
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return p, closeDB, nil
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

func main() {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}

	ctx := kong.Parse(&cli,
		kong.Description("Collect recipes from a recipe site."),
		kong.Vars{
			"version": string(cli.Version),
		})

	log.Debug = cli.Debug
	log.NoColor = cli.NoColor
	log.InitializeDefaultLogger()

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
