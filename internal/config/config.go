// Package config reads the pipeline configuration from a yml file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/fetch"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/pipeline"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/scraper"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/storage"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

type SearchConfig struct {
	Terms []string `yaml:"terms" env:"SEARCH_TERMS" env-separator:","`
	// Pages is the number of result pages per term. 0 reads it from the
	// pagination of the first result page.
	Pages int `yaml:"pages" env:"SEARCH_PAGES" env-default:"0"`
}

type DatabaseConfig struct {
	DSN   string `yaml:"dsn" env:"DATABASE_DSN" env-default:"recipes.db"`
	Table string `yaml:"table" env:"DATABASE_TABLE" env-default:"recipe"`
	// Disabled skips deduplication and persistence to tables.
	Disabled bool `yaml:"disabled" env:"DATABASE_DISABLED"`
}

type PolicyConfig struct {
	MissingRequired scraper.Policy         `yaml:"missing_required" env-default:"skip_page"`
	OnPersistError  pipeline.PersistPolicy `yaml:"on_persist_error" env-default:"abort"`
	LenientScalars  bool                   `yaml:"lenient_scalars"`
}

// Config defines the overall structure of the pipeline configuration.
// Values will be taken from a config yml file or environment variables
// or both.
type Config struct {
	Search  SearchConfig        `yaml:"search"`
	Fetcher fetch.FetcherConfig `yaml:"fetcher"`
	// Site overrides the built in site definition.
	Site     *scraper.Site         `yaml:"site,omitempty"`
	Storage  storage.StorageConfig `yaml:"storage"`
	Database DatabaseConfig        `yaml:"database"`
	Policy   PolicyConfig          `yaml:"policy"`
}

// NewConfig reads the configuration at configPath. If there is no such
// file the configuration is read from the environment only.
func NewConfig(configPath string) (*Config, error) {
	var config Config
	if _, err := os.Stat(configPath); configPath != "" && err == nil {
		if err := cleanenv.ReadConfig(configPath, &config); err != nil {
			return nil, fmt.Errorf("error while reading config %s: %w", configPath, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&config); err != nil {
			return nil, fmt.Errorf("error while reading config from the environment: %w", err)
		}
	}
	if config.Site == nil {
		config.Site = scraper.DefaultSite()
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if err := c.Site.Validate(); err != nil {
		return err
	}
	if c.Search.Pages < 0 {
		return errors.New("search.pages must not be negative")
	}
	switch c.Policy.MissingRequired {
	case scraper.PolicySkipPage, scraper.PolicyAbortRun, "":
	default:
		return fmt.Errorf("policy.missing_required must be %s or %s", scraper.PolicySkipPage, scraper.PolicyAbortRun)
	}
	switch c.Policy.OnPersistError {
	case pipeline.PersistAbort, pipeline.PersistSkip, "":
	default:
		return fmt.Errorf("policy.on_persist_error must be %s or %s", pipeline.PersistAbort, pipeline.PersistSkip)
	}
	switch c.Storage.Type {
	case storage.FILE_STORAGE_TYPE, storage.STDOUT_STORAGE_TYPE, "":
	case storage.S3_STORAGE_TYPE:
		if c.Storage.Bucket == "" {
			return errors.New("s3 storage needs a bucket")
		}
	default:
		return fmt.Errorf("storage of type %s not implemented", c.Storage.Type)
	}
	switch c.Fetcher.Type {
	case fetch.STATIC_FETCHER_TYPE, fetch.DYNAMIC_FETCHER_TYPE, "":
	default:
		return fmt.Errorf("fetcher of type %s not implemented", c.Fetcher.Type)
	}
	if !c.Database.Disabled && c.Database.DSN == "" {
		return errors.New("database.dsn is empty")
	}
	return nil
}

// PipelineOptions returns the pipeline options of this configuration.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Table:           c.Database.Table,
		OnPersistError:  c.Policy.OnPersistError,
		PerRecordFiles:  c.Storage.PerRecordFiles,
		MissingRequired: c.Policy.MissingRequired,
		LenientScalars:  c.Policy.LenientScalars,
	}
}

// Write writes the configuration as yml to w. Credentials are left out.
func (c *Config) Write(w io.Writer) error {
	redacted := *c
	redacted.Storage.AccessKeyID = ""
	redacted.Storage.SecretAccessKey = ""
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&redacted); err != nil {
		return fmt.Errorf("error while marshalling config: %w", err)
	}
	return encoder.Close()
}
