package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/fetch"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/locator"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/pagedef"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/pipeline"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/scraper"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configYAML = `
search:
  terms: [chicken pie, tofu]
  pages: 2
fetcher:
  type: dynamic
  page_load_wait_ms: 500
storage:
  type: s3
  bucket: recipes
  secret_access_key: s3cr3t
database:
  dsn: /tmp/recipes.db
policy:
  missing_required: abort_run
  on_persist_error: skip
site:
  name: example
  search_url: https://www.example.com/search?q=$searchwords
  results_url: https://www.example.com/search/page/$pagenum/?q=$searchwords
  no_results: css=div.no-results
  invalid_page: css=div.error
  result_cards:
    strategy: css
    value: div.results a.card
  root: css=article.recipe
  consent:
    - type: click
      selector: button.accept
  definition:
    - key: recipe_name
      type: scalar
      locator: tag=h1
    - key: ingredients
      type: list
      item_key: ingredient
      locator: css=ul.ingredients li
    - key: method
      type: pairs
      items: css=ol.method li
      fields:
        - name: method_step
          locator: css=span.step
        - name: method_instructions
          locator: tag=p
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestNewConfigFromFile(t *testing.T) {
	c, err := NewConfig(writeConfig(t, configYAML))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, []string{"chicken pie", "tofu"}, c.Search.Terms)
	assert.Equal(t, 2, c.Search.Pages)
	assert.Equal(t, fetch.DYNAMIC_FETCHER_TYPE, c.Fetcher.Type)
	assert.Equal(t, 500, c.Fetcher.PageLoadWaitMS)
	assert.Equal(t, 30, c.Fetcher.TimeoutS, "default")
	assert.Equal(t, storage.S3_STORAGE_TYPE, c.Storage.Type)
	assert.Equal(t, "raw_data", c.Storage.Root, "default")
	assert.Equal(t, "/tmp/recipes.db", c.Database.DSN)
	assert.Equal(t, "recipe", c.Database.Table, "default")
	assert.Equal(t, scraper.PolicyAbortRun, c.Policy.MissingRequired)
	assert.Equal(t, pipeline.PersistSkip, c.Policy.OnPersistError)

	require.NotNil(t, c.Site)
	assert.Equal(t, "example", c.Site.Name)
	assert.Equal(t, locator.ByCSS("div.results a.card"), c.Site.ResultCards)
	assert.Equal(t, locator.ByCSS("article.recipe"), *c.Site.Root)
	require.Len(t, c.Site.Consent, 1)
	assert.Equal(t, "button.accept", c.Site.Consent[0].Selector)
	assert.Equal(t, []string{"recipe_name", "ingredients", "method"}, c.Site.Definition.Keys())
	method, ok := c.Site.Definition.Lookup("method")
	require.True(t, ok)
	assert.Len(t, method.Shape.(pagedef.ListOfPairs).Fields, 2)

	opts := c.PipelineOptions()
	assert.Equal(t, "recipe", opts.Table)
	assert.Equal(t, pipeline.PersistSkip, opts.OnPersistError)
}

func TestNewConfigDefaults(t *testing.T) {
	t.Setenv("SEARCH_TERMS", "chicken pie,leek soup")
	t.Setenv("DATABASE_DSN", "env.db")
	t.Setenv("S3_SECRET_ACCESS_KEY", "from-env")

	c, err := NewConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, []string{"chicken pie", "leek soup"}, c.Search.Terms)
	assert.Equal(t, 0, c.Search.Pages)
	assert.Equal(t, "env.db", c.Database.DSN)
	assert.Equal(t, "from-env", c.Storage.SecretAccessKey)
	assert.Equal(t, fetch.STATIC_FETCHER_TYPE, c.Fetcher.Type)
	assert.Equal(t, 2.0, c.Fetcher.RequestsPerSecond)
	assert.Equal(t, storage.FILE_STORAGE_TYPE, c.Storage.Type)
	assert.Equal(t, scraper.PolicySkipPage, c.Policy.MissingRequired)
	assert.Equal(t, pipeline.PersistAbort, c.Policy.OnPersistError)
	assert.Equal(t, "bbcgoodfood", c.Site.Name)
}

func TestNewConfigInvalidFile(t *testing.T) {
	_, err := NewConfig(writeConfig(t, "site:\n  no_results: xpath\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"negative pages", func(c *Config) { c.Search.Pages = -1 }},
		{"unknown missing policy", func(c *Config) { c.Policy.MissingRequired = "ignore" }},
		{"unknown persist policy", func(c *Config) { c.Policy.OnPersistError = "retry" }},
		{"unknown storage", func(c *Config) { c.Storage.Type = "floppy" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = storage.S3_STORAGE_TYPE }},
		{"unknown fetcher", func(c *Config) { c.Fetcher.Type = "telnet" }},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }},
		{"invalid site", func(c *Config) { c.Site = &scraper.Site{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConfig("")
			require.NoError(t, err)
			require.NoError(t, c.Validate())
			tt.modify(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestWriteRedactsCredentials(t *testing.T) {
	c, err := NewConfig(writeConfig(t, configYAML))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Write(&buf))
	assert.NotContains(t, buf.String(), "s3cr3t")
	assert.Equal(t, "s3cr3t", c.Storage.SecretAccessKey, "the config itself is unchanged")

	back, err := NewConfig(writeConfig(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, c.Site, back.Site)
	assert.Equal(t, c.Search, back.Search)
}

func TestWriteDefaultSite(t *testing.T) {
	c, err := NewConfig("")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Write(&buf))
	back, err := NewConfig(writeConfig(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, scraper.DefaultSite(), back.Site)
}
