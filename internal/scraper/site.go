package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/locator"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/pagedef"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/types"
)

// Site describes how a recipe site is searched and how its detail pages are
// turned into records. Templates use $searchwords and $pagenum.
type Site struct {
	Name        string           `yaml:"name"`
	BaseURL     string           `yaml:"base_url"`
	SearchURL   string           `yaml:"search_url"`
	ResultsURL  string           `yaml:"results_url"`
	NoResults   locator.Locator  `yaml:"no_results"`
	InvalidPage locator.Locator  `yaml:"invalid_page"`
	ResultCards locator.Locator  `yaml:"result_cards"`
	PageNumbers locator.Locator  `yaml:"page_numbers,omitempty"`
	Root        *locator.Locator `yaml:"root,omitempty"`
	Images      locator.Locator  `yaml:"images,omitempty"`
	ImageAttr   string           `yaml:"image_attr,omitempty"`
	// Consent is dismissed once per session, DetailPopup on every detail page.
	Consent     []*types.Interaction `yaml:"consent,omitempty"`
	DetailPopup []*types.Interaction `yaml:"detail_popup,omitempty"`
	Definition  pagedef.Definition   `yaml:"definition"`
}

func (s *Site) Validate() error {
	if s.SearchURL == "" || s.ResultsURL == "" {
		return errors.New("site needs a search_url and a results_url")
	}
	for name, loc := range map[string]locator.Locator{
		"no_results":   s.NoResults,
		"invalid_page": s.InvalidPage,
		"result_cards": s.ResultCards,
	} {
		if err := loc.Validate(); err != nil {
			return fmt.Errorf("site locator %s: %w", name, err)
		}
	}
	if s.Root != nil {
		if err := s.Root.Validate(); err != nil {
			return fmt.Errorf("site locator root: %w", err)
		}
	}
	if err := s.Definition.Validate(); err != nil {
		return fmt.Errorf("site %s: %w", s.Name, err)
	}
	return nil
}

// SearchPageURL returns the url of the search for term.
func (s *Site) SearchPageURL(term string) string {
	return expand(s.SearchURL, term, 1)
}

// ResultsPageURL returns the url of result page number page for term.
func (s *Site) ResultsPageURL(term string, page int) string {
	return expand(s.ResultsURL, term, page)
}

// expand fills in the url template. Spaces of the search term become '+'.
func expand(tmpl, term string, page int) string {
	return os.Expand(tmpl, func(key string) string {
		switch key {
		case "searchwords":
			return url.QueryEscape(term)
		case "pagenum":
			return strconv.Itoa(page)
		default:
			return ""
		}
	})
}

func (s *Site) imageAttr() string {
	if s.ImageAttr == "" {
		return "src"
	}
	return s.ImageAttr
}

func xpath(v string) locator.Locator { return locator.ByXPath(v) }

// DefaultSite returns the BBC Good Food site.
func DefaultSite() *Site {
	return &Site{
		Name:        "bbcgoodfood",
		BaseURL:     "https://www.bbcgoodfood.com/",
		SearchURL:   "https://www.bbcgoodfood.com/search?q=$searchwords",
		ResultsURL:  "https://www.bbcgoodfood.com/search/recipes/page/$pagenum/?q=$searchwords&sort=-relevance",
		NoResults:   xpath("//div[(@class='col-12 template-search-universal__no-results')]"),
		InvalidPage: xpath("//div[(@class='template-error__content')]"),
		ResultCards: xpath("//a[(@class='body-copy-small standard-card-new__description')]"),
		PageNumbers: xpath("//div[contains(@class,'pagination')]//a[contains(@class,'pagination-item')]"),
		Images:      xpath("//div[(@class='post recipe')]//div[(@class='post-header__image-container')]//img[(@class='image__img')]"),
		ImageAttr:   "src",
		Consent: []*types.Interaction{
			{Type: types.InteractionTypeClick, Selector: "//button[(@class=' css-1x23ujx')]"},
		},
		DetailPopup: []*types.Interaction{
			{Type: types.InteractionTypeClick, Selector: "//button[(@class='pn-widget__link pn-widget__link--secondary unbutton')]", Frame: "iframe"},
		},
		Definition: pagedef.Definition{
			{Key: "recipe_name", Shape: pagedef.Scalar{
				Locator: xpath("//div[(@class='post recipe')]//h1[(@class='heading-1')]"),
			}},
			{Key: "ingredients", Shape: pagedef.ListOfScalars{
				ItemKey: "ingredient",
				Locator: xpath("//div[(@class='post recipe')]//section[(@class='recipe__ingredients col-12 mt-md col-lg-6')]//li[(@class='pb-xxs pt-xxs list-item list-item--separator')]"),
			}},
			{Key: "method", Shape: pagedef.ListOfPairs{
				Items: xpath("//div[(@class='post recipe')]//section[(@class='recipe__method-steps mb-lg col-12 col-lg-6')]//li[(@class='pb-xs pt-xs list-item')]"),
				Fields: []pagedef.PairField{
					{Name: "method_step", Locator: xpath("./span[(@class='mb-xxs heading-6')]")},
					{Name: "method_instructions", Locator: locator.ByTag("p")},
				},
			}},
			{Key: "nutritional_info", Shape: pagedef.ListOfPairs{
				Items: xpath("//div[(@class='post recipe')]//tr[(@class='key-value-blocks__item')]"),
				Fields: []pagedef.PairField{
					{Name: "nutritional_info", Locator: xpath("./td[(@class='key-value-blocks__key')]")},
					{Name: "nutritional_value", Locator: xpath("./td[(@class='key-value-blocks__value')]")},
				},
			}},
			{Key: "planning_info", Shape: pagedef.ListOfPairs{
				Items: xpath("//div[(@class='post recipe')]//div[(@class='icon-with-text time-range-list cook-and-prep-time post-header__cook-and-prep-time')]//li[(@class='body-copy-small list-item')]"),
				Fields: []pagedef.PairField{
					{Name: "prep_stage", Locator: xpath(".//span[(@class='body-copy-bold mr-xxs')]")},
					{Name: "prep_time", Locator: xpath(".//time")},
				},
			}},
		},
	}
}
