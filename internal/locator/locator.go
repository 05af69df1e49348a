// Package locator defines the (strategy, value) pairs used to find
// elements on a page.
package locator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
	"gopkg.in/yaml.v3"
)

// Strategy tells the element access layer how to interpret a locator value.
type Strategy string

const (
	XPath   Strategy = "xpath"
	CSS     Strategy = "css"
	TagName Strategy = "tag"
	ID      Strategy = "id"
	Class   Strategy = "class"
	// JSONLD evaluates an xpath expression against the page's
	// application/ld+json blocks instead of the html tree.
	JSONLD Strategy = "jsonld"
)

var strategies = []Strategy{XPath, CSS, TagName, ID, Class, JSONLD}

// Locator identifies a node or node-set relative to a context node.
// The fields are unexported so that a Locator cannot change after
// construction. Locators are comparable with ==.
type Locator struct {
	strategy Strategy
	value    string
}

// New returns a validated Locator.
func New(strategy Strategy, value string) (Locator, error) {
	l := Locator{strategy: strategy, value: value}
	if err := l.Validate(); err != nil {
		return Locator{}, err
	}
	return l, nil
}

// MustNew is like New but panics on an invalid locator. It is meant for
// package level locator definitions.
func MustNew(strategy Strategy, value string) Locator {
	l, err := New(strategy, value)
	if err != nil {
		panic(err)
	}
	return l
}

// ByXPath, ByCSS and ByTag are shorthands for the common strategies.
func ByXPath(expr string) Locator { return MustNew(XPath, expr) }
func ByCSS(sel string) Locator    { return MustNew(CSS, sel) }
func ByTag(tag string) Locator    { return MustNew(TagName, tag) }

func (l Locator) Strategy() Strategy { return l.strategy }
func (l Locator) Value() string      { return l.value }

// IsZero reports whether l is the zero Locator.
func (l Locator) IsZero() bool { return l == Locator{} }

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.strategy, l.value)
}

// Validate checks that the strategy is known and that the value can be
// compiled for that strategy.
func (l Locator) Validate() error {
	if strings.TrimSpace(l.value) == "" {
		return errors.New("locator value cannot be empty")
	}
	switch l.strategy {
	case XPath, JSONLD:
		if _, err := xpath.Compile(l.value); err != nil {
			return fmt.Errorf("invalid xpath expression %q: %w", l.value, err)
		}
	case CSS:
		if _, err := cascadia.Compile(l.value); err != nil {
			return fmt.Errorf("invalid css selector %q: %w", l.value, err)
		}
	case TagName, ID, Class:
		if strings.ContainsAny(l.value, " \t\n\"") {
			return fmt.Errorf("invalid %s value %q", l.strategy, l.value)
		}
	default:
		return fmt.Errorf("unknown locator strategy '%s', expected one of %v", l.strategy, strategies)
	}
	return nil
}

// UnmarshalYAML decodes a locator written either as a mapping
//
//	{strategy: xpath, value: "//h1"}
//
// or in the short form "xpath=//h1".
func (l *Locator) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Strategy Strategy `yaml:"strategy"`
		Value    string   `yaml:"value"`
	}
	if node.Kind == yaml.ScalarNode {
		strategy, value, found := strings.Cut(node.Value, "=")
		if !found {
			return fmt.Errorf("line %d: locator %q must have the form <strategy>=<value>", node.Line, node.Value)
		}
		raw.Strategy, raw.Value = Strategy(strategy), value
	} else if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := New(raw.Strategy, raw.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*l = parsed
	return nil
}

// MarshalYAML writes the short form.
func (l Locator) MarshalYAML() (any, error) {
	if l.IsZero() {
		return nil, nil
	}
	return l.String(), nil
}
