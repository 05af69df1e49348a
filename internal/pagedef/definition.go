// Package pagedef describes how a structured record is extracted from a
// page and interprets such descriptions against the element access layer.
package pagedef

import (
	"errors"
	"fmt"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/locator"
	"gopkg.in/yaml.v3"
)

// Shape is one of Scalar, ListOfScalars or ListOfPairs.
type Shape interface {
	kind() Kind
}

// Kind is the tag of a Shape as written in configuration files.
type Kind string

const (
	KindScalar Kind = "scalar"
	KindList   Kind = "list"
	KindPairs  Kind = "pairs"
)

// Scalar resolves to the text of a single element.
type Scalar struct {
	Locator locator.Locator
	// Optional scalars resolve to "" instead of failing the extraction
	// when the element is missing.
	Optional bool
}

// ListOfScalars resolves to one {ItemKey: text} record per matched element.
type ListOfScalars struct {
	ItemKey string
	Locator locator.Locator
}

// ListOfPairs resolves to one record per element matched by Items. Every
// record holds the text of each of Fields, located relative to the item.
type ListOfPairs struct {
	// Container is located first and Items are searched below it. A nil
	// Container means Items are searched below the context node.
	Container *locator.Locator
	Items     locator.Locator
	Fields    []PairField
}

type PairField struct {
	Name    string          `yaml:"name"`
	Locator locator.Locator `yaml:"locator"`
}

func (Scalar) kind() Kind        { return KindScalar }
func (ListOfScalars) kind() Kind { return KindList }
func (ListOfPairs) kind() Kind   { return KindPairs }

// Field maps an output key to a shape.
type Field struct {
	Key   string
	Shape Shape
}

// Definition is an ordered list of fields. Interpretation follows this order.
type Definition []Field

// Keys returns the output keys in definition order.
func (d Definition) Keys() []string {
	keys := make([]string, 0, len(d))
	for _, f := range d {
		keys = append(keys, f.Key)
	}
	return keys
}

// Lookup returns the field with the given key.
func (d Definition) Lookup(key string) (Field, bool) {
	for _, f := range d {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks that keys are unique and every shape is complete.
func (d Definition) Validate() error {
	if len(d) == 0 {
		return errors.New("page definition has no fields")
	}
	seen := map[string]bool{}
	for i, f := range d {
		if f.Key == "" {
			return fmt.Errorf("field %d has no key", i)
		}
		if seen[f.Key] {
			return fmt.Errorf("field key '%s' is defined more than once", f.Key)
		}
		seen[f.Key] = true
		if err := validateShape(f.Shape); err != nil {
			return fmt.Errorf("field '%s': %w", f.Key, err)
		}
	}
	return nil
}

func validateShape(s Shape) error {
	switch s := s.(type) {
	case Scalar:
		return s.Locator.Validate()
	case ListOfScalars:
		if s.ItemKey == "" {
			return errors.New("list needs an item key")
		}
		return s.Locator.Validate()
	case ListOfPairs:
		if s.Container != nil {
			if err := s.Container.Validate(); err != nil {
				return fmt.Errorf("container: %w", err)
			}
		}
		if err := s.Items.Validate(); err != nil {
			return fmt.Errorf("items: %w", err)
		}
		if len(s.Fields) == 0 {
			return errors.New("pairs need at least one field")
		}
		names := map[string]bool{}
		for _, pf := range s.Fields {
			if pf.Name == "" || names[pf.Name] {
				return fmt.Errorf("invalid or duplicate pair field name '%s'", pf.Name)
			}
			names[pf.Name] = true
			if err := pf.Locator.Validate(); err != nil {
				return fmt.Errorf("pair field '%s': %w", pf.Name, err)
			}
		}
		return nil
	case nil:
		return errors.New("missing shape")
	default:
		return fmt.Errorf("unsupported shape %T", s)
	}
}

// fieldYAML is the configuration file representation of a Field.
type fieldYAML struct {
	Key       string           `yaml:"key"`
	Type      Kind             `yaml:"type"`
	Locator   locator.Locator  `yaml:"locator,omitempty"`
	Optional  bool             `yaml:"optional,omitempty"`
	ItemKey   string           `yaml:"item_key,omitempty"`
	Container *locator.Locator `yaml:"container,omitempty"`
	Items     locator.Locator  `yaml:"items,omitempty"`
	Fields    []PairField      `yaml:"fields,omitempty"`
}

func (f *Field) UnmarshalYAML(node *yaml.Node) error {
	var raw fieldYAML
	if err := node.Decode(&raw); err != nil {
		return err
	}
	f.Key = raw.Key
	switch raw.Type {
	case KindScalar, "":
		f.Shape = Scalar{Locator: raw.Locator, Optional: raw.Optional}
	case KindList:
		f.Shape = ListOfScalars{ItemKey: raw.ItemKey, Locator: raw.Locator}
	case KindPairs:
		f.Shape = ListOfPairs{Container: raw.Container, Items: raw.Items, Fields: raw.Fields}
	default:
		return fmt.Errorf("line %d: field type '%s' does not exist", node.Line, raw.Type)
	}
	return nil
}

func (f Field) MarshalYAML() (any, error) {
	raw := fieldYAML{Key: f.Key}
	switch s := f.Shape.(type) {
	case Scalar:
		raw.Type, raw.Locator, raw.Optional = KindScalar, s.Locator, s.Optional
	case ListOfScalars:
		raw.Type, raw.ItemKey, raw.Locator = KindList, s.ItemKey, s.Locator
	case ListOfPairs:
		raw.Type, raw.Container, raw.Items, raw.Fields = KindPairs, s.Container, s.Items, s.Fields
	default:
		return nil, fmt.Errorf("field '%s': unsupported shape %T", f.Key, f.Shape)
	}
	return raw, nil
}
