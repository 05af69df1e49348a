package pagedef

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/dom"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/locator"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/log"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/utils"
)

// Finder is the subset of the element access layer the interpreter needs.
// A nil context node stands for the root of the current page.
type Finder interface {
	FindOne(context *dom.Node, loc locator.Locator) (*dom.Node, error)
	FindMany(context *dom.Node, loc locator.Locator) ([]*dom.Node, error)
	TextOf(n *dom.Node) (string, error)
}

// ExtractionError is returned when a required scalar could not be
// resolved. The page it was raised for should be skipped.
type ExtractionError struct {
	Field   string
	Locator locator.Locator
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("required field '%s' could not be extracted (%s): %v", e.Field, e.Locator, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SectionError reports a list-of-pairs section that was dropped because
// one of its items lacked a field.
type SectionError struct {
	Field     string
	Item      int
	PairField string
	Err       error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("section '%s' dropped: item %d has no '%s': %v", e.Field, e.Item, e.PairField, e.Err)
}

func (e *SectionError) Unwrap() error { return e.Err }

// Result holds the values produced by Interpret. Scalars are strings, lists
// are []map[string]string and never nil.
type Result struct {
	Values  map[string]any
	Dropped []*SectionError
	keys    []string
}

// Options tune the interpreter.
type Options struct {
	// LenientScalars makes every missing scalar resolve to "" as if it
	// was declared optional.
	LenientScalars bool
	// NoStaleRetry disables the single retry done when a node went stale
	// between finding it and reading its text. A retried field is looked
	// up again from its context node, lists and sections as a whole.
	NoStaleRetry bool
}

type Interpreter struct {
	opts Options
}

func NewInterpreter(opts Options) *Interpreter {
	return &Interpreter{opts: opts}
}

// Interpret resolves every field of def relative to node. A missing
// required scalar aborts with an *ExtractionError. Empty lists are not
// errors, and a list-of-pairs section with an incomplete item is dropped
// and reported in Result.Dropped.
func (in *Interpreter) Interpret(ctx context.Context, f Finder, node *dom.Node, def Definition) (*Result, error) {
	logger := log.LoggerFromContext(ctx)
	res := &Result{Values: make(map[string]any, len(def)), keys: def.Keys()}
	for _, field := range def {
		switch s := field.Shape.(type) {
		case Scalar:
			text, err := in.scalar(f, node, s.Locator)
			if err != nil {
				if errors.Is(err, dom.ErrElementNotFound) && !errors.Is(err, dom.ErrStaleElement) && (s.Optional || in.opts.LenientScalars) {
					logger.Debug(fmt.Sprintf("optional field %s not found, using empty value", field.Key))
					res.Values[field.Key] = ""
					continue
				}
				return nil, &ExtractionError{Field: field.Key, Locator: s.Locator, Err: err}
			}
			res.Values[field.Key] = text
		case ListOfScalars:
			items, err := in.list(f, node, s)
			if err != nil {
				return nil, &ExtractionError{Field: field.Key, Locator: s.Locator, Err: err}
			}
			res.Values[field.Key] = items
		case ListOfPairs:
			items, serr, err := in.pairs(f, node, field.Key, s)
			if err != nil {
				return nil, &ExtractionError{Field: field.Key, Locator: s.Items, Err: err}
			}
			if serr != nil {
				logger.Warn(serr.Error())
				res.Dropped = append(res.Dropped, serr)
			}
			res.Values[field.Key] = items
		default:
			return nil, fmt.Errorf("field '%s' has unsupported shape %T", field.Key, field.Shape)
		}
	}
	return res, nil
}

// retry runs read a second time if it failed on a stale node.
func (in *Interpreter) retry(read func() error) error {
	err := read()
	if errors.Is(err, dom.ErrStaleElement) && !in.opts.NoStaleRetry {
		err = read()
	}
	return err
}

func (in *Interpreter) scalar(f Finder, context *dom.Node, loc locator.Locator) (string, error) {
	var text string
	err := in.retry(func() error {
		var err error
		text, err = readScalar(f, context, loc)
		return err
	})
	return text, err
}

func readScalar(f Finder, context *dom.Node, loc locator.Locator) (string, error) {
	n, err := f.FindOne(context, loc)
	if err != nil {
		return "", err
	}
	return f.TextOf(n)
}

func (in *Interpreter) list(f Finder, context *dom.Node, s ListOfScalars) ([]map[string]string, error) {
	var items []map[string]string
	err := in.retry(func() error {
		var err error
		items, err = readList(f, context, s)
		return err
	})
	return items, err
}

func readList(f Finder, context *dom.Node, s ListOfScalars) ([]map[string]string, error) {
	nodes, err := f.FindMany(context, s.Locator)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]string, 0, len(nodes))
	for _, n := range nodes {
		text, err := f.TextOf(n)
		if err != nil {
			return nil, err
		}
		items = append(items, map[string]string{s.ItemKey: text})
	}
	return items, nil
}

// pairs returns a non nil *SectionError together with an empty list when
// the section has to be dropped. The plain error aborts the page.
func (in *Interpreter) pairs(f Finder, context *dom.Node, key string, s ListOfPairs) ([]map[string]string, *SectionError, error) {
	var items []map[string]string
	var serr *SectionError
	err := in.retry(func() error {
		var err error
		items, serr, err = readPairs(f, context, key, s)
		return err
	})
	return items, serr, err
}

func readPairs(f Finder, context *dom.Node, key string, s ListOfPairs) ([]map[string]string, *SectionError, error) {
	empty := []map[string]string{}
	if s.Container != nil {
		c, err := f.FindOne(context, *s.Container)
		if errors.Is(err, dom.ErrStaleElement) {
			return nil, nil, err
		}
		if err != nil {
			// a missing container is an empty section
			return empty, nil, nil
		}
		context = c
	}
	nodes, err := f.FindMany(context, s.Items)
	if err != nil {
		return nil, nil, err
	}
	items := make([]map[string]string, 0, len(nodes))
	for i, n := range nodes {
		item := make(map[string]string, len(s.Fields))
		for _, pf := range s.Fields {
			text, err := readScalar(f, n, pf.Locator)
			if errors.Is(err, dom.ErrStaleElement) {
				return nil, nil, err
			}
			if err != nil {
				return empty, &SectionError{Field: key, Item: i, PairField: pf.Name, Err: err}, nil
			}
			item[pf.Name] = text
		}
		items = append(items, item)
	}
	return items, nil, nil
}

const logTextLength = 60

// LogValue lets a Result be logged compactly. Fields keep the order of
// the definition, texts are shortened and lists logged as their length.
func (r *Result) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(r.Values))
	for _, k := range r.keys {
		switch v := r.Values[k].(type) {
		case string:
			attrs = append(attrs, slog.String(k, utils.ShortenString(v, logTextLength)))
		case []map[string]string:
			attrs = append(attrs, slog.Int(k, len(v)))
		}
	}
	return slog.GroupValue(attrs...)
}
