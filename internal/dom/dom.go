// Package dom is the element access layer. It is the only package that
// queries a parsed page; everything above it works on the values returned
// by FindOne, FindMany, TextOf and AttributeOf.
package dom

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/jsonquery"
	"golang.org/x/net/html"
)

// ErrElementNotFound is returned when a required locator matched no nodes.
var ErrElementNotFound = errors.New("element not found")

// ErrStaleElement is returned when a node belongs to a page that is no
// longer the current page of its session. It wraps ErrElementNotFound.
var ErrStaleElement = fmt.Errorf("%w: stale element reference", ErrElementNotFound)

// Document is a parsed page snapshot.
type Document struct {
	url    string
	root   *html.Node
	stale  bool
	jsonld map[*html.Node]*jsonquery.Node
}

// Node is a single element of a Document. It is either an html element or
// a node of an embedded JSON-LD block.
type Node struct {
	doc  *Document
	html *html.Node
	json *jsonquery.Node
}

// Parse reads an html page. url is only kept for logging and error messages.
func Parse(r io.Reader, url string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("error while parsing html of %s: %w", url, err)
	}
	return &Document{
		url:    url,
		root:   root,
		jsonld: map[*html.Node]*jsonquery.Node{},
	}, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s, url string) (*Document, error) {
	return Parse(strings.NewReader(s), url)
}

func (d *Document) URL() string { return d.url }

// Root returns the document node.
func (d *Document) Root() *Node {
	return &Node{doc: d, html: d.root}
}

// Invalidate marks the document as no longer current. Nodes taken from it
// fail with ErrStaleElement afterwards.
func (d *Document) Invalidate() { d.stale = true }

func (d *Document) Stale() bool { return d.stale }

func (n *Node) stale() bool {
	return n == nil || n.doc == nil || n.doc.stale
}

func (n *Node) String() string {
	switch {
	case n == nil:
		return "<nil>"
	case n.json != nil:
		return fmt.Sprintf("jsonld:%s", n.json.Data)
	case n.html.Type == html.DocumentNode:
		return "#document"
	default:
		return n.html.Data
	}
}
