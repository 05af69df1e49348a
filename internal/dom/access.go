package dom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/jsonquery"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/locator"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FindOne returns the first node matching loc relative to context. It
// fails with ErrElementNotFound when there is no match.
func FindOne(context *Node, loc locator.Locator) (*Node, error) {
	nodes, err := FindMany(context, loc)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, loc)
	}
	return nodes[0], nil
}

// FindMany returns all nodes matching loc relative to context in document
// order. Zero matches is not an error. The only error is a stale context.
func FindMany(context *Node, loc locator.Locator) ([]*Node, error) {
	if context.stale() {
		return nil, ErrStaleElement
	}
	switch loc.Strategy() {
	case locator.XPath:
		return context.xpath(loc.Value()), nil
	case locator.JSONLD:
		return context.jsonLD(loc.Value()), nil
	case locator.CSS:
		return context.css(loc.Value()), nil
	case locator.TagName:
		return context.css(loc.Value()), nil
	case locator.ID:
		return context.css(fmt.Sprintf("[id=%q]", loc.Value())), nil
	case locator.Class:
		return context.css(fmt.Sprintf("[class~=%q]", loc.Value())), nil
	default:
		// locators are validated on construction, so this means a zero Locator
		return nil, nil
	}
}

// TextOf returns the rendered text of n with whitespace collapsed. An
// element without text yields "".
func TextOf(n *Node) (string, error) {
	if n.stale() {
		return "", ErrStaleElement
	}
	if n.json != nil {
		return strings.TrimSpace(n.json.InnerText()), nil
	}
	var sb strings.Builder
	renderText(n.html, &sb)
	return strings.Join(strings.Fields(sb.String()), " "), nil
}

// AttributeOf returns the value of attribute name on n. The boolean is
// false when the attribute is absent.
func AttributeOf(n *Node, name string) (string, bool, error) {
	if n.stale() {
		return "", false, ErrStaleElement
	}
	if n.json != nil {
		child := n.json.SelectElement(name)
		if child == nil {
			return "", false, nil
		}
		return strings.TrimSpace(child.InnerText()), true, nil
	}
	for _, a := range n.html.Attr {
		if a.Key == name {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

func (n *Node) wrapHTML(nodes []*html.Node) []*Node {
	result := make([]*Node, 0, len(nodes))
	for _, h := range nodes {
		result = append(result, &Node{doc: n.doc, html: h})
	}
	return result
}

func (n *Node) wrapJSON(nodes []*jsonquery.Node) []*Node {
	result := make([]*Node, 0, len(nodes))
	for _, j := range nodes {
		result = append(result, &Node{doc: n.doc, json: j})
	}
	return result
}

func (n *Node) xpath(expr string) []*Node {
	if n.json != nil {
		return n.wrapJSON(jsonquery.Find(n.json, expr))
	}
	return n.wrapHTML(htmlquery.Find(n.html, expr))
}

func (n *Node) css(sel string) []*Node {
	if n.json != nil {
		return nil
	}
	return n.wrapHTML(goquery.NewDocumentFromNode(n.html).Find(sel).Nodes)
}

// jsonLD evaluates expr against every JSON-LD block below n. Blocks are
// parsed once per document.
func (n *Node) jsonLD(expr string) []*Node {
	if n.json != nil {
		return n.xpath(expr)
	}
	var result []*Node
	scripts := goquery.NewDocumentFromNode(n.html).Find(`script[type="application/ld+json"]`)
	if n.html.DataAtom == atom.Script {
		scripts = scripts.AddNodes(n.html)
	}
	for _, script := range scripts.Nodes {
		root, ok := n.doc.jsonld[script]
		if !ok {
			parsed, err := jsonquery.Parse(strings.NewReader(rawText(script)))
			if err != nil {
				// broken structured data is treated like missing structured data
				parsed = nil
			}
			n.doc.jsonld[script] = parsed
			root = parsed
		}
		if root == nil {
			continue
		}
		result = append(result, n.wrapJSON(jsonquery.Find(root, expr))...)
	}
	return result
}

func rawText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func renderText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		case atom.Br:
			sb.WriteString(" ")
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(c, sb)
	}
	if n.Type == html.ElementNode && blockElements[n.DataAtom] {
		sb.WriteString(" ")
	}
}

// text of block level elements is separated from its neighbours
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.Tr: true, atom.Td: true, atom.Th: true, atom.Table: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
}
