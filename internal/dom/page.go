package dom

import "github.com/ddbiasio/Data-Collection-Pipeline/internal/locator"

// Page binds the access functions to one document. A nil context node
// stands for the document root.
type Page struct {
	Doc *Document
}

func (p Page) context(n *Node) *Node {
	if n == nil {
		return p.Doc.Root()
	}
	return n
}

func (p Page) FindOne(context *Node, loc locator.Locator) (*Node, error) {
	return FindOne(p.context(context), loc)
}

func (p Page) FindMany(context *Node, loc locator.Locator) ([]*Node, error) {
	return FindMany(p.context(context), loc)
}

func (p Page) TextOf(n *Node) (string, error) {
	return TextOf(n)
}

func (p Page) AttributeOf(n *Node, name string) (string, bool, error) {
	return AttributeOf(n, name)
}
