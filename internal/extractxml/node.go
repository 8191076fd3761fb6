package extractxml

import (
	"strings"

	"github.com/antchfx/xmlquery"
)

// Node is the read-only view of a parsed element the extractor works against.
//
// Lookups are by local element/attribute name and only consider direct
// children. Absent children are reported as nil, never as an error.
type Node interface {
	// Name is the element's local name.
	Name() string

	// Child returns the first element child called name, or nil.
	Child(name string) Node

	// Children returns every element child called name, in document order.
	Children(name string) []Node

	// Elements returns every element child, in document order.
	Elements() []Node

	// Attr returns the value of the attribute called name.
	Attr(name string) (string, bool)

	// Text returns the concatenated text content, trimmed.
	Text() string
}

type xmlNode struct {
	n *xmlquery.Node
}

// wrap converts an xmlquery node into a Node, keeping nil as an untyped nil.
func wrap(n *xmlquery.Node) Node {
	if n == nil {
		return nil
	}
	return xmlNode{n: n}
}

func (x xmlNode) Name() string { return x.n.Data }

func (x xmlNode) Child(name string) Node {
	for c := x.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			return wrap(c)
		}
	}
	return nil
}

func (x xmlNode) Children(name string) []Node {
	var out []Node
	for c := x.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			out = append(out, wrap(c))
		}
	}
	return out
}

func (x xmlNode) Elements() []Node {
	var out []Node
	for c := x.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, wrap(c))
		}
	}
	return out
}

func (x xmlNode) Attr(name string) (string, bool) {
	for _, a := range x.n.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (x xmlNode) Text() string {
	return strings.TrimSpace(x.n.InnerText())
}

// documentElement returns the first element directly under the document node.
func documentElement(doc *xmlquery.Node) Node {
	if doc == nil {
		return nil
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return wrap(c)
		}
	}
	return nil
}

// childText returns the trimmed text of parent's child called name, or ""
// when parent or the child is absent.
func childText(parent Node, name string) string {
	if parent == nil {
		return ""
	}
	c := parent.Child(name)
	if c == nil {
		return ""
	}
	return c.Text()
}

func attrText(n Node, name string) string {
	if n == nil {
		return ""
	}
	v, _ := n.Attr(name)
	return strings.TrimSpace(v)
}
