// Package xmltree decodes gateway XML into a small document tree and converts
// that tree into nested maps, lists and strings.
package xmltree

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Kind is the type of a Node.
type Kind int

const (
	DocumentNode Kind = iota
	ElementNode
	TextNode
)

// Attr is a single element attribute.
type Attr struct {
	Name  string
	Value string
}

// Node is a document, element or text node. Text nodes only carry Text.
type Node struct {
	Kind     Kind
	Name     string
	Attrs    []Attr
	Children []*Node
	Text     string
}

var ErrEmptyDocument = errors.New("xml document has no root element")

// Parse reads a complete XML document. Element names are reduced to their
// local part; prefixed namespace declarations keep their xmlns: prefix.
func Parse(r io.Reader) (*Node, error) {
	doc := &Node{Kind: DocumentNode}
	stack := []*Node{doc}

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}

		parent := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Node{Kind: ElementNode, Name: t.Name.Local}
			for _, a := range t.Attr {
				el.Attrs = append(el.Attrs, Attr{Name: attrName(a.Name), Value: a.Value})
			}
			parent.Children = append(parent.Children, el)
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if parent.Kind == DocumentNode {
				continue
			}
			parent.Children = append(parent.Children, &Node{Kind: TextNode, Text: string(t)})
		}
	}

	if Root(doc) == nil {
		return nil, ErrEmptyDocument
	}

	return doc, nil
}

// Root returns the document element of doc, or nil.
func Root(doc *Node) *Node {
	if doc == nil {
		return nil
	}
	for _, c := range doc.Children {
		if c.Kind == ElementNode {
			return c
		}
	}
	return nil
}

func attrName(n xml.Name) string {
	switch n.Space {
	case "":
		return n.Local
	case "xmlns":
		return "xmlns:" + n.Local
	default:
		return n.Local
	}
}
