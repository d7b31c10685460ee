// Package xmlparse converts NF-e XML documents into validated payloads.
// Parsing happens in two layers: a generic namespace-tolerant node tree,
// and an extraction pass that walks the well-known NF-e structure with
// per-field fault tolerance.
package xmlparse

import (
	"bytes"
	"encoding/xml"
	"io"
	"regexp"
	"strings"
)

// Node is one element of a parsed XML document. Element and attribute
// names keep only their local part, so documents with or without the
// portalfiscal namespace walk the same way.
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// Parse builds a node tree from raw XML. The returned node is a synthetic
// document node whose children hold the root element, so dotted paths can
// start at the root element's name.
func Parse(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	doc := &Node{}
	stack := []*Node{doc}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				if n.Attrs == nil {
					n.Attrs = make(map[string]string)
				}
				n.Attrs[a.Name.Local] = a.Value
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, n)
			stack = append(stack, n)
		case xml.EndElement:
			top := stack[len(stack)-1]
			top.Text = strings.TrimSpace(top.Text)
			stack = stack[:len(stack)-1]
		case xml.CharData:
			stack[len(stack)-1].Text += string(t)
		}
	}
	if len(doc.Children) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return doc, nil
}

// Child returns the first direct child with the given local name, or nil.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// All returns every direct child with the given local name. The one-or-many
// item lists of an NF-e come out uniformly this way.
func (n *Node) All(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Get walks a dotted path ("nfeProc.NFe.infNFe") and returns the node it
// lands on, or nil when any level is missing. It never panics.
func (n *Node) Get(path string) *Node {
	cur := n
	for _, seg := range strings.Split(path, ".") {
		cur = cur.Child(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Value returns the trimmed text at a dotted path, or "" when absent.
func (n *Node) Value(path string) string {
	if target := n.Get(path); target != nil {
		return target.Text
	}
	return ""
}

// Attr returns the named attribute of the node, or "".
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	return n.Attrs[name]
}

var reXMLNS = regexp.MustCompile(`\s+xmlns(?::\w+)?="[^"]+"`)

// StripNamespaces removes xmlns declarations from raw XML. Used as a second
// parsing attempt for documents whose namespace handling defeats the first.
func StripNamespaces(data []byte) []byte {
	return reXMLNS.ReplaceAll(data, nil)
}
