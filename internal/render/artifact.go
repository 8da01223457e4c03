// Package render turns a document plus a resolved template into a pure,
// serializable artifact tree. Byte-level output (PDF, email bodies) is the
// delivery layer's job; nothing in here may read the clock or any other
// non-input state.
package render

import "encoding/json"

// Node is one element of the artifact tree.
type Node struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	Children []*Node           `json:"children,omitempty"`
}

// El builds an element node.
func El(tag string, children ...*Node) *Node {
	return &Node{Tag: tag, Children: children}
}

// Text builds a text-bearing node.
func Text(tag, text string) *Node {
	return &Node{Tag: tag, Text: text}
}

// Attr sets an attribute and returns the node for chaining.
func (n *Node) Attr(key, value string) *Node {
	if n.Attrs == nil {
		n.Attrs = map[string]string{}
	}
	n.Attrs[key] = value
	return n
}

// Append adds children, skipping nils so optional blocks can collapse.
func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		if c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

// Encode serializes the artifact canonically. encoding/json writes map keys
// in sorted order, so equal trees encode to equal bytes.
func (n *Node) Encode() ([]byte, error) {
	return json.Marshal(n)
}
