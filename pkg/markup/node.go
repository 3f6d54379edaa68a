// Package markup parses the markup dialect into a typed tree and edits
// that tree for text reflow.
package markup

import (
	"strings"

	"boxmark/pkg/tags"
)

// TreeType is fixed when a node is parsed; layout only adds geometry.
type TreeType int

const (
	Container TreeType = iota
	ContentText
	ContentImg
	CustomLayer
)

func (t TreeType) String() string {
	switch t {
	case Container:
		return "Container"
	case ContentText:
		return "Content_Text"
	case ContentImg:
		return "Content_Img"
	case CustomLayer:
		return "CustomLayer"
	}
	return "Unknown"
}

// UnknownTag is the tag id of elements that could not be classified.
const UnknownTag = -1

// Node is an element or text run of a parsed tree. Layout results are
// Nodes too, with X, Y (relative to the parent's content origin), Width
// and Height filled in.
type Node struct {
	Tag      int
	Name     string
	Type     TreeType
	Attrs    map[string]string
	Text     string // content of ContentText nodes
	Box      bool   // element may not hold text directly
	Children []*Node
	// Parent is a lookup-only back reference; children are owned by
	// their parent's Children slice.
	Parent *Node

	X, Y          float64
	Width, Height float64

	origin *Node // the node this wrapper was split from
}

// Tree is the result of a parse.
type Tree struct {
	Root      *Node
	AssetList string // depth asset list identifier, if declared
	Errors    *Errors
}

func newRoot() *Node {
	return &Node{Tag: tags.Root, Name: "root", Type: Container}
}

// Attr returns the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	if n.Attrs == nil {
		return "", false
	}
	v, ok := n.Attrs[name]
	return v, ok
}

// Bool reads a boolean attribute. Bare flags parse as "true".
func (n *Node) Bool(name string) bool {
	v, ok := n.Attr(name)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "true", "1", "yes", name:
		return true
	}
	return false
}

// SetHidden toggles the hidden attribute. Hidden nodes stay in the tree
// but take no space in layout.
func (n *Node) SetHidden(hidden bool) {
	if hidden {
		if n.Attrs == nil {
			n.Attrs = make(map[string]string)
		}
		n.Attrs["hidden"] = "true"
		return
	}
	delete(n.Attrs, "hidden")
}

// Hidden reports whether the node is excluded from flow.
func (n *Node) Hidden() bool {
	return n.Bool("hidden")
}

// AddChild appends child and sets its parent.
func (n *Node) AddChild(child *Node) {
	child.Parent = n
	n.Children = append(n.Children, child)
}

// RemoveChild removes child from n's children and clears its parent.
// Returns nil if child is not found.
func (n *Node) RemoveChild(child *Node) *Node {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			child.Parent = nil
			return child
		}
	}
	return nil
}

// IndexInParent returns the index of this node among its parent's
// children, or -1 if it has no parent.
func (n *Node) IndexInParent() int {
	if n.Parent == nil {
		return -1
	}
	for i, c := range n.Parent.Children {
		if c == n {
			return i
		}
	}
	return -1
}

// Inserted reports whether n is an insertion wrapper.
func (n *Node) Inserted() bool {
	return n.origin != nil
}

// Source returns the original node a wrapper was split from, following
// wrappers of wrappers. For ordinary nodes it returns n.
func (n *Node) Source() *Node {
	for n.origin != nil {
		n = n.origin
	}
	return n
}

// Walk visits n and its descendants depth first, in document order.
// Returning false from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	count := 0
	n.Walk(func(*Node) bool {
		count++
		return true
	})
	return count
}

// Content returns the concatenated text of the subtree.
func (n *Node) Content() string {
	var sb strings.Builder
	n.Walk(func(c *Node) bool {
		if c.Type == ContentText {
			sb.WriteString(c.Text)
		}
		return true
	})
	return sb.String()
}
