package layout

import "boxmark/pkg/markup"

// Box is one node of a layout tree as seen by a renderer.
type Box struct {
	Node *markup.Node
	Tag  int
	Name string
	Type markup.TreeType
	Text string

	// X and Y are relative to the parent; AbsX and AbsY to the root.
	X, Y          float64
	Width, Height float64
	AbsX, AbsY    float64

	Depth  int
	Hidden bool
	Attrs  map[string]string
}

// Walk visits the layout tree depth first, in document order. Returning
// false from fn skips the box's descendants. Hidden subtrees are visited
// with Hidden set so hosts can still find nodes to toggle.
func Walk(root *markup.Node, fn func(Box) bool) {
	walk(root, 0, 0, 0, false, fn)
}

func walk(n *markup.Node, originX, originY float64, depth int, hidden bool, fn func(Box) bool) {
	hidden = hidden || n.Hidden()
	b := Box{
		Node:   n,
		Tag:    n.Tag,
		Name:   n.Name,
		Type:   n.Type,
		Text:   n.Text,
		X:      n.X,
		Y:      n.Y,
		Width:  n.Width,
		Height: n.Height,
		AbsX:   originX + n.X,
		AbsY:   originY + n.Y,
		Depth:  depth,
		Hidden: hidden,
		Attrs:  n.Attrs,
	}
	if !fn(b) {
		return
	}
	for _, c := range n.Children {
		walk(c, b.AbsX, b.AbsY, depth+1, hidden, fn)
	}
}

// FindByID returns the first node whose id attribute equals id.
func FindByID(root *markup.Node, id string) *markup.Node {
	var found *markup.Node
	root.Walk(func(n *markup.Node) bool {
		if found != nil {
			return false
		}
		if v, ok := n.Attr("id"); ok && v == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Listeners returns the nodes carrying a listen attribute, mapped by the
// event name they listen for. Buttons and other interactive tags declare
// listen="name"; dispatching the event is left to the host.
func Listeners(root *markup.Node) map[string][]*markup.Node {
	out := make(map[string][]*markup.Node)
	root.Walk(func(n *markup.Node) bool {
		if v, ok := n.Attr("listen"); ok && v != "" {
			out[v] = append(out[v], n)
		}
		return true
	})
	return out
}
