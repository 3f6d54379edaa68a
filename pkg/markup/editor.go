package markup

import "strings"

// InsertAfter moves content, the tail of origin's text, into a wrapper
// attached immediately after origin under origin's parent. The wrapper
// remembers origin so Revert can merge the content back. Content that is
// not a suffix of origin's text is attached without cutting anything, and
// Revert appends it to origin. origin must have a parent.
func InsertAfter(origin *Node, content string, tag int) *Node {
	if strings.HasSuffix(origin.Text, content) {
		origin.Text = origin.Text[:len(origin.Text)-len(content)]
	}
	w := &Node{
		Tag:    tag,
		Name:   origin.Name,
		Type:   origin.Type,
		Text:   content,
		Box:    origin.Box,
		Attrs:  copyAttrs(origin.Attrs),
		origin: origin,
	}
	parent := origin.Parent
	idx := origin.IndexInParent()
	w.Parent = parent
	parent.Children = append(parent.Children, nil)
	copy(parent.Children[idx+2:], parent.Children[idx+1:])
	parent.Children[idx+1] = w
	return w
}

// Split keeps the first k bytes of n's text in n and moves the rest into
// a new wrapper inserted after it.
func Split(n *Node, k int) *Node {
	return InsertAfter(n, n.Text[k:], n.Tag)
}

// Revert removes every insertion wrapper under root, appending each
// wrapper's content to the node it was split from. Wrappers are merged in
// document order, which is the order their content was cut from the
// original. Reverting a tree without wrappers changes nothing.
func Revert(root *Node) *Node {
	revertChildren(root)
	return root
}

func revertChildren(n *Node) {
	if len(n.Children) == 0 {
		return
	}
	kept := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c.origin != nil {
			src := c.Source()
			src.Text += c.Text
			c.Parent = nil
			continue
		}
		revertChildren(c)
		kept = append(kept, c)
	}
	n.Children = kept
}

// Clone deep-copies n without geometry. Wrappers in the copy point at
// copied origins, so the copy can still be reverted.
func Clone(n *Node) *Node {
	return cloneWith(n, make(map[*Node]*Node))
}

// CloneTree copies t, re-pointing its collected errors at the copied nodes.
func CloneTree(t *Tree) *Tree {
	m := make(map[*Node]*Node)
	out := &Tree{Root: cloneWith(t.Root, m), AssetList: t.AssetList, Errors: &Errors{}}
	for _, e := range t.Errors.List() {
		if c, ok := m[e.Node]; ok {
			e.Node = c
		}
		out.Errors.list = append(out.Errors.list, e)
	}
	return out
}

func cloneWith(n *Node, m map[*Node]*Node) *Node {
	c := &Node{
		Tag:   n.Tag,
		Name:  n.Name,
		Type:  n.Type,
		Text:  n.Text,
		Box:   n.Box,
		Attrs: copyAttrs(n.Attrs),
	}
	m[n] = c
	if n.origin != nil {
		// Origins precede their wrappers in document order.
		if o, ok := m[n.origin]; ok {
			c.origin = o
		} else {
			c.origin = n.origin
		}
	}
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			cc := cloneWith(child, m)
			cc.Parent = c
			c.Children[i] = cc
		}
	}
	return c
}

func copyAttrs(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
