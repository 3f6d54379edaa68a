package layout

import (
	"strconv"
	"strings"

	"boxmark/pkg/markup"
	"boxmark/pkg/tags"
	"boxmark/pkg/text"
)

// InlineContext tracks the cursor of one inline formatting run.
type InlineContext struct {
	LineX      float64 // cursor position on the current line
	LineY      float64 // top of the current line
	LineHeight float64 // tallest item on the current line so far
	Width      float64
}

func (ic *InlineContext) open() bool {
	return ic.LineX > 0 || ic.LineHeight > 0
}

func (ic *InlineContext) breakLine() {
	ic.LineY += ic.LineHeight
	ic.LineX = 0
	ic.LineHeight = 0
}

// endLine closes the current line if anything was placed on it.
func (ic *InlineContext) endLine() {
	if ic.open() {
		ic.breakLine()
	}
}

func (ic *InlineContext) place(n *markup.Node, w, h float64) {
	n.X, n.Y, n.Width, n.Height = ic.LineX, ic.LineY, w, h
	ic.LineX += w
	ic.LineHeight = max(ic.LineHeight, h)
}

// flow computes geometry for one layout run.
type flow struct {
	run    *Run
	result *Result
}

func (f *flow) layoutRoot(root *markup.Node, width float64) {
	root.X, root.Y = 0, 0
	f.layoutContainer(root, width)
}

// layoutContainer sizes n within avail and positions its children
// relative to n's origin. CustomLayer nodes follow the same rules.
func (f *flow) layoutContainer(n *markup.Node, avail float64) {
	width := avail
	if w, ok := dimension(n, "width", avail); ok {
		width = w
	}
	n.Width = width

	var height float64
	if f.multiBox(n) {
		height = f.layoutRegions(n, width)
	} else {
		height = f.layoutFlow(n, width, 0, nil)
	}
	if h, ok := dimension(n, "height", f.run.viewport.Height); ok {
		height = h
	}
	n.Height = height
}

// layoutFlow lays out the children of parent accepted by include (all
// children when include is nil), starting at y. Blocks stack; text and
// images share lines. It returns the bottom of the last line or block.
func (f *flow) layoutFlow(parent *markup.Node, width, y float64, include func(*markup.Node) bool) float64 {
	ic := &InlineContext{LineY: y, Width: width}
	// Text placement inserts wrappers after the node being placed, so the
	// children are re-read on every iteration.
	for i := 0; i < len(parent.Children); i++ {
		c := parent.Children[i]
		if include != nil && !include(c) {
			continue
		}
		if c.Hidden() {
			c.X, c.Y, c.Width, c.Height = 0, 0, 0, 0
			continue
		}
		switch c.Type {
		case markup.ContentText:
			last := f.placeText(ic, c)
			i = last.IndexInParent()
		case markup.ContentImg:
			f.placeImage(ic, c)
		default:
			if c.Tag == tags.Br {
				f.lineBreak(ic, c)
				continue
			}
			ic.endLine()
			c.X, c.Y = 0, ic.LineY
			f.layoutContainer(c, width)
			ic.LineY += c.Height
		}
	}
	ic.endLine()
	return ic.LineY
}

// lineBreak ends the current line. On an empty line it advances by one
// line of body text.
func (f *flow) lineBreak(ic *InlineContext, br *markup.Node) {
	br.X, br.Y, br.Width, br.Height = ic.LineX, ic.LineY, 0, 0
	if ic.open() {
		ic.breakLine()
		return
	}
	ic.LineY += f.run.m.measure.LineHeight(f.style(br))
}

// placeText packs n greedily into the remaining width of the line. When
// the text does not fit, n keeps the prefix that does and the remainder
// moves to an insertion wrapper on the next line, repeatedly. It returns
// the last piece placed.
func (f *flow) placeText(ic *InlineContext, n *markup.Node) *markup.Node {
	st := f.style(n)
	measure := f.run.m.measure
	lh := measure.LineHeight(st)
	piece := n
	for {
		segs := measure.Segments(piece.Text, st)
		if len(segs) == 0 {
			piece.X, piece.Y, piece.Width, piece.Height = ic.LineX, ic.LineY, 0, 0
			return piece
		}
		k, used := text.Fit(segs, ic.Width-ic.LineX)
		if k == 0 {
			if ic.open() {
				ic.breakLine()
				continue
			}
			// A word wider than a whole line overflows it.
			k, used = 1, segs[0].Width
		}
		ic.place(piece, used-segs[k-1].Space, lh)
		// Trailing space hangs but still advances the cursor.
		ic.LineX += segs[k-1].Space
		if k == len(segs) {
			return piece
		}
		piece = markup.Split(piece, segs[k-1].Offset)
		ic.breakLine()
	}
}

func (f *flow) placeImage(ic *InlineContext, n *markup.Node) {
	w, h, ok := f.imageDims(n, ic.Width)
	if !ok {
		n.X, n.Y, n.Width, n.Height = ic.LineX, ic.LineY, 0, 0
		return
	}
	if w > ic.Width && w > 0 {
		h = h * ic.Width / w
		w = ic.Width
	}
	if ic.LineX > 0 && ic.LineX+w > ic.Width {
		ic.breakLine()
	}
	ic.place(n, w, h)
}

// imageDims resolves an image's size from its width and height
// attributes, falling back to the intrinsic size for whichever is missing.
func (f *flow) imageDims(n *markup.Node, avail float64) (float64, float64, bool) {
	w, hasW := dimension(n, "width", avail)
	h, hasH := dimension(n, "height", f.run.viewport.Height)
	if hasW && hasH {
		return w, h, true
	}
	src, _ := n.Attr("src")
	if src == "" {
		f.fail(n, markup.ErrImageFailed, "image has no src and no size")
		return 0, 0, false
	}
	size, code, err := f.run.imageSize(src)
	if err != nil {
		f.fail(n, code, "image %q: %v", src, err)
		return 0, 0, false
	}
	switch {
	case hasW && size.Width > 0:
		return w, size.Height * w / size.Width, true
	case hasH && size.Height > 0:
		return size.Width * h / size.Height, h, true
	}
	return size.Width, size.Height, true
}

func (f *flow) fail(n *markup.Node, code markup.ErrorCode, format string, args ...any) {
	f.result.Errors.Add(code, n, format, args...)
	f.result.Failed = append(f.result.Failed, n)
	f.run.m.logger.Warn("image placeholder", "code", code, "src", n.Attrs["src"])
}

// multiBox reports whether n's children are placed by region.
func (f *flow) multiBox(n *markup.Node) bool {
	for _, c := range n.Children {
		if f.region(c) != tags.NoRegion {
			return true
		}
	}
	return false
}

func (f *flow) region(n *markup.Node) tags.Region {
	if n.Type != markup.Container && n.Type != markup.CustomLayer {
		return tags.NoRegion
	}
	name := n.Name
	if f.run.m.reg != nil {
		if def, ok := f.run.m.reg.ByID(n.Tag); ok {
			name = def.Name
		}
	}
	return tags.RegionOf(name)
}

// layoutRegions places a multi-box layer. The first top-left and top-right
// children share the top row, sized to their content; the top-right one is
// aligned to the right edge. Everything else flows below the taller of the
// two, bottom regions last.
func (f *flow) layoutRegions(n *markup.Node, width float64) float64 {
	var left, right *markup.Node
	for _, c := range n.Children {
		switch f.region(c) {
		case tags.TopLeft:
			if left == nil {
				left = c
			}
		case tags.TopRight:
			if right == nil {
				right = c
			}
		}
	}

	var top, leftWidth float64
	if left != nil && !left.Hidden() {
		f.layoutContainer(left, width)
		f.shrink(left)
		left.X, left.Y = 0, 0
		leftWidth = left.Width
		top = left.Height
	}
	if right != nil && !right.Hidden() {
		avail := width - leftWidth
		if avail <= 0 {
			avail = width
		}
		f.layoutContainer(right, avail)
		f.shrink(right)
		right.X, right.Y = max(0, width-right.Width), 0
		top = max(top, right.Height)
	}

	y := f.layoutFlow(n, width, top, func(c *markup.Node) bool {
		return c != left && c != right && f.region(c) != tags.Bottom
	})
	return f.layoutFlow(n, width, y, func(c *markup.Node) bool {
		return c != left && c != right && f.region(c) == tags.Bottom
	})
}

// shrink narrows a region without an explicit width to its content.
func (f *flow) shrink(n *markup.Node) {
	if _, ok := n.Attr("width"); ok {
		return
	}
	var extent float64
	for _, c := range n.Children {
		if c.Hidden() {
			continue
		}
		extent = max(extent, c.X+c.Width)
	}
	n.Width = min(n.Width, extent)
}

var headingScale = map[int]float64{
	tags.H1: 2,
	tags.H2: 1.5,
	tags.H3: 1.17,
	tags.H4: 1,
	tags.H5: 0.83,
	tags.H6: 0.67,
}

func (f *flow) style(n *markup.Node) text.Style {
	return StyleOf(n)
}

// StyleOf derives the text style of n from its ancestors: headings set the
// size, b and strong set bold, and size and bold attributes override both.
func StyleOf(n *markup.Node) text.Style {
	var chain []*markup.Node
	for p := n.Parent; p != nil; p = p.Parent {
		chain = append(chain, p)
	}
	st := text.DefaultStyle()
	for i := len(chain) - 1; i >= 0; i-- {
		p := chain[i]
		if scale, ok := headingScale[p.Tag]; ok {
			st.FontSize = text.DefaultFontSize * scale
		}
		if p.Tag == tags.B || p.Tag == tags.Strong || p.Bool("bold") {
			st.Bold = true
		}
		if v, ok := p.Attr("size"); ok {
			if size, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && size > 0 {
				st.FontSize = size
			}
		}
	}
	return st
}

// dimension parses a length attribute: a plain number, a number with a
// px suffix, or a percentage of base.
func dimension(n *markup.Node, name string, base float64) (float64, bool) {
	v, ok := n.Attr(name)
	if !ok {
		return 0, false
	}
	v = strings.TrimSpace(v)
	if pct, found := strings.CutSuffix(v, "%"); found {
		p, err := strconv.ParseFloat(pct, 64)
		if err != nil || p < 0 {
			return 0, false
		}
		return base * p / 100, true
	}
	d, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

// explicitSize reports whether n declares both its width and height.
func explicitSize(n *markup.Node) (float64, float64, bool) {
	w, okW := dimension(n, "width", 0)
	h, okH := dimension(n, "height", 0)
	return w, h, okW && okH
}
