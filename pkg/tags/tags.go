// Package tags classifies markup tag names. Built-in tags have fixed ids;
// custom tags are declared by depth asset lists and receive ids, starting
// at End, the first time a document uses them.
package tags

import "strings"

// ContentType is the semantic content a tag carries.
type ContentType int

const (
	Container ContentType = iota
	Text
	Image
	CustomLayer
)

func (c ContentType) String() string {
	switch c {
	case Container:
		return "container"
	case Text:
		return "text"
	case Image:
		return "image"
	case CustomLayer:
		return "layer"
	}
	return "unknown"
}

// ParseContentType maps a table declaration to a ContentType.
func ParseContentType(s string) (ContentType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "container":
		return Container, true
	case "text":
		return Text, true
	case "image", "img":
		return Image, true
	case "layer", "customlayer":
		return CustomLayer, true
	}
	return Container, false
}

// Definition describes a classified tag.
type Definition struct {
	ID      int
	Name    string
	Content ContentType
	// IsBox marks a region tag that may not hold text directly.
	IsBox  bool
	Custom bool
}

// Built-in tag ids. Custom tags are numbered from End upwards.
const (
	Root = iota
	HTML
	Head
	Title
	Body
	Div
	Section
	Header
	Footer
	P
	Span
	A
	B
	I
	Em
	Strong
	H1
	H2
	H3
	H4
	H5
	H6
	UL
	OL
	LI
	Img
	Br
	Hr
	Button
	End
)

var builtins = [End]Definition{
	Root:    {Name: "root", Content: Container},
	HTML:    {Name: "html", Content: Container},
	Head:    {Name: "head", Content: Container},
	Title:   {Name: "title", Content: Text},
	Body:    {Name: "body", Content: Container},
	Div:     {Name: "div", Content: Container},
	Section: {Name: "section", Content: Container},
	Header:  {Name: "header", Content: Container},
	Footer:  {Name: "footer", Content: Container},
	P:       {Name: "p", Content: Text},
	Span:    {Name: "span", Content: Text},
	A:       {Name: "a", Content: Text},
	B:       {Name: "b", Content: Text},
	I:       {Name: "i", Content: Text},
	Em:      {Name: "em", Content: Text},
	Strong:  {Name: "strong", Content: Text},
	H1:      {Name: "h1", Content: Text},
	H2:      {Name: "h2", Content: Text},
	H3:      {Name: "h3", Content: Text},
	H4:      {Name: "h4", Content: Text},
	H5:      {Name: "h5", Content: Text},
	H6:      {Name: "h6", Content: Text},
	UL:      {Name: "ul", Content: Container},
	OL:      {Name: "ol", Content: Container},
	LI:      {Name: "li", Content: Text},
	Img:     {Name: "img", Content: Image},
	Br:      {Name: "br", Content: Container},
	Hr:      {Name: "hr", Content: Container},
	Button:  {Name: "button", Content: Text},
}

// IsVoid reports whether a built-in tag never has children.
func IsVoid(id int) bool {
	switch id {
	case Img, Br, Hr:
		return true
	}
	return false
}

// Region is a named slot of a multi-box layer.
type Region int

const (
	NoRegion Region = iota
	TopLeft
	TopRight
	Content
	Bottom
)

// RegionOf maps a tag name to its multi-box region. Hyphen and underscore
// spellings are accepted (top-left, top_left, topleft).
func RegionOf(name string) Region {
	n := strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(name))
	switch n {
	case "topleft":
		return TopLeft
	case "topright":
		return TopRight
	case "content":
		return Content
	case "bottom":
		return Bottom
	}
	return NoRegion
}
