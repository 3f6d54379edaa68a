// Package text measures text runs for line breaking.
package text

import (
	"fmt"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/fogleman/gg"
	"golang.org/x/text/width"
)

// DefaultFontSize is the font size used when no size attribute applies.
const DefaultFontSize = 16.0

// Style is the closed set of attributes that affect measurement.
type Style struct {
	FontSize float64
	Bold     bool
}

// DefaultStyle returns the body text style.
func DefaultStyle() Style {
	return Style{FontSize: DefaultFontSize}
}

// Segment is an unbreakable run of text followed by a break opportunity.
// Offset is the byte offset, within the measured string, just past the
// segment. Space is the width of trailing whitespace, which may hang past
// the end of a line.
type Segment struct {
	Text   string
	Offset int
	Width  float64
	Space  float64
	Height float64
}

// Measurer measures break-candidate segments of a string.
type Measurer interface {
	Segments(s string, st Style) []Segment
	LineHeight(st Style) float64
}

// Fit returns how many leading segments fit in avail. A segment whose
// visible width exactly equals the remaining width fits.
func Fit(segs []Segment, avail float64) (n int, used float64) {
	for _, seg := range segs {
		if used+seg.Width-seg.Space > avail {
			break
		}
		used += seg.Width
		n++
	}
	return n, used
}

// Split cuts s at its break opportunities. A segment is a word plus its
// trailing spaces; East Asian wide runes are segments of their own so
// Japanese and Chinese text can break between any two characters.
func Split(s string) []string {
	var (
		parts []string
		start int
		inGap bool
	)
	for i, r := range s {
		switch {
		case unicode.IsSpace(r):
			inGap = true
		case isWide(r):
			if i > start {
				parts = append(parts, s[start:i])
			}
			start = i
			inGap = false
			size := utf8.RuneLen(r)
			// Spaces directly after a wide rune stay with it.
			j := i + size
			for j < len(s) && s[j] == ' ' {
				j++
			}
			if j == i+size {
				parts = append(parts, s[i:j])
				start = j
			}
		default:
			if inGap {
				parts = append(parts, s[start:i])
				start = i
				inGap = false
			}
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func isWide(r rune) bool {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return true
	}
	return false
}

func trailingSpace(s string) string {
	i := len(s)
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:i])
		if !unicode.IsSpace(r) {
			break
		}
		i -= size
	}
	return s[i:]
}

func segmentsWith(s string, height float64, measure func(string) float64) []Segment {
	parts := Split(s)
	segs := make([]Segment, 0, len(parts))
	offset := 0
	for _, p := range parts {
		offset += len(p)
		segs = append(segs, Segment{
			Text:   p,
			Offset: offset,
			Width:  measure(p),
			Space:  measure(trailingSpace(p)),
			Height: height,
		})
	}
	return segs
}

// FixedMeasurer gives every narrow rune the same advance and every wide
// rune twice that. It is the reference metric used by tests and by hosts
// without font files.
type FixedMeasurer struct {
	Advance float64
	Line    float64
}

// NewFixedMeasurer returns reference metrics: 16 units per line and an
// advance of half the font size.
func NewFixedMeasurer() FixedMeasurer {
	return FixedMeasurer{Advance: DefaultFontSize / 2, Line: DefaultFontSize}
}

func (m FixedMeasurer) scale(st Style) float64 {
	if st.FontSize <= 0 {
		return 1
	}
	return st.FontSize / DefaultFontSize
}

func (m FixedMeasurer) width(s string, st Style) float64 {
	w := 0.0
	for _, r := range s {
		if isWide(r) {
			w += 2 * m.Advance
		} else {
			w += m.Advance
		}
	}
	if st.Bold {
		w *= 1.1
	}
	return w * m.scale(st)
}

func (m FixedMeasurer) LineHeight(st Style) float64 {
	return m.Line * m.scale(st)
}

func (m FixedMeasurer) Segments(s string, st Style) []Segment {
	return segmentsWith(s, m.LineHeight(st), func(p string) float64 { return m.width(p, st) })
}

// FontConfig holds paths to font files used for measurement.
type FontConfig struct {
	Regular string
	Bold    string
}

// FontPath returns the font path for the given weight.
func (fc FontConfig) FontPath(bold bool) string {
	if bold && fc.Bold != "" {
		return fc.Bold
	}
	return fc.Regular
}

// FaceMeasurer measures with real font faces loaded through gg. When a
// font cannot be loaded, it falls back to an estimate from the font size.
type FaceMeasurer struct {
	Fonts       FontConfig
	LineSpacing float64

	mu       sync.Mutex
	contexts map[string]*gg.Context
}

// NewFaceMeasurer creates a FaceMeasurer. An empty FontConfig measures
// with gg's built-in bitmap face.
func NewFaceMeasurer(fonts FontConfig) *FaceMeasurer {
	return &FaceMeasurer{Fonts: fonts, LineSpacing: 1.2, contexts: make(map[string]*gg.Context)}
}

func (m *FaceMeasurer) context(st Style) *gg.Context {
	size := st.FontSize
	if size <= 0 {
		size = DefaultFontSize
	}
	path := m.Fonts.FontPath(st.Bold)
	key := fmt.Sprintf("%s@%g", path, size)
	if dc, ok := m.contexts[key]; ok {
		return dc
	}
	dc := gg.NewContext(1, 1)
	if path != "" {
		if err := dc.LoadFontFace(path, size); err != nil {
			dc = nil
		}
	}
	m.contexts[key] = dc
	return dc
}

func (m *FaceMeasurer) LineHeight(st Style) float64 {
	size := st.FontSize
	if size <= 0 {
		size = DefaultFontSize
	}
	return size * m.LineSpacing
}

func (m *FaceMeasurer) Segments(s string, st Style) []Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	dc := m.context(st)
	measure := func(p string) float64 {
		if dc == nil {
			// If font loading fails, return rough estimate
			return float64(utf8.RuneCountInString(p)) * st.FontSize * 0.6
		}
		w, _ := dc.MeasureString(p)
		return w
	}
	return segmentsWith(s, m.LineHeight(st), measure)
}

// Wrap breaks s into lines where the first line fits within firstLineMax
// and subsequent lines fit within remainingMax. A segment wider than a
// whole line is placed alone on its own line.
func Wrap(m Measurer, s string, st Style, firstLineMax, remainingMax float64) []string {
	segs := m.Segments(s, st)
	var lines []string
	start := 0
	avail := firstLineMax
	for len(segs) > 0 {
		n, _ := Fit(segs, avail)
		if n == 0 && avail >= remainingMax {
			n = 1
		}
		if n > 0 {
			end := segs[n-1].Offset
			lines = append(lines, s[start:end])
			start = end
			segs = segs[n:]
		} else if len(lines) == 0 {
			lines = append(lines, "")
		}
		avail = remainingMax
	}
	return lines
}
