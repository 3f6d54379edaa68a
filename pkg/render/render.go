// Package render paints layout results with gg.
package render

import (
	"context"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
	"golang.org/x/image/colornames"

	"boxmark/pkg/layout"
	"boxmark/pkg/markup"
	"boxmark/pkg/text"
)

// ImageSource supplies decoded images for img nodes.
type ImageSource interface {
	Image(ctx context.Context, url string) (image.Image, error)
}

type Renderer struct {
	context *gg.Context
	fonts   text.FontConfig
	images  ImageSource

	// Outline strokes the bounds of every container, for debugging.
	Outline bool
}

func NewRenderer(width, height int) *Renderer {
	return &Renderer{context: gg.NewContext(width, height)}
}

// NewRendererForImage draws directly onto target.
func NewRendererForImage(target *image.RGBA) *Renderer {
	return &Renderer{context: gg.NewContextForRGBA(target)}
}

func (r *Renderer) SetFonts(fonts text.FontConfig) {
	r.fonts = fonts
}

func (r *Renderer) SetImages(src ImageSource) {
	r.images = src
}

// Image returns the canvas.
func (r *Renderer) Image() image.Image {
	return r.context.Image()
}

// Render clears the canvas and paints res depth first, so children draw
// over their parents. Hidden subtrees are skipped.
func (r *Renderer) Render(ctx context.Context, res *layout.Result) {
	r.context.SetRGB(1, 1, 1)
	r.context.Clear()

	layout.Walk(res.Root, func(b layout.Box) bool {
		if b.Hidden {
			return false
		}
		switch b.Type {
		case markup.ContentText:
			r.drawText(b)
		case markup.ContentImg:
			r.drawImage(ctx, b)
		default:
			r.drawContainer(b)
		}
		return true
	})
}

func (r *Renderer) drawContainer(b layout.Box) {
	if b.Width <= 0 || b.Height <= 0 {
		return
	}
	if c, ok := ParseColor(b.Attrs["bgcolor"]); ok {
		r.context.SetColor(c)
		r.context.DrawRectangle(b.AbsX, b.AbsY, b.Width, b.Height)
		r.context.Fill()
	}
	if r.Outline {
		r.context.SetRGBA(0, 0, 1, 0.3)
		r.context.SetLineWidth(1)
		r.context.DrawRectangle(b.AbsX+0.5, b.AbsY+0.5, b.Width-1, b.Height-1)
		r.context.Stroke()
	}
}

func (r *Renderer) drawText(b layout.Box) {
	if strings.TrimSpace(b.Text) == "" {
		return
	}
	st := layout.StyleOf(b.Node)
	if path := r.fonts.FontPath(st.Bold); path != "" {
		if err := r.context.LoadFontFace(path, st.FontSize); err != nil {
			// If font loading fails, skip rendering
			return
		}
	}

	c := color.Color(color.Black)
	for p := b.Node.Parent; p != nil; p = p.Parent {
		if pc, ok := ParseColor(p.Attrs["color"]); ok {
			c = pc
			break
		}
	}
	r.context.SetColor(c)
	// Add fontSize to Y for baseline alignment
	r.context.DrawString(strings.TrimRight(b.Text, " "), b.AbsX, b.AbsY+st.FontSize)
}

func (r *Renderer) drawImage(ctx context.Context, b layout.Box) {
	if b.Width <= 0 || b.Height <= 0 {
		return
	}
	var img image.Image
	if src := b.Attrs["src"]; src != "" && r.images != nil {
		img, _ = r.images.Image(ctx, src)
	}
	if img == nil {
		// Image failed to load, draw placeholder
		r.context.SetRGB(0.9, 0.9, 0.9)
		r.context.DrawRectangle(b.AbsX, b.AbsY, b.Width, b.Height)
		r.context.Fill()

		// Draw X to indicate broken image
		r.context.SetRGB(0.5, 0.5, 0.5)
		r.context.SetLineWidth(2)
		r.context.DrawLine(b.AbsX, b.AbsY, b.AbsX+b.Width, b.AbsY+b.Height)
		r.context.DrawLine(b.AbsX+b.Width, b.AbsY, b.AbsX, b.AbsY+b.Height)
		r.context.Stroke()
		return
	}

	r.context.Push()
	r.context.Translate(b.AbsX, b.AbsY)
	bounds := img.Bounds()
	r.context.Scale(b.Width/float64(bounds.Dx()), b.Height/float64(bounds.Dy()))
	r.context.DrawImage(img, 0, 0)
	r.context.Pop()
}

func (r *Renderer) SavePNG(filename string) error {
	return r.context.SavePNG(filename)
}

// ParseColor reads "#rgb", "#rrggbb" or an SVG color name.
func ParseColor(s string) (color.Color, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, false
	}
	if c, ok := colornames.Map[s]; ok {
		return c, true
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return nil, false
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return nil, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
}
