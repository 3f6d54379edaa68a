package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sort"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"boxmark/pkg/config"
	"boxmark/pkg/layout"
	"boxmark/pkg/markup"
	"boxmark/pkg/render"
	"boxmark/pkg/view"
)

// document holds one parsed tree. Every resize lays the tree out again,
// so rotating or resizing the window reflows text.
type document struct {
	mu       sync.Mutex
	pipeline *view.Pipeline
	cfg      *config.Config
	tree     *markup.Tree
	logger   *slog.Logger
	status   func(string)
}

func (d *document) draw(w, h int) image.Image {
	target := image.NewRGBA(image.Rect(0, 0, w, h))
	if w <= 0 || h <= 0 {
		return target
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.pipeline.Layout(context.Background(), d.tree, layout.Size{Width: float64(w), Height: float64(h)})
	if res == nil {
		d.status("Layout error: " + err.Error())
		return target
	}
	r := render.NewRendererForImage(target)
	r.SetFonts(view.Fonts(d.cfg))
	r.SetImages(d.pipeline.Images)
	r.Render(context.Background(), res)
	d.status(fmt.Sprintf("%dx%d, %d nodes, %d errors", w, h, res.Root.Count(), res.Errors.Len()))
	return target
}

// toggle flips the hidden attribute of the node with the given id.
func (d *document) toggle(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := layout.FindByID(d.tree.Root, id)
	if n == nil {
		return false
	}
	n.SetHidden(!n.Hidden())
	d.logger.Debug("toggled", "id", id, "hidden", n.Hidden())
	return true
}

// ids lists the id attributes of the document, for the toggle picker.
func (d *document) ids() []string {
	var out []string
	d.tree.Root.Walk(func(n *markup.Node) bool {
		if v, ok := n.Attr("id"); ok && v != "" {
			out = append(out, v)
		}
		return true
	})
	sort.Strings(out)
	return out
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: boxview [flags] <file>\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logger(os.Stderr)
	src, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	p := view.New(cfg, logger, nil)
	tree, err := p.Parse(context.Background(), string(src))
	if tree == nil {
		fmt.Fprintf(os.Stderr, "Error parsing: %v\n", err)
		os.Exit(1)
	}
	if err := p.Prefetch(context.Background(), tree); err != nil {
		logger.Warn("image prefetch failed", "error", err)
	}

	a := app.New()
	w := a.NewWindow("boxview: " + flag.Arg(0))
	w.Resize(fyne.NewSize(float32(cfg.Viewport.Width), float32(cfg.Viewport.Height)))

	status := widget.NewLabel("")
	doc := &document{
		pipeline: p,
		cfg:      cfg,
		tree:     tree,
		logger:   logger,
		status:   func(s string) { fyne.Do(func() { status.SetText(s) }) },
	}

	// The raster generator runs at the current pixel size on every resize.
	raster := canvas.NewRaster(doc.draw)

	picker := widget.NewSelect(doc.ids(), nil)
	picker.PlaceHolder = "toggle hidden"
	picker.OnChanged = func(id string) {
		if id == "" {
			return
		}
		if doc.toggle(id) {
			raster.Refresh()
		}
		picker.ClearSelected()
	}

	top := container.NewBorder(nil, nil, nil, nil, picker)
	w.SetContent(container.NewBorder(top, status, nil, nil, raster))
	w.ShowAndRun()
}
