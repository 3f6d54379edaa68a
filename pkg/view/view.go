// Package view wires fetching, parsing, layout and rendering into one
// pipeline driven by a config.
package view

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"

	"boxmark/pkg/config"
	"boxmark/pkg/images"
	"boxmark/pkg/layout"
	"boxmark/pkg/markup"
	"boxmark/pkg/metrics"
	"boxmark/pkg/render"
	"boxmark/pkg/resource"
	"boxmark/pkg/tags"
	"boxmark/pkg/text"
)

// Renderer renders markup onto an image.
type Renderer interface {
	Render(ctx context.Context, src string, target *image.RGBA) (*layout.Result, error)
}

// Pipeline parses, lays out and renders documents. All documents share one
// tag registry and one image size cache.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger

	Fetcher  resource.Fetcher
	Registry *tags.Registry
	Parser   *markup.Parser
	Images   *images.Loader
	Machine  *layout.Machine
}

var _ Renderer = (*Pipeline)(nil)

// Fetcher builds the scheme multiplexer described by cfg.
func Fetcher(cfg *config.Config, logger *slog.Logger) *resource.Mux {
	mux := &resource.Mux{
		BaseURL: cfg.BaseURL,
		HTTP:    resource.NewHTTPFetcher(cfg.HTTPRetryMax, logger),
	}
	if cfg.ResourcesRoot != "" {
		mux.Resources = resource.NewFSFetcher(os.DirFS(cfg.ResourcesRoot))
	}
	return mux
}

// New creates a pipeline fetching through the multiplexer for cfg.
// mt may be nil.
func New(cfg *config.Config, logger *slog.Logger, mt *metrics.Metrics) *Pipeline {
	return NewWithFetcher(cfg, Fetcher(cfg, logger), logger, mt)
}

// NewWithFetcher creates a pipeline that loads tag tables and images
// through fetcher.
func NewWithFetcher(cfg *config.Config, fetcher resource.Fetcher, logger *slog.Logger, mt *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	reg := tags.NewRegistry(tags.FetcherSource{Fetcher: fetcher},
		tags.WithLogger(logger), tags.WithMetrics(mt))
	loader := images.NewLoader(fetcher, images.WithLogger(logger), images.WithMetrics(mt))
	return &Pipeline{
		cfg:      cfg,
		logger:   logger,
		Fetcher:  fetcher,
		Registry: reg,
		Parser:   markup.NewParser(reg, markup.WithLogger(logger)),
		Images:   loader,
		Machine: layout.NewMachine(reg, Measurer(cfg), loader,
			layout.WithLogger(logger), layout.WithMetrics(mt)),
	}
}

// Measurer returns font-backed metrics when a font is configured and the
// reference metrics otherwise.
func Measurer(cfg *config.Config) text.Measurer {
	if cfg.Fonts.Regular == "" {
		return text.NewFixedMeasurer()
	}
	return text.NewFaceMeasurer(Fonts(cfg))
}

func Fonts(cfg *config.Config) text.FontConfig {
	return text.FontConfig{Regular: cfg.Fonts.Regular, Bold: cfg.Fonts.Bold}
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, p.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// Parse parses src within the configured timeout. A timed-out parse still
// returns its completed tree along with the error.
func (p *Pipeline) Parse(ctx context.Context, src string) (*markup.Tree, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.Parser.Parse(ctx, src)
}

// Prefetch warms the image size cache for every visible image in tree.
func (p *Pipeline) Prefetch(ctx context.Context, tree *markup.Tree) error {
	var urls []string
	seen := make(map[string]bool)
	tree.Root.Walk(func(n *markup.Node) bool {
		if n.Hidden() {
			return false
		}
		if src, ok := n.Attr("src"); ok && n.Type == markup.ContentImg && !seen[src] {
			seen[src] = true
			urls = append(urls, src)
		}
		return true
	})
	if len(urls) == 0 {
		return nil
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.Images.Prefetch(ctx, urls, p.cfg.PrefetchLimit)
}

// Layout lays out tree within the configured timeout.
func (p *Pipeline) Layout(ctx context.Context, tree *markup.Tree, size layout.Size) (*layout.Result, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.Machine.LayoutSync(ctx, tree, size)
}

// Render parses src, lays it out at the size of target and paints it.
// Timeouts and failed resources degrade the result rather than abort it;
// they are returned joined with the result.
func (p *Pipeline) Render(ctx context.Context, src string, target *image.RGBA) (*layout.Result, error) {
	bounds := target.Bounds()
	res, err := p.Build(ctx, src, layout.Size{Width: float64(bounds.Dx()), Height: float64(bounds.Dy())})
	if res == nil {
		return nil, err
	}
	r := render.NewRendererForImage(target)
	r.SetFonts(Fonts(p.cfg))
	r.SetImages(p.Images)
	r.Render(ctx, res)
	return res, err
}

// Build parses and lays out src at size.
func (p *Pipeline) Build(ctx context.Context, src string, size layout.Size) (*layout.Result, error) {
	var errs []error
	tree, err := p.Parse(ctx, src)
	if err != nil {
		if tree == nil {
			return nil, fmt.Errorf("parsing markup: %w", err)
		}
		p.logger.Warn("parse degraded", "error", err)
		errs = append(errs, err)
	}
	if err := p.Prefetch(ctx, tree); err != nil {
		// Failed images become placeholders during layout.
		p.logger.Warn("image prefetch failed", "error", err)
	}
	res, err := p.Layout(ctx, tree, size)
	if err != nil {
		p.logger.Warn("layout degraded", "error", err)
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}
