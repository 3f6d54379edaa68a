package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"boxmark/pkg/config"
	"boxmark/pkg/layout"
	"boxmark/pkg/markup"
	"boxmark/pkg/metrics"
	"boxmark/pkg/render"
	"boxmark/pkg/resource"
	"boxmark/pkg/view"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	width := flag.Float64("w", 0, "viewport width (overrides config)")
	height := flag.Float64("h", 0, "viewport height (overrides config)")
	output := flag.String("o", "", "write a PNG rendering to this path")
	dump := flag.Bool("dump", true, "print the layout tree")
	outline := flag.Bool("outline", false, "outline containers in the PNG")
	metricsAddr := flag.String("metrics", "", "serve prometheus metrics on this address until interrupted")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: boxmark [flags] <file or url>\n\nFlags:\n")
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
	if *width > 0 {
		cfg.Viewport.Width = *width
	}
	if *height > 0 {
		cfg.Viewport.Height = *height
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	p := view.New(cfg, logger, metrics.New(reg))

	src, err := readInput(ctx, p, flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}

	size := layout.Size{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height}
	res, err := p.Build(ctx, src, size)
	if res == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err != nil {
		logger.Warn("document degraded", "error", err)
	}

	if *dump {
		Dump(os.Stdout, res)
	}
	for _, e := range res.Errors.List() {
		fmt.Fprintf(os.Stderr, "%s\n", e.Error())
	}

	if *output != "" {
		r := render.NewRenderer(int(size.Width), int(max(size.Height, res.Root.Height)))
		r.SetFonts(view.Fonts(cfg))
		r.SetImages(p.Images)
		r.Outline = *outline
		r.Render(ctx, res)
		if err := r.SavePNG(*output); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving PNG: %v\n", err)
			os.Exit(1)
		}
		logger.Info("rendered", "output", *output)
	}

	if cfg.MetricsAddr != "" {
		serveMetrics(ctx, cfg.MetricsAddr, reg, logger.Info)
	}
}

func readInput(ctx context.Context, p *view.Pipeline, arg string) (string, error) {
	if resource.IsNetworkURL(arg) || strings.HasPrefix(arg, resource.ResourcesScheme) {
		body, _, err := p.Fetcher.Fetch(ctx, arg)
		return string(body), err
	}
	body, err := os.ReadFile(arg)
	return string(body), err
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, info func(string, ...any)) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "Error serving metrics: %v\n", err)
		os.Exit(1)
	}
}

// Dump prints one line per visible node: depth-indented name, tree type,
// absolute position and size, and text or attributes.
func Dump(w io.Writer, res *layout.Result) {
	layout.Walk(res.Root, func(b layout.Box) bool {
		if b.Hidden {
			fmt.Fprintf(w, "%s%s (hidden)\n", strings.Repeat("  ", b.Depth), b.Name)
			return false
		}
		line := fmt.Sprintf("%s%s %s @%g,%g %gx%g", strings.Repeat("  ", b.Depth),
			b.Name, b.Type, b.AbsX, b.AbsY, b.Width, b.Height)
		switch {
		case b.Type == markup.ContentText:
			line += fmt.Sprintf(" %q", b.Text)
			if b.Node.Inserted() {
				line += " (wrapped)"
			}
		case len(b.Attrs) > 0:
			line += fmt.Sprintf(" %v", b.Attrs)
		}
		fmt.Fprintln(w, line)
		return true
	})
}
