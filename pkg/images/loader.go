// Package images resolves image intrinsic sizes for layout and decodes
// images for rendering.
package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"boxmark/pkg/async"
	"boxmark/pkg/metrics"
	"boxmark/pkg/resource"
)

// Size is an image's intrinsic size in layout units.
type Size struct {
	Width  float64
	Height float64
}

// SizeProvider resolves intrinsic sizes. The returned future may be
// pending while the image is fetched.
type SizeProvider interface {
	Size(ctx context.Context, url string) *async.Future[Size]
}

// DecodeSize reads only the image header to find its dimensions.
func DecodeSize(data []byte) (Size, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Size{}, fmt.Errorf("decoding image header: %w", err)
	}
	return Size{Width: float64(cfg.Width), Height: float64(cfg.Height)}, nil
}

// Decode decodes a full image.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// Loader fetches images through a resource.Fetcher and caches their
// sizes. Concurrent lookups of one URL share a single fetch.
type Loader struct {
	fetcher resource.Fetcher
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	sizes map[string]Size

	group singleflight.Group
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(l *slog.Logger) LoaderOption {
	return func(ld *Loader) { ld.logger = l }
}

// WithMetrics records lookup outcomes.
func WithMetrics(m *metrics.Metrics) LoaderOption {
	return func(ld *Loader) { ld.metrics = m }
}

// NewLoader creates a Loader.
func NewLoader(fetcher resource.Fetcher, opts ...LoaderOption) *Loader {
	l := &Loader{
		fetcher: fetcher,
		logger:  slog.Default(),
		sizes:   make(map[string]Size),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) cached(url string) (Size, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sizes[url]
	return s, ok
}

func (l *Loader) load(ctx context.Context, url string) (Size, error) {
	type lookup struct {
		size Size
		hit  bool
	}
	v, err, _ := l.group.Do(url, func() (any, error) {
		// Another flight may have filled the cache since the caller checked.
		if s, ok := l.cached(url); ok {
			return lookup{size: s, hit: true}, nil
		}
		body, _, err := l.fetcher.Fetch(ctx, url)
		if err != nil {
			return lookup{}, err
		}
		s, err := DecodeSize(body)
		if err != nil {
			return lookup{}, err
		}
		l.mu.Lock()
		l.sizes[url] = s
		l.mu.Unlock()
		return lookup{size: s}, nil
	})
	if err != nil {
		l.metrics.ImageLookup("fail")
		l.logger.Warn("image size lookup failed", "url", url, "error", err)
		return Size{}, err
	}
	res := v.(lookup)
	if res.hit {
		l.metrics.ImageLookup("hit")
	} else {
		l.metrics.ImageLookup("miss")
	}
	return res.size, nil
}

// Size returns a ready future for cached sizes; otherwise the fetch runs
// in the background and the future settles when it finishes.
func (l *Loader) Size(ctx context.Context, url string) *async.Future[Size] {
	if s, ok := l.cached(url); ok {
		l.metrics.ImageLookup("hit")
		return async.Ready(s)
	}
	f, resolve, fail := async.NewPending[Size]()
	fetchCtx := context.WithoutCancel(ctx)
	go func() {
		s, err := l.load(fetchCtx, url)
		if err != nil {
			fail(err)
			return
		}
		resolve(s)
	}()
	return f
}

// Prefetch resolves the sizes of urls concurrently, at most limit at a
// time, so a later layout finds them cached. It returns the first error.
func (l *Loader) Prefetch(ctx context.Context, urls []string, limit int) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, url := range urls {
		if _, ok := l.cached(url); ok {
			continue
		}
		url := url
		g.Go(func() error {
			_, err := l.load(gctx, url)
			return err
		})
	}
	return g.Wait()
}

// Image fetches and decodes the image at url.
func (l *Loader) Image(ctx context.Context, url string) (image.Image, error) {
	body, _, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return Decode(body)
}

// StaticSizes answers lookups from a fixed map; unknown URLs fail.
type StaticSizes map[string]Size

func (s StaticSizes) Size(_ context.Context, url string) *async.Future[Size] {
	if sz, ok := s[url]; ok {
		return async.Ready(sz)
	}
	return async.Failed[Size](fmt.Errorf("no size for %s", url))
}
