// Package layout positions a parsed markup tree inside a viewport.
//
// A layout pass never edits the tree it is given. It decorates a fresh copy:
// the copy is reverted to pristine content, image sizes are requested, and
// once every size has settled the geometry is computed in one synchronous
// pass. Text that wraps is split into insertion wrappers in the copy only.
package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"boxmark/pkg/async"
	"boxmark/pkg/images"
	"boxmark/pkg/markup"
	"boxmark/pkg/metrics"
	"boxmark/pkg/tags"
	"boxmark/pkg/text"
)

// Size is a viewport size.
type Size struct {
	Width, Height float64
}

// Result is a decorated layout tree.
type Result struct {
	Root     *markup.Node
	Viewport Size
	// Errors holds the parse errors of the input tree followed by the
	// errors found during layout.
	Errors *markup.Errors
	// Failed lists image nodes whose size could not be resolved. They are
	// laid out as zero-size placeholders.
	Failed []*markup.Node
}

// Machine lays out trees. It holds no per-layout state and may run any
// number of layouts concurrently.
type Machine struct {
	reg     *tags.Registry
	measure text.Measurer
	images  images.SizeProvider
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Machine.
type Option func(*Machine)

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// NewMachine creates a layout machine. reg may be nil, in which case
// region and box information comes from the nodes alone.
func NewMachine(reg *tags.Registry, measure text.Measurer, imgs images.SizeProvider, opts ...Option) *Machine {
	m := &Machine{
		reg:     reg,
		measure: measure,
		images:  imgs,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type phase int

const (
	phaseCollect phase = iota
	phaseWait
	phaseCompute
	phaseDone
)

// Run is one layout pass. Step advances it until it finishes or waits on
// image sizes.
type Run struct {
	m        *Machine
	ctx      context.Context
	tree     *markup.Tree
	viewport Size

	phase     phase
	sizes     map[string]*async.Future[images.Size]
	pending   *async.Future[struct{}]
	abandoned error
	result    *Result
}

// Start begins a layout pass over a copy of tree.
func (m *Machine) Start(ctx context.Context, tree *markup.Tree, viewport Size) *Run {
	work := markup.CloneTree(tree)
	markup.Revert(work.Root)
	return &Run{
		m:        m,
		ctx:      ctx,
		tree:     work,
		viewport: viewport,
		sizes:    make(map[string]*async.Future[images.Size]),
	}
}

// Result returns the finished layout, or nil while the run is in progress.
func (r *Run) Result() *Result {
	return r.result
}

// Step advances the run. It returns a waiter while image sizes are
// outstanding.
func (r *Run) Step() (bool, async.Waiter) {
	for {
		switch r.phase {
		case phaseCollect:
			r.collect()
			r.phase = phaseWait
		case phaseWait:
			if r.abandoned == nil && r.pending != nil && !r.pending.Done() {
				return false, r.pending
			}
			r.phase = phaseCompute
		case phaseCompute:
			r.compute()
			r.phase = phaseDone
		case phaseDone:
			return true, nil
		}
	}
}

// Abandon stops waiting for image sizes. Images still unresolved are laid
// out as failed placeholders.
func (r *Run) Abandon(reason error) {
	if r.abandoned == nil {
		r.abandoned = reason
	}
}

func (r *Run) collect() {
	var waiters []async.Waiter
	r.tree.Root.Walk(func(n *markup.Node) bool {
		if n.Hidden() {
			return false
		}
		if n.Type != markup.ContentImg {
			return true
		}
		if _, _, ok := explicitSize(n); ok {
			return false
		}
		src, ok := n.Attr("src")
		if !ok || src == "" {
			return false
		}
		if _, seen := r.sizes[src]; !seen && r.m.images != nil {
			f := r.m.images.Size(r.ctx, src)
			r.sizes[src] = f
			waiters = append(waiters, f)
		}
		return false
	})
	if len(waiters) > 0 {
		r.pending = async.All(waiters...)
		r.m.logger.Debug("waiting for image sizes", "count", len(waiters))
	}
}

func (r *Run) compute() {
	start := time.Now()
	res := &Result{
		Root:     r.tree.Root,
		Viewport: r.viewport,
		Errors:   r.tree.Errors,
	}
	fl := &flow{run: r, result: res}
	fl.layoutRoot(r.tree.Root, r.viewport.Width)
	r.result = res

	elapsed := time.Since(start)
	r.m.metrics.LayoutDone(elapsed.Seconds())
	r.m.logger.Debug("layout finished",
		"width", r.viewport.Width,
		"height", res.Root.Height,
		"nodes", res.Root.Count(),
		"failed", len(res.Failed),
		"elapsed", elapsed)
}

// imageSize reports the resolved size for src, or the error code to
// record when it is not available.
func (r *Run) imageSize(src string) (images.Size, markup.ErrorCode, error) {
	f, ok := r.sizes[src]
	if !ok {
		return images.Size{}, markup.ErrImageFailed, errors.New("no image size provider")
	}
	if !f.Done() {
		return images.Size{}, markup.ErrResolutionTimeout, fmt.Errorf("size still pending: %w", r.abandoned)
	}
	size, err := f.Result()
	if err != nil {
		return images.Size{}, markup.ErrImageFailed, err
	}
	return size, 0, nil
}

// Layout lays out tree cooperatively. done receives the result, either
// before Layout returns or later, on the goroutine that resolves the last
// outstanding image size.
func (m *Machine) Layout(ctx context.Context, tree *markup.Tree, viewport Size, done func(*Result)) *Run {
	r := m.Start(ctx, tree, viewport)
	async.Resume(r.Step, func() { done(r.result) })
	return r
}

// LayoutSync lays out tree, blocking while image sizes load. When ctx ends
// first, the unresolved images become placeholders and the completed
// result is returned together with ctx's error.
func (m *Machine) LayoutSync(ctx context.Context, tree *markup.Tree, viewport Size) (*Result, error) {
	r := m.Start(ctx, tree, viewport)
	if err := async.Drive(ctx, r.Step); err != nil {
		r.Abandon(err)
		r.Step()
		return r.result, fmt.Errorf("layout: %w", err)
	}
	return r.result, nil
}
