package tags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"boxmark/pkg/async"
	"boxmark/pkg/metrics"
)

// ErrUnknownTable is returned by sources that have no table for an id.
var ErrUnknownTable = errors.New("tags: unknown depth asset list")

// Registry maps tag names to definitions. The custom part is append-only:
// once a name has an id it keeps it for the Registry's lifetime. It is safe
// for concurrent use; resolution of one depth asset list identifier is
// shared by all concurrent callers.
type Registry struct {
	source  TableSource
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	byName map[string]Definition
	byID   []Definition
	tables map[string]*Table

	group singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for resolution events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics records resolution outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates a Registry holding the built-in tags. source may be
// nil when documents never declare a depth asset list.
func NewRegistry(source TableSource, opts ...Option) *Registry {
	r := &Registry{
		source: source,
		logger: slog.Default(),
		byName: make(map[string]Definition, End),
		byID:   make([]Definition, End),
		tables: make(map[string]*Table),
	}
	for id, def := range builtins {
		def.ID = id
		r.byID[id] = def
		r.byName[def.Name] = def
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify returns the definition for a known tag name.
func (r *Registry) Classify(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	return def, ok
}

// ByID returns the definition registered under id.
func (r *Registry) ByID(id int) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 0 || id >= len(r.byID) {
		return Definition{}, false
	}
	return r.byID[id], true
}

// Name returns the tag name for id, or "" when unknown.
func (r *Registry) Name(id int) string {
	def, _ := r.ByID(id)
	return def.Name
}

// AdditionalCount is the number of custom tags registered so far.
func (r *Registry) AdditionalCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID) - End
}

// Cached returns the resolved table for id without triggering a fetch.
func (r *Registry) Cached(id string) (*Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[id]
	return t, ok
}

// Load resolves the depth asset list id. A cached table is returned as a
// ready future; otherwise a fetch is started (or joined, if one is already
// in flight) and the returned future settles when it completes. Failures
// are not cached, so a later document may retry.
func (r *Registry) Load(ctx context.Context, id string) *async.Future[*Table] {
	if t, ok := r.Cached(id); ok {
		return async.Ready(t)
	}
	if r.source == nil {
		return async.Failed[*Table](fmt.Errorf("%w: %s (no table source)", ErrUnknownTable, id))
	}

	f, resolve, fail := async.NewPending[*Table]()
	fetchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(id, func() (any, error) {
		if t, ok := r.Cached(id); ok {
			return t, nil
		}
		r.logger.Debug("resolving depth asset list", "id", id)
		t, err := r.source.Table(fetchCtx, id)
		if err != nil {
			r.metrics.TableResolved("error")
			r.logger.Warn("depth asset list failed", "id", id, "error", err)
			return nil, err
		}
		r.mu.Lock()
		r.tables[id] = t
		r.mu.Unlock()
		r.metrics.TableResolved("ok")
		r.logger.Debug("depth asset list resolved", "id", id, "tags", len(t.Tags))
		return t, nil
	})
	go func() {
		res := <-ch
		if res.Err != nil {
			fail(res.Err)
			return
		}
		resolve(res.Val.(*Table))
	}()
	return f
}

// Register assigns an id to name as declared by table. Registering a name
// that already has a definition returns the existing one unchanged.
func (r *Registry) Register(table *Table, name string) (Definition, error) {
	if def, ok := r.Classify(name); ok {
		return def, nil
	}
	entry, ok := table.Lookup(name)
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrNotInTable, name)
	}
	content, _ := ParseContentType(entry.Type)

	r.mu.Lock()
	if def, ok := r.byName[name]; ok {
		r.mu.Unlock()
		return def, nil
	}
	def := Definition{
		ID:      len(r.byID),
		Name:    name,
		Content: content,
		IsBox:   entry.Box,
		Custom:  true,
	}
	r.byID = append(r.byID, def)
	r.byName[name] = def
	r.mu.Unlock()

	r.metrics.TagRegistered()
	r.logger.Debug("registered custom tag", "name", name, "id", def.ID, "content", content)
	return def, nil
}
