// Package metrics exposes prometheus collectors for tag resolution, image
// sizing and layout runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	TagTables      *prometheus.CounterVec
	CustomTags     prometheus.Counter
	ImageLookups   *prometheus.CounterVec
	LayoutRuns     prometheus.Counter
	LayoutDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TagTables: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boxmark",
			Name:      "tag_tables_total",
			Help:      "Depth asset list resolutions by outcome.",
		}, []string{"outcome"}),
		CustomTags: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "boxmark",
			Name:      "custom_tags_registered_total",
			Help:      "Custom tag names assigned an id.",
		}),
		ImageLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boxmark",
			Name:      "image_size_lookups_total",
			Help:      "Image intrinsic size lookups by outcome.",
		}, []string{"outcome"}),
		LayoutRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "boxmark",
			Name:      "layout_runs_total",
			Help:      "Completed layout passes.",
		}),
		LayoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "boxmark",
			Name:      "layout_compute_seconds",
			Help:      "Time spent computing geometry once dependencies resolved.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.TagTables, m.CustomTags, m.ImageLookups, m.LayoutRuns, m.LayoutDuration)
	}
	return m
}

// TableResolved records a depth asset list resolution outcome.
func (m *Metrics) TableResolved(outcome string) {
	if m == nil {
		return
	}
	m.TagTables.WithLabelValues(outcome).Inc()
}

// TagRegistered records a newly assigned custom tag id.
func (m *Metrics) TagRegistered() {
	if m == nil {
		return
	}
	m.CustomTags.Inc()
}

// ImageLookup records an image size lookup outcome (hit, miss, fail).
func (m *Metrics) ImageLookup(outcome string) {
	if m == nil {
		return
	}
	m.ImageLookups.WithLabelValues(outcome).Inc()
}

// LayoutDone records a finished layout pass taking seconds to compute.
func (m *Metrics) LayoutDone(seconds float64) {
	if m == nil {
		return
	}
	m.LayoutRuns.Inc()
	m.LayoutDuration.Observe(seconds)
}
