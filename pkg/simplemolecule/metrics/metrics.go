// Package metrics exposes store and resolver activity as Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-molecule/pkg/simplemolecule"
)

const namespace = "simplemolecule"

// Collector owns the metrics and feeds them through simplemolecule hooks.
type Collector struct {
	stores      *prometheus.CounterVec
	edits       *prometheus.CounterVec
	clears      prometheus.Counter
	resolutions *prometheus.CounterVec
	errors      *prometheus.CounterVec
	storedAtoms prometheus.Histogram
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		stores: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_stored_total",
				Help:      "Total number of records written to the store",
			},
			[]string{"origin", "format"},
		),
		edits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_edited_total",
				Help:      "Total number of successful edits",
			},
			[]string{"edit_type"},
		),
		clears: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_cleared_total",
				Help:      "Total number of records removed",
			},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of resolutions by source tier",
			},
			[]string{"source", "success"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of failed operations",
			},
			[]string{"operation"},
		),
		storedAtoms: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stored_atoms",
				Help:      "Atom count of stored records",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
	}

	for _, m := range []prometheus.Collector{c.stores, c.edits, c.clears, c.resolutions, c.errors, c.storedAtoms} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveStore registers gauges reading the live size of store.
func (c *Collector) ObserveStore(reg prometheus.Registerer, store *simplemolecule.ContentStore) error {
	records := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Number of records currently cached",
		},
		func() float64 { return float64(store.Len()) },
	)
	if err := reg.Register(records); err != nil {
		return err
	}

	sessions := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of distinct sessions with cached records",
		},
		func() float64 { return float64(len(store.Sessions())) },
	)
	return reg.Register(sessions)
}

// Hooks returns the hooks that update the metrics.
func (c *Collector) Hooks() *simplemolecule.Hooks {
	return &simplemolecule.Hooks{
		AfterStore: []simplemolecule.AfterStoreHook{
			func(hctx *simplemolecule.HookContext, record *simplemolecule.Record) error {
				c.stores.WithLabelValues(string(record.Origin), string(record.Format)).Inc()
				c.storedAtoms.Observe(float64(record.Stats.Atoms))
				return nil
			},
		},
		AfterEdit: []simplemolecule.AfterEditHook{
			func(hctx *simplemolecule.HookContext, record *simplemolecule.Record, entry simplemolecule.EditEntry) error {
				c.edits.WithLabelValues(string(entry.Type)).Inc()
				return nil
			},
		},
		AfterClear: []simplemolecule.AfterClearHook{
			func(hctx *simplemolecule.HookContext, identifier string) error {
				c.clears.Inc()
				return nil
			},
		},
		OnResolve: []simplemolecule.ResolveHook{
			func(hctx *simplemolecule.HookContext, content string, md *simplemolecule.Metadata) error {
				c.resolutions.WithLabelValues(string(md.Source), strconv.FormatBool(md.Success)).Inc()
				return nil
			},
		},
		OnError: []simplemolecule.ErrorHook{
			func(hctx *simplemolecule.HookContext, operation string, err error) {
				c.errors.WithLabelValues(operation).Inc()
			},
		},
	}
}
