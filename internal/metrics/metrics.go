package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dashnorm/internal"
)

// Recorder exposes normalizer activity, including the data-quality anomalies
// that the permissive default otherwise drops without a trace.
type Recorder struct {
	registry     *prometheus.Registry
	runs         *prometheus.CounterVec
	parentRows   *prometheus.CounterVec
	subRecords   *prometheus.CounterVec
	anomalies    *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashnorm",
			Name:      "runs_total",
			Help:      "Normalizer runs by preset and outcome.",
		}, []string{"preset", "outcome"}),
		parentRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashnorm",
			Name:      "parent_rows_total",
			Help:      "Parent rows read by the normalizer.",
		}, []string{"preset"}),
		subRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashnorm",
			Name:      "sub_records_total",
			Help:      "Sub-records emitted by the normalizer.",
		}, []string{"preset"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashnorm",
			Name:      "anomalies_total",
			Help:      "Packed-field anomalies by kind.",
		}, []string{"preset", "kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashnorm",
			Name:      "cache_lookups_total",
			Help:      "Memo cache lookups by result.",
		}, []string{"result"}),
	}
	r.registry.MustRegister(r.runs, r.parentRows, r.subRecords, r.anomalies, r.cacheLookups)
	return r
}

// ObserveRun records a completed normalization. Cached results are not re-counted.
func (r *Recorder) ObserveRun(preset string, stats internal.NormalizeStats, cached bool) {
	r.runs.WithLabelValues(preset, "ok").Inc()
	if cached {
		r.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	r.cacheLookups.WithLabelValues("miss").Inc()
	r.parentRows.WithLabelValues(preset).Add(float64(stats.ParentRows))
	r.subRecords.WithLabelValues(preset).Add(float64(stats.SubRecords))
	r.anomalies.WithLabelValues(preset, "malformed_segment").Add(float64(stats.MalformedSegments))
	r.anomalies.WithLabelValues(preset, "duplicate_index").Add(float64(stats.DuplicateIndices))
}

func (r *Recorder) ObserveFailure(preset string) {
	r.runs.WithLabelValues(preset, "error").Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
