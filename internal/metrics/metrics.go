package metrics

import (
	"strings"

	"github.com/newthinker/sigalign/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// Source metrics
	fetchesTotal    *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	samplesFetched  *prometheus.CounterVec
	samplesExcluded *prometheus.CounterVec
	fetchesInFlight prometheus.Gauge

	// Resolution and alignment metrics
	resolutionsTotal *prometheus.CounterVec
	passesTotal      *prometheus.CounterVec
	passDuration     prometheus.Histogram
	gridPoints       prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		fetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigalign_fetches_total",
				Help: "Total number of historical fetches",
			},
			[]string{"protocol", "status"},
		),

		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigalign_fetch_duration_seconds",
				Help:    "Historical fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"protocol"},
		),

		samplesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigalign_samples_fetched_total",
				Help: "Total number of samples returned by sources",
			},
			[]string{"protocol"},
		),

		samplesExcluded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigalign_samples_excluded_total",
				Help: "Total number of samples dropped for bad quality",
			},
			[]string{"protocol"},
		),

		fetchesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sigalign_fetches_in_flight",
				Help: "Number of historical fetches currently in flight",
			},
		),
	}

	reg.MustRegister(r.fetchesTotal)
	reg.MustRegister(r.fetchDuration)
	reg.MustRegister(r.samplesFetched)
	reg.MustRegister(r.samplesExcluded)
	reg.MustRegister(r.fetchesInFlight)

	r.resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigalign_resolutions_total",
			Help: "Total number of signal resolutions",
		},
		[]string{"status"},
	)
	r.passesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigalign_passes_total",
			Help: "Total number of alignment passes",
		},
		[]string{"status"},
	)
	r.passDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sigalign_pass_duration_seconds",
			Help:    "Alignment pass duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)
	r.gridPoints = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sigalign_grid_points",
			Help: "Number of grid points of the last pass",
		},
	)

	reg.MustRegister(r.resolutionsTotal)
	reg.MustRegister(r.passesTotal)
	reg.MustRegister(r.passDuration)
	reg.MustRegister(r.gridPoints)

	return r
}

// Methods are safe on a nil *Registry so components can run without metrics.

// FetchStarted increments in-flight fetches.
func (r *Registry) FetchStarted() {
	if r == nil {
		return
	}
	r.fetchesInFlight.Inc()
}

// RecordFetch records a finished fetch.
func (r *Registry) RecordFetch(protocol core.Protocol, err error, samples int, duration float64) {
	if r == nil {
		return
	}
	r.fetchesInFlight.Dec()
	r.fetchesTotal.WithLabelValues(string(protocol), Status(err)).Inc()
	r.fetchDuration.WithLabelValues(string(protocol)).Observe(duration)
	r.samplesFetched.WithLabelValues(string(protocol)).Add(float64(samples))
}

// RecordExcluded records samples dropped for bad quality.
func (r *Registry) RecordExcluded(protocol core.Protocol, n int) {
	if r == nil || n == 0 {
		return
	}
	r.samplesExcluded.WithLabelValues(string(protocol)).Add(float64(n))
}

// RecordResolution records a signal resolution.
func (r *Registry) RecordResolution(err error) {
	if r == nil {
		return
	}
	r.resolutionsTotal.WithLabelValues(Status(err)).Inc()
}

// RecordPass records a finished alignment pass.
func (r *Registry) RecordPass(err error, points int, duration float64) {
	if r == nil {
		return
	}
	r.passesTotal.WithLabelValues(Status(err)).Inc()
	r.passDuration.Observe(duration)
	if err == nil {
		r.gridPoints.Set(float64(points))
	}
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}

// Status maps an error to a low-cardinality label value.
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := core.AsError(err); ok {
		return strings.ToLower(e.Code)
	}
	return "error"
}
