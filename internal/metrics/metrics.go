// Package metrics exposes dispatch counters to Prometheus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "gwiz_"

	ResultAck     = "ack"
	ResultError   = "error"
	ResultComment = "comment"
)

// Recorder holds the dispatch metrics. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	transmitted      prometheus.Counter
	writeErrors      prometheus.Counter
	replies          *prometheus.CounterVec
	retired          *prometheus.CounterVec
	desyncs          prometheus.Counter
	telemetryErrors  prometheus.Counter
	notifierFailures prometheus.Counter

	pending  prometheus.Gauge
	inFlight prometheus.Gauge
}

var (
	registerOnce sync.Once
	defaultRec   *Recorder
)

// Default returns the process-wide recorder, registered once along with the
// Go runtime and process collectors.
func Default() *Recorder {
	registerOnce.Do(func() {
		defaultRec = New()
		defaultRec.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return defaultRec
}

// New returns a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "commands_transmitted_total",
			Help: "Commands written to the machine",
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "transport_write_errors_total",
			Help: "Failed transport writes",
		}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "replies_total",
			Help: "Device lines by classified kind",
		}, []string{"kind"}),
		retired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "inflight_retired_total",
			Help: "Entries retired from the in-flight pile by result",
		}, []string{"result"}),
		desyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "protocol_desyncs_total",
			Help: "Acknowledgements received with nothing in flight",
		}),
		telemetryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "telemetry_parse_errors_total",
			Help: "Temperature reports that could not be parsed",
		}),
		notifierFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "notifier_failures_total",
			Help: "Failed redraw notifications",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "pending_depth",
			Help: "Commands waiting in the pending pile and loaded programs",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "inflight_depth",
			Help: "Commands sent and not yet acknowledged",
		}),
	}
	r.registry.MustRegister(
		r.transmitted, r.writeErrors, r.replies, r.retired,
		r.desyncs, r.telemetryErrors, r.notifierFailures,
		r.pending, r.inFlight,
	)
	return r
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Transmitted() {
	if r != nil {
		r.transmitted.Inc()
	}
}

func (r *Recorder) WriteError() {
	if r != nil {
		r.writeErrors.Inc()
	}
}

func (r *Recorder) Reply(kind string) {
	if r != nil {
		r.replies.WithLabelValues(kind).Inc()
	}
}

func (r *Recorder) Retired(result string) {
	if r != nil {
		r.retired.WithLabelValues(result).Inc()
	}
}

func (r *Recorder) Desync() {
	if r != nil {
		r.desyncs.Inc()
	}
}

func (r *Recorder) TelemetryError() {
	if r != nil {
		r.telemetryErrors.Inc()
	}
}

func (r *Recorder) NotifierFailure() {
	if r != nil {
		r.notifierFailures.Inc()
	}
}

// Depths sets the pile gauges.
func (r *Recorder) Depths(pending, inFlight int) {
	if r != nil {
		r.pending.Set(float64(pending))
		r.inFlight.Set(float64(inFlight))
	}
}
