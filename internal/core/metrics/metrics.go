// Package metrics exposes PriceKeeper's Prometheus instruments.
//
// A Recorder owns its registry so tests and multiple servers in one process
// do not collide on the global one. Recorder implements rules.Observer, which
// is how evaluation soft failures become counters.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricekeeper"

// Recorder holds every PriceKeeper metric.
type Recorder struct {
	registry *prometheus.Registry

	conditionFailures *prometheus.CounterVec
	actionFailures    *prometheus.CounterVec
	lookupUnavailable *prometheus.CounterVec
	evaluations       *prometheus.CounterVec
	evalDuration      prometheus.Histogram
	rulesApplied      prometheus.Histogram
	transitions       *prometheus.CounterVec
	buyboxSelections  *prometheus.CounterVec
	rpcRequests       *prometheus.CounterVec
}

// New creates a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		conditionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "condition_failures_total",
			Help:      "Conditions that evaluated to false because of an error.",
		}, []string{"condition_type"}),
		actionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_failures_total",
			Help:      "Actions that failed and dropped their rule from the evaluation.",
		}, []string{"action_type"}),
		lookupUnavailable: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_unavailable_total",
			Help:      "External lookups that errored or timed out.",
		}, []string{"source"}),
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Price evaluations by outcome.",
		}, []string{"outcome"}),
		evalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Latency of a full price evaluation.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		rulesApplied: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rules_applied",
			Help:      "Rules that changed the price in one evaluation.",
			Buckets:   prometheus.LinearBuckets(0, 1, 10),
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_transitions_total",
			Help:      "Committed rule status transitions by target status.",
		}, []string{"to"}),
		buyboxSelections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buybox_selections_total",
			Help:      "Buybox selections by outcome.",
		}, []string{"outcome"}),
		rpcRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "gRPC requests by method and status code.",
		}, []string{"method", "code"}),
	}
}

// ConditionFailed implements rules.Observer.
func (r *Recorder) ConditionFailed(conditionType string) {
	r.conditionFailures.WithLabelValues(conditionType).Inc()
}

// ActionFailed implements rules.Observer.
func (r *Recorder) ActionFailed(actionType string) {
	r.actionFailures.WithLabelValues(actionType).Inc()
}

// LookupUnavailable implements rules.Observer.
func (r *Recorder) LookupUnavailable(source string) {
	r.lookupUnavailable.WithLabelValues(source).Inc()
}

// Evaluation records one evaluation. outcome is "ok" or an error class.
func (r *Recorder) Evaluation(outcome string, took time.Duration, applied int) {
	r.evaluations.WithLabelValues(outcome).Inc()
	r.evalDuration.Observe(took.Seconds())
	if outcome == "ok" {
		r.rulesApplied.Observe(float64(applied))
	}
}

// Transition records a committed status change.
func (r *Recorder) Transition(to string) {
	r.transitions.WithLabelValues(to).Inc()
}

// Buybox records a buybox selection outcome ("won", "no_offer", "error").
func (r *Recorder) Buybox(outcome string) {
	r.buyboxSelections.WithLabelValues(outcome).Inc()
}

// RPC records a finished gRPC call.
func (r *Recorder) RPC(method, code string) {
	r.rpcRequests.WithLabelValues(method, code).Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
