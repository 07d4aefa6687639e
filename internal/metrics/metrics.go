package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/l0p7/idxauth-fetch/auth"
)

// Recorder publishes Prometheus metrics for credential-fetch activity. It
// implements auth.Metrics so it can be handed straight to auth.Config.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	requests      *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	discoveries   *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idxauth",
		Subsystem: "fetch",
		Name:      "requests_total",
		Help:      "Requests handled by the credential transport, by classification and outcome.",
	}, []string{"classification", "outcome"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idxauth",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Credential cache lookups, by map and hit/miss.",
	}, []string{"map", "result"})

	discoveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idxauth",
		Subsystem: "fetch",
		Name:      "discoveries_total",
		Help:      "Single-flight credential discovery attempts, by election and outcome.",
	}, []string{"elected", "found"})

	providerCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idxauth",
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "Credential provider invocations, by provider and outcome.",
	}, []string{"provider", "found"})

	reg.MustRegister(requests, cacheLookups, discoveries, providerCalls)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:      reg,
		handler:       handler,
		requests:      requests,
		cacheLookups:  cacheLookups,
		discoveries:   discoveries,
		providerCalls: providerCalls,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveRequest implements auth.Metrics.
func (r *Recorder) ObserveRequest(classification, outcome string) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(normalizeLabel(classification), normalizeLabel(outcome)).Inc()
}

// ObserveCacheLookup implements auth.Metrics.
func (r *Recorder) ObserveCacheLookup(mapName string, hit bool) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(normalizeLabel(mapName), boolLabel(hit, "hit", "miss")).Inc()
}

// ObserveFetch implements auth.Metrics.
func (r *Recorder) ObserveFetch(elected, found bool) {
	if r == nil {
		return
	}
	r.discoveries.WithLabelValues(boolLabel(elected, "true", "false"), boolLabel(found, "true", "false")).Inc()
}

// ObserveProvider implements auth.Metrics.
func (r *Recorder) ObserveProvider(provider string, found bool) {
	if r == nil {
		return
	}
	r.providerCalls.WithLabelValues(normalizeLabel(provider), boolLabel(found, "true", "false")).Inc()
}

var _ auth.Metrics = (*Recorder)(nil)

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func boolLabel(v bool, whenTrue, whenFalse string) string {
	if v {
		return whenTrue
	}
	return whenFalse
}
