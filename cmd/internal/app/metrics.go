package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authgate/cmd/internal/auth/gate"
)

const metricsNamespace = "authgate"

// Metrics records gate decisions, auth actions and HTTP traffic on a private
// registry. It satisfies gate.Observer and authapi.Observer.
type Metrics struct {
	reg *prometheus.Registry

	gateOutcomes *prometheus.CounterVec
	authActions  *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics registers the authgate collectors plus the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		gateOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "gate_outcomes_total",
			Help:      "Requests seen by the authorization gate, by outcome.",
		}, []string{"outcome"}),
		authActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auth_actions_total",
			Help:      "Auth actions handled, by action and result status.",
		}, []string{"action", "result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP responses, by method and status class.",
		}, []string{"method", "class"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by status class.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"class"}),
	}
}

func (m *Metrics) GateOutcome(o gate.Outcome) {
	if m == nil {
		return
	}
	m.gateOutcomes.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) AuthAction(action, result string) {
	if m == nil {
		return
	}
	m.authActions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) observeHTTP(method string, status int, seconds float64) {
	if m == nil {
		return
	}
	class := statusClass(status)
	m.httpRequests.WithLabelValues(methodLabel(method), class).Inc()
	m.httpDuration.WithLabelValues(class).Observe(seconds)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// methodLabel keeps the method label bounded to the standard verbs.
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace:
		return method
	default:
		return "other"
	}
}
