package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blogauth"

// Auth events
const (
	EventLogin    = "login"
	EventRegister = "register"
	EventRefresh  = "refresh"
	EventLogout   = "logout"
	EventIssue    = "code_issue"
	EventExchange = "code_exchange"
	EventLink     = "link"
	EventUnlink   = "unlink"
)

// Event results
const (
	ResultOK   = "ok"
	ResultFail = "fail"
)

// Metrics owns its registry so every instance (tests included) starts from zero
// nil *Metrics is valid and records nothing
type Metrics struct {
	registry *prometheus.Registry

	AuthEvents  *prometheus.CounterVec
	CodesIssued prometheus.Counter
	CodesSwept  prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		AuthEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_events_total",
				Help:      "Authentication events by outcome",
			},
			[]string{"event", "result"},
		),
		CodesIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_codes_issued_total",
			Help:      "Exchange codes issued",
		}),
		CodesSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_codes_swept_total",
			Help:      "Expired exchange codes removed without being redeemed",
		}),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being served",
		}),
	}
}

// Record auth event outcome
func (m *Metrics) Event(event string, err error) {
	if m == nil {
		return
	}

	result := ResultOK
	if err != nil {
		result = ResultFail
	}
	m.AuthEvents.WithLabelValues(event, result).Inc()
}

func (m *Metrics) CodeIssued() {
	if m == nil {
		return
	}
	m.CodesIssued.Inc()
}

func (m *Metrics) CodesExpired(n int) {
	if m == nil || n == 0 {
		return
	}
	m.CodesSwept.Add(float64(n))
}

// Report number of exchange codes waiting for redemption
// Call once per Metrics, count is read on every scrape
func (m *Metrics) ObservePendingCodes(count func() int) {
	if m == nil {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exchange_codes_pending",
			Help:      "Exchange codes issued and not redeemed or swept yet",
		},
		func() float64 { return float64(count()) },
	)
}

// Handler exposes the registry in prometheus text format
// Nil metrics has nothing to expose: 404
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
