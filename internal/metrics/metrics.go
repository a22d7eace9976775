package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once
	registerErr  error

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agreement_decisions_total",
		Help: "Recorded agreement decisions by outcome",
	}, []string{"decision"})

	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agreement_revision_transitions_total",
		Help: "Revision lifecycle transitions",
	}, []string{"operation"})

	sessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agreement_consent_sessions_total",
		Help: "Consent sessions by outcome",
	}, []string{"outcome"}) // started|completed|cancelled|expired

	sweeperTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agreement_sweeper_tasks_total",
		Help: "Expiry tasks processed by outcome",
	}, []string{"outcome"}) // deactivated|compliant|postponed|discarded|failed
)

// Register adds the collectors to reg (default registry when nil) and returns
// the /metrics handler. Safe to call more than once.
func Register(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	registerOnce.Do(func() {
		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, decisionsTotal,
			transitionsTotal, sessionsTotal, sweeperTasksTotal,
		} {
			if err := reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if errors.As(err, &are) {
					continue
				}
				registerErr = err
				return
			}
		}
	})
	if registerErr != nil {
		return nil, registerErr
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{}), nil
	}
	return promhttp.Handler(), nil
}

func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func ObserveDecision(decision string) {
	decisionsTotal.WithLabelValues(decision).Inc()
}

func ObserveTransition(operation string) {
	transitionsTotal.WithLabelValues(operation).Inc()
}

func ObserveSession(outcome string) {
	sessionsTotal.WithLabelValues(outcome).Inc()
}

func ObserveSweep(outcome string) {
	sweeperTasksTotal.WithLabelValues(outcome).Inc()
}
