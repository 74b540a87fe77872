// Package metrics содержит Prometheus-метрики сервиса.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "impulsaweb"

// Исходы операций, используемые как значения метки outcome.
const (
	OutcomeCreated  = "created"
	OutcomeUpdated  = "updated"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics объединяет счётчики HTTP и доменных операций.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	orders         *prometheus.CounterVec
	briefs         *prometheus.CounterVec
	statusChanges  *prometheus.CounterVec
	droppedFields  *prometheus.CounterVec
	notifyFailures prometheus.Counter
}

// New создаёт метрики в отдельном реестре вместе со стандартными метриками процесса и Go.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order creation attempts by outcome.",
		}, []string{"outcome"}),
		briefs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "briefs_total",
			Help:      "Brief submissions by outcome.",
		}, []string{"outcome"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_status_changes_total",
			Help:      "Order status changes by target status.",
		}, []string{"status"}),
		droppedFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rowstore_dropped_fields_total",
			Help:      "Fields dropped on write because the table header has no such column.",
		}, []string{"table"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Webhook notifications that failed to deliver.",
		}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.orders,
		m.briefs,
		m.statusChanges,
		m.droppedFields,
		m.notifyFailures,
	)
	return m
}

// Handler отдаёт метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP учитывает обработанный HTTP-запрос.
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Order учитывает попытку создания заказа.
func (m *Metrics) Order(outcome string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(outcome).Inc()
}

// Brief учитывает попытку отправки брифа.
func (m *Metrics) Brief(outcome string) {
	if m == nil {
		return
	}
	m.briefs.WithLabelValues(outcome).Inc()
}

// StatusChanged учитывает смену статуса заказа.
func (m *Metrics) StatusChanged(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

// FieldsDropped учитывает поля, не попавшие в таблицу.
func (m *Metrics) FieldsDropped(table string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedFields.WithLabelValues(table).Add(float64(n))
}

// NotifyFailed учитывает неудачную отправку уведомления.
func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}
