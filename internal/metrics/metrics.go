// Package metrics exposes Prometheus counters for the alarm services.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "gatt_sentry_"

// Delivery results.
const (
	ResultSent       = "sent"
	ResultError      = "error"
	ResultNotReady   = "not_ready"
	ResultDenied     = "denied"
	ResultReadError  = "read_error"
	ResultSuppressed = "suppressed"
)

var (
	registerOnce sync.Once

	evaluationsTotal     *prometheus.CounterVec
	deliveriesTotal      *prometheus.CounterVec
	indicationDenied     *prometheus.CounterVec
	writesDroppedTotal   *prometheus.CounterVec
	sampleValue          *prometheus.GaugeVec
	connectionEventTotal *prometheus.CounterVec
)

// Init registers the metrics with the default registry. Until Init is called
// every recording function is a no-op.
func Init() {
	registerOnce.Do(func() {
		evaluationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "evaluations_total",
				Help: "Threshold evaluations by service and resulting alarm code",
			},
			[]string{"service", "code"},
		)
		deliveriesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "deliveries_total",
				Help: "Value and alarm deliveries by service, path and result",
			},
			[]string{"service", "path", "result"},
		)
		indicationDenied = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "indication_denied_total",
				Help: "Indications held back because another indication was unconfirmed",
			},
			[]string{"service"},
		)
		writesDroppedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "writes_dropped_total",
				Help: "Malformed characteristic writes ignored",
			},
			[]string{"service", "characteristic"},
		)
		sampleValue = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "sample",
				Help: "Latest raw sensor sample",
			},
			[]string{"service"},
		)
		connectionEventTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "connection_events_total",
				Help: "Central connect and disconnect events",
			},
			[]string{"event"},
		)

		prometheus.MustRegister(
			evaluationsTotal,
			deliveriesTotal,
			indicationDenied,
			writesDroppedTotal,
			sampleValue,
			connectionEventTotal,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveEvaluation counts one evaluation.
func ObserveEvaluation(service, code string) {
	if evaluationsTotal != nil {
		evaluationsTotal.WithLabelValues(service, code).Inc()
	}
}

// ObserveDelivery counts one delivery attempt.
func ObserveDelivery(service, path, result string) {
	if result == "" {
		result = ResultSent
	}
	if deliveriesTotal != nil {
		deliveriesTotal.WithLabelValues(service, path, result).Inc()
	}
}

// IncIndicationDenied counts an arbiter denial.
func IncIndicationDenied(service string) {
	if indicationDenied != nil {
		indicationDenied.WithLabelValues(service).Inc()
	}
}

// IncWriteDropped counts a malformed write.
func IncWriteDropped(service, characteristic string) {
	if characteristic == "" {
		characteristic = "unknown"
	}
	if writesDroppedTotal != nil {
		writesDroppedTotal.WithLabelValues(service, characteristic).Inc()
	}
}

// SetSample records the latest sample.
func SetSample(service string, v uint16) {
	if sampleValue != nil {
		sampleValue.WithLabelValues(service).Set(float64(v))
	}
}

// IncConnectionEvent counts a connect or disconnect.
func IncConnectionEvent(event string) {
	if connectionEventTotal != nil {
		connectionEventTotal.WithLabelValues(event).Inc()
	}
}
