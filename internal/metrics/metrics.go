package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "climap"

// Metrics holds the Prometheus collectors of the map server.
type Metrics struct {
	HTTPRequests        *prometheus.CounterVec   // labels: method, status
	HTTPRequestDuration *prometheus.HistogramVec // labels: method

	// Dataset metrics.
	DatasetLoads    *prometheus.CounterVec // labels: dataset, outcome={ok,error}
	DatasetFeatures *prometheus.GaugeVec   // labels: dataset, layer
	DatasetSamples  *prometheus.GaugeVec   // labels: dataset

	SessionTransitions *prometheus.CounterVec // labels: kind={create,month,select,clear}
	MQTTMessages       *prometheus.CounterVec // labels: outcome={ok,invalid,error}
}

func build() *Metrics {
	return &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		DatasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_loads_total",
			Help:      "Dataset loads by outcome.",
		}, []string{"dataset", "outcome"}),
		DatasetFeatures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_features",
			Help:      "Features per dataset layer.",
		}, []string{"dataset", "layer"}),
		DatasetSamples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_samples",
			Help:      "Numeric monthly values behind the dataset range.",
		}, []string{"dataset"}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Map session state transitions.",
		}, []string{"kind"}),
		MQTTMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_messages_total",
			Help:      "Dataset reload commands received over MQTT.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.HTTPRequests,
		m.HTTPRequestDuration,
		m.DatasetLoads,
		m.DatasetFeatures,
		m.DatasetSamples,
		m.SessionTransitions,
		m.MQTTMessages,
	}
}

// NewMetrics creates the collectors and registers them with the default registry.
func NewMetrics() *Metrics {
	m := build()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered collectors so tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return build()
}
