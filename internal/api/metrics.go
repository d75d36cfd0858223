// Package api provides the HTTP blocklist server.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dns-smart-block/dns-smart-block/internal/storage"
)

// Metrics holds the Prometheus instruments exposed on /metrics.
//
// Request counters are updated inline by the handlers. Store-derived
// gauges are refreshed on every /metrics scrape; when the refresh query
// fails the gauges keep their last-known values, so a database outage
// degrades metric freshness without failing the scrape.
type Metrics struct {
	registry *prometheus.Registry

	// Request tracking.
	blocklistRequests   *prometheus.CounterVec
	blocklistDomains    prometheus.Gauge
	healthCheckRequests prometheus.Counter
	metricsRequests     prometheus.Counter

	// Store state gauges.
	classifiedCurrent      *prometheus.GaugeVec
	classifiedCurrentTotal prometheus.Gauge
	domainsSeen            prometheus.Gauge
	eventsByAction         *prometheus.GaugeVec

	// Cumulative counts, represented as gauges because they are
	// re-read from the store rather than incremented in-process.
	classificationsCreated      *prometheus.GaugeVec
	classificationsCreatedTotal prometheus.Gauge
}

// NewMetrics creates the instrument set on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		blocklistRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dns_smart_block_blocklist_requests_total",
			Help: "Total number of blocklist requests",
		}, []string{"classification_type", "status"}),
		blocklistDomains: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dns_smart_block_blocklist_domains_total",
			Help: "Total number of blocked domains across all classifications",
		}),
		healthCheckRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "dns_smart_block_health_check_requests_total",
			Help: "Total number of health check requests",
		}),
		metricsRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "dns_smart_block_metrics_requests_total",
			Help: "Total number of metrics requests",
		}),
		classifiedCurrent: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dns_smart_block_domains_classified",
			Help: "Currently valid classified domains by type",
		}, []string{"classification_type"}),
		classifiedCurrentTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dns_smart_block_domains_classified_total",
			Help: "Total currently valid classified domains (all types)",
		}),
		domainsSeen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dns_smart_block_domains_seen",
			Help: "Total unique domains ever seen",
		}),
		eventsByAction: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dns_smart_block_events",
			Help: "Count of classification events by action",
		}, []string{"action"}),
		classificationsCreated: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dns_smart_block_classifications_total",
			Help: "Total classifications ever created by type",
		}, []string{"classification_type"}),
		classificationsCreatedTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dns_smart_block_classifications_all_total",
			Help: "Total classifications ever created (all types)",
		}),
	}
}

// Handler returns the text-format exposition handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordBlocklistRequest counts a blocklist request outcome.
// status is "success" or "error".
func (m *Metrics) RecordBlocklistRequest(classificationType, status string) {
	m.blocklistRequests.WithLabelValues(classificationType, status).Inc()
}

// RecordBlocklistSize records the domain count served by the last
// successful blocklist request.
func (m *Metrics) RecordBlocklistSize(n int) {
	m.blocklistDomains.Set(float64(n))
}

// RecordHealthCheck counts a health check request.
func (m *Metrics) RecordHealthCheck() {
	m.healthCheckRequests.Inc()
}

// RecordMetricsRequest counts a metrics scrape.
func (m *Metrics) RecordMetricsRequest() {
	m.metricsRequests.Inc()
}

// Refresh updates the store-derived gauges from a snapshot.
func (m *Metrics) Refresh(stats *storage.MetricsStats) {
	for classificationType, count := range stats.CurrentClassificationsByType {
		m.classifiedCurrent.WithLabelValues(classificationType).Set(float64(count))
	}

	m.classifiedCurrentTotal.Set(float64(stats.CurrentClassificationsTotal))
	m.domainsSeen.Set(float64(stats.DomainsSeenTotal))

	for action, count := range stats.EventsByAction {
		m.eventsByAction.WithLabelValues(action).Set(float64(count))
	}

	for classificationType, count := range stats.ClassificationsCreatedByType {
		m.classificationsCreated.WithLabelValues(classificationType).Set(float64(count))
	}

	m.classificationsCreatedTotal.Set(float64(stats.ClassificationsCreatedTotal))
}
