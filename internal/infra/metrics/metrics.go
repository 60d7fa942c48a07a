package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GatewayMetrics holds the gateway's Prometheus collectors.
type GatewayMetrics struct {
	// Charge creation attempts by result (created, validation, auth, api, invalid_response, error)
	ChargesTotal *prometheus.CounterVec

	// Webhook deliveries by reconciliation outcome
	WebhooksTotal *prometheus.CounterVec

	// Latency of every outbound provider call
	ProviderRequestDuration *prometheus.HistogramVec

	// Order transitions applied by the gateway
	OrderTransitionsTotal *prometheus.CounterVec
}

// NewGatewayMetrics registers the collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	factory := promauto.With(reg)

	return &GatewayMetrics{
		ChargesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moniq_charges_total",
				Help: "Charge creation attempts against Moniq",
			},
			[]string{"result"},
		),

		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moniq_webhooks_total",
				Help: "Inbound Moniq webhook deliveries",
			},
			[]string{"outcome"},
		),

		ProviderRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moniq_provider_request_duration_seconds",
				Help:    "Duration of Moniq API requests in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
			},
			[]string{"endpoint", "status"},
		),

		OrderTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moniq_order_transitions_total",
				Help: "Order status transitions applied from Moniq notifications",
			},
			[]string{"status"},
		),
	}
}

func (m *GatewayMetrics) RecordCharge(result string) {
	if m == nil {
		return
	}
	m.ChargesTotal.WithLabelValues(result).Inc()
}

func (m *GatewayMetrics) RecordWebhook(outcome string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(outcome).Inc()
}

func (m *GatewayMetrics) RecordTransition(status string) {
	if m == nil {
		return
	}
	m.OrderTransitionsTotal.WithLabelValues(status).Inc()
}

// ObserveProviderRequest matches the provider client's observer hook.
// Transport failures are reported with status 0.
func (m *GatewayMetrics) ObserveProviderRequest(endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequestDuration.WithLabelValues(endpoint, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
