package metrics_fx

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"moniqgw/internal/infra/metrics"
)

var Module = fx.Provide(provideMetrics)

func provideMetrics() *metrics.GatewayMetrics {
	return metrics.NewGatewayMetrics(prometheus.DefaultRegisterer)
}
