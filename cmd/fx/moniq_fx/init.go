package moniq_fx

import (
	"go.uber.org/fx"
	"moniqgw/internal/config"
	"moniqgw/internal/infra/metrics"
	"moniqgw/internal/infra/moniq"
	"moniqgw/internal/services"
	"moniqgw/pkg/logger"
	mem "moniqgw/pkg/memcache"
)

var Module = fx.Provide(provideClient, provideAPI)

func provideClient(cfg *config.Config, tokens mem.TokenStore, log *logger.Logger, m *metrics.GatewayMetrics) *moniq.Client {
	return moniq.NewClient(moniq.Config{
		BaseURL:   cfg.Gateway.APIBaseURL,
		PublicKey: cfg.Gateway.PublicKey,
		APISecret: cfg.Gateway.APISecret,
	}, tokens, log, moniq.WithObserver(m.ObserveProviderRequest))
}

func provideAPI(c *moniq.Client) services.MoniqAPI {
	return c
}
