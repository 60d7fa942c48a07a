package payment_service_fx

import (
	"go.uber.org/fx"
	"moniqgw/internal/config"
	"moniqgw/internal/infra/events"
	"moniqgw/internal/infra/metrics"
	"moniqgw/internal/repositories"
	"moniqgw/internal/services"
	"moniqgw/pkg/logger"
)

var Module = fx.Provide(
	provideChargeService, provideWebhookService,
)

type paymentDeps struct {
	fx.In

	Config       *config.Config
	API          services.MoniqAPI
	Orders       repositories.OrderRepository
	Transactions repositories.TransactionRepository
	Carts        repositories.CartRepository
	Events       repositories.WebhookEventRepository
	Publisher    events.Publisher
	Metrics      *metrics.GatewayMetrics
	Logger       *logger.Logger
}

func provideChargeService(d paymentDeps) services.ChargeService {
	return services.NewChargeService(services.ChargeDeps{
		Config:       d.Config,
		API:          d.API,
		Orders:       d.Orders,
		Transactions: d.Transactions,
		Carts:        d.Carts,
		Metrics:      d.Metrics,
		Logger:       d.Logger,
	})
}

func provideWebhookService(d paymentDeps) (services.WebhookService, error) {
	return services.NewWebhookService(services.WebhookDeps{
		Config:       d.Config,
		API:          d.API,
		Orders:       d.Orders,
		Transactions: d.Transactions,
		Events:       d.Events,
		Publisher:    d.Publisher,
		Metrics:      d.Metrics,
		Logger:       d.Logger,
	})
}
