package events_fx

import (
	"context"

	"go.uber.org/fx"
	"moniqgw/internal/config"
	"moniqgw/internal/infra/events"
	"moniqgw/pkg/logger"
)

var Module = fx.Provide(providePublisher)

func providePublisher(lc fx.Lifecycle, cfg *config.Config, log *logger.Logger) events.Publisher {
	brokers := cfg.Kafka.BrokerList()
	if len(brokers) == 0 {
		log.Notice("Kafka brokers not configured, payment events are not published")
	}
	publisher := events.NewPublisher(brokers, cfg.Kafka.Topic)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher
}
