package db_fx

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"
	"moniqgw/internal/config"
	"moniqgw/internal/infra"
	"moniqgw/internal/infra/migrate"
	"moniqgw/internal/repositories"
)

var Module = fx.Provide(
	provideDB,
	repositories.NewOrderRepository,
	repositories.NewTransactionRepository,
	repositories.NewCartRepository,
	repositories.NewWebhookEventRepository,
)

func provideDB(lc fx.Lifecycle, cfg *config.Config) (*gorm.DB, error) {
	db, err := infra.InitPostgresql(cfg)
	if err != nil {
		return nil, err
	}
	if err := migrate.RunMigrations(db, cfg.DB.MigrationsPath); err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			infra.ClosePostgresql(db)
			return nil
		},
	})
	return db, nil
}
