package config_fx

import (
	"go.uber.org/fx"
	"moniqgw/internal/config"
	"moniqgw/pkg/logger"
	"moniqgw/pkg/utils"
)

var Module = fx.Provide(provideConfig, provideLogger)

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	utils.ConfigureJWT(cfg.JWTSecret)
	return cfg, nil
}

func provideLogger(cfg *config.Config) *logger.Logger {
	return logger.New(cfg.Gateway.Debug)
}
