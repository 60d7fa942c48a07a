package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"moniqgw/cmd/fx/config_fx"
	"moniqgw/cmd/fx/controllers_fx"
	"moniqgw/cmd/fx/db_fx"
	"moniqgw/cmd/fx/events_fx"
	"moniqgw/cmd/fx/memcache_fx"
	"moniqgw/cmd/fx/metrics_fx"
	"moniqgw/cmd/fx/moniq_fx"
	"moniqgw/cmd/fx/payment_service_fx"
	"moniqgw/internal/api/controllers"
	"moniqgw/internal/config"
	"moniqgw/pkg/middleware"
)

func main() {
	app := fx.New(
		config_fx.Module,
		db_fx.Module,
		memcache_fx.Module,
		metrics_fx.Module,
		events_fx.Module,
		moniq_fx.Module,
		payment_service_fx.Module,
		controllers_fx.Module,

		fx.Invoke(StartServer),
		fx.Provide(ProvideRouter),
	)

	app.Run()
}

func StartServer(lc fx.Lifecycle, cfg *config.Config, engine *gin.Engine) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Printf("Starting HTTP server at :%s", cfg.HTTP.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Println("Stopping HTTP server")
			return srv.Shutdown(ctx)
		},
	})
}

func ProvideRouter(
	cfg *config.Config,
	paymentController *controllers.PaymentController,
	healthController *controllers.HealthController) *gin.Engine {

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.TraceIDMiddleware())

	RegisterRoutes(r, paymentController, healthController)

	return r
}

func RegisterRoutes(r *gin.Engine,
	paymentController *controllers.PaymentController,
	healthController *controllers.HealthController) {

	r.GET("/healthz", healthController.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	paymentGroup := r.Group("/payments")
	paymentGroup.POST("/checkout", paymentController.Checkout)
	paymentGroup.POST("/moniq/webhook", paymentController.HandleWebhook)
	paymentGroup.GET("/orders/:orderId/status", paymentController.OrderStatus)

	adminGroup := r.Group("/admin/moniq", middleware.JWTAuthMiddleware(), middleware.RoleMiddleware("admin"))
	adminGroup.POST("/test-connection", paymentController.TestConnection)
	adminGroup.GET("/transactions/:orderId", paymentController.GetTransaction)
	adminGroup.GET("/webhooks/:orderId", paymentController.GetWebhookDeliveries)
}
