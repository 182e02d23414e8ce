package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hasnin090/iq-sub003/internal/app"
	"github.com/hasnin090/iq-sub003/internal/config"
	handlers "github.com/hasnin090/iq-sub003/internal/http/handler"
	"github.com/hasnin090/iq-sub003/internal/http/middleware"
	"github.com/hasnin090/iq-sub003/internal/logging"
	"github.com/hasnin090/iq-sub003/internal/otel"
)

func main() {
	cfg := config.Load()
	log := logging.New(os.Stdout, cfg.Location(), "api")

	if err := run(cfg, log); err != nil {
		log.Error("server_exit", err, nil)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, log *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	a, err := app.New(ctx, cfg, prometheus.DefaultRegisterer, log)
	if err != nil {
		return err
	}
	defer a.Close()

	promMiddleware, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	server := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	server.Use(middleware.RequestID())
	server.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return c.Path() == "/metrics" || c.Path() == "/healthz"
	})))
	server.Use(middleware.Logger(log))
	server.Use(promMiddleware.Handler())

	server.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	handlers.RegisterRoutes(server, a.Source, handlers.Services{
		Sync:     a.Sync,
		Cleanup:  a.Cleanup,
		Sessions: a.Sessions,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("server_start", map[string]any{
			"addr":             ":" + cfg.Port,
			"remote_enabled":   a.Remote != nil && a.Storage != nil,
			"sessions_enabled": a.Sessions != nil,
		})
		errCh <- server.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server_shutdown", nil)
	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
