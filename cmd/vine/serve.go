package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/vine/config"
	"github.com/Ramsey-B/vine/pkg/middleware"
	"github.com/Ramsey-B/vine/pkg/routes/health"
	"github.com/Ramsey-B/vine/pkg/routes/imports"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the matching HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, sync, err := newLogger(cfg.LogLevel, cfg.PrettyLogs)
			if err != nil {
				return codeError(3, "invalid LOG_LEVEL: %s", err)
			}
			defer sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger, appOptions{})
			if err != nil {
				return codeError(2, "%s", err)
			}
			defer a.close(context.Background())

			e, checker := newServer(a)
			server := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Port),
				ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
				ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
				MaxHeaderBytes:    cfg.MaxHeaderBytes,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("Listening on %s", server.Addr)
				errCh <- e.StartServer(server)
			}()
			checker.SetReady(true)

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down")
			checker.SetReady(false)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}
}

func newServer(a *app) (*echo.Echo, *health.Checker) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))

	checker := health.NewChecker(a.cfg.Version)
	checker.AddCheck("postgres", health.PingFunc(a.sqlDB.PingContext))
	checker.AddCheck("catalog", a.matcher)
	if a.redis != nil {
		checker.AddCheck("redis", a.redis)
	}
	checker.RegisterRoutes(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	imports.Register(e.Group("/api/v1/imports", middleware.Container(a.containerID)))
	return e, checker
}
