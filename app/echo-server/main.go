package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpMetrics "abExperiments/app/echo-server/metrics"
	"abExperiments/app/echo-server/router"
	"abExperiments/internal/bootstrap"
	"abExperiments/internal/middleware"
	"abExperiments/internal/rest"
	"abExperiments/pkg/config"
	"abExperiments/pkg/logger"
	"abExperiments/pkg/metrics"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.InitWithLevel(cfg.App.Environment, cfg.App.LogLevel)
	logger.Info("Starting experiment service", "name", cfg.App.Name, "version", cfg.App.Version)

	app, err := bootstrap.Open(cfg, bootstrap.Options{})
	if err != nil {
		logger.Fatal("Failed to initialize service", "error", err)
	}
	defer app.Close()

	// Init handler
	experimentHandler := rest.NewExperimentHandler(app.Service, cfg.Server.RequestTimeout)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// HTTP error handler
	e.HTTPErrorHandler = middleware.ErrorHandler

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSAllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
	}))

	if cfg.Metrics.Enabled {
		metrics.Init()
		httpMetrics.Init()
		e.Use(httpMetrics.Middleware())
		router.SetupMetricsRoutes(e)
	}

	// Setup routes
	router.SetupHealthRoutes(e, cfg.App.Version)
	api := e.Group("/api/v1")
	router.SetupExperimentRoutes(api, experimentHandler)

	// Goroutine server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
