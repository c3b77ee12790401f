// Package main provides the entry point for the exam preparation backend server.
// It loads configuration, wires services and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"examprep/internal/config"
	"examprep/internal/di"
	"examprep/internal/handlers"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"
	"examprep/internal/version"
)

const serviceName = "examprep-backend"

// Application encapsulates the HTTP server and the container it was built from
type Application struct {
	container di.ServiceContainerInterface
	server    *http.Server
}

// NewApplication creates the HTTP server from an initialized container
func NewApplication(container di.ServiceContainerInterface) (*Application, error) {
	examService, err := container.GetExamService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get exam service")
	}

	cfg := container.GetConfig()
	router := handlers.NewRouter(cfg, examService, container.GetLogger())

	return &Application{
		container: container,
		server: &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves until the server is shut down
func (a *Application) Run() error {
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return contextutils.WrapError(err, "server failed")
	}
	return nil
}

// Shutdown drains in-flight requests and releases the container
func (a *Application) Shutdown(ctx context.Context) error {
	serverErr := a.server.Shutdown(ctx)
	containerErr := a.container.Shutdown(ctx)
	return errors.Join(serverErr, containerErr)
}

func main() {
	ctx := context.Background()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, serviceName, cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if tp != nil {
			if sdk, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
				if err := sdk.Shutdown(shutdownCtx); err != nil {
					logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error(), "provider": "tracer"})
				}
			}
		}
		if mp != nil {
			if err := mp.Shutdown(shutdownCtx); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error(), "provider": "meter"})
			}
		}
		_ = logger.Sync()
	}()

	logger.Info(ctx, "Starting exam preparation backend", map[string]interface{}{
		"port":      cfg.Server.Port,
		"log_level": cfg.Server.LogLevel,
		"version":   version.Version,
		"commit":    version.Commit,
	})

	container := di.NewServiceContainer(cfg, logger)
	if err := container.Initialize(ctx); err != nil {
		logger.Error(ctx, "Failed to initialize services", err)
		os.Exit(1)
	}

	app, err := NewApplication(container)
	if err != nil {
		logger.Error(ctx, "Failed to create application", err)
		_ = container.Shutdown(ctx)
		os.Exit(1)
	}

	appErr := make(chan error, 1)
	go func() {
		appErr <- app.Run()
	}()

	select {
	case <-shutdownCh:
		logger.Info(ctx, "Received shutdown signal, shutting down gracefully")
	case err := <-appErr:
		if err != nil {
			logger.Error(ctx, "Application failed", err)
			_ = container.Shutdown(ctx)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Error during application shutdown", err)
		return
	}

	logger.Info(ctx, "Shutdown completed successfully")
}
