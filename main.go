package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/username/divtracker/src/app"
	"github.com/username/divtracker/src/config"
	"github.com/username/divtracker/src/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.L.Fatal().Err(err).Msg("Configuration invalid")
	}
	logger.InitLogger(cfg.LogLevel, cfg.LogFormat)

	logger.L.Info().Msg("Dividend tracker server starting...")
	logger.L.Info().
		Str("currency", cfg.FXBaseCurrency).
		Str("policy", cfg.PartialFailurePolicy).
		Int("maxConcurrency", cfg.MaxConcurrency).
		Bool("apiAuth", cfg.APIJWTSecret != "").
		Msg("Configuration loaded")

	logger.L.Info().Str("path", cfg.DatabasePath).Msg("Initializing dependencies...")
	application, err := app.New(cfg, logger.L)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	application.StartBackground()

	serverAddr := ":" + cfg.Port
	requestTimeout := application.RequestTimeout()
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           application.Router(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      requestTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info().Str("address", serverAddr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.L.Error().Err(err).Msg("Failed to start server")
		return
	case sig := <-stop:
		logger.L.Info().Str("signal", sig.String()).Msg("Shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.L.Error().Err(err).Msg("Graceful shutdown failed")
	}
	logger.L.Info().Msg("Server stopped")
}
