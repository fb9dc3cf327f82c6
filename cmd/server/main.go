package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"flow-field/internal/api"
	"flow-field/internal/config"
	"flow-field/internal/logging"
	"flow-field/internal/session"
)

func main() {
	// Load .env file from parent directory
	envSource := "../.env"
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		envSource = ".env"
		if err := godotenv.Load(".env"); err != nil {
			envSource = ""
		}
	}

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()

	closer, err := logging.Setup(appConfig.Logging)
	if err != nil {
		log.WithError(err).Fatal("Logging setup failed")
	}
	defer closer.Close()

	if envSource != "" {
		log.WithField("file", envSource).Info("Loaded environment")
	} else {
		log.Info("No .env file found, using environment variables only")
	}

	fieldCfg := appConfig.Field
	log.WithFields(log.Fields{
		"maxSize":     fieldCfg.MaxSize,
		"defaultSize": fieldCfg.DefaultSize,
		"maxFields":   fieldCfg.MaxFields,
		"rps":         appConfig.RateLimit.RequestsPerSecond,
	}).Info("Flow field server configured")

	registry := session.NewRegistry(session.Config{
		MaxSessions: fieldCfg.MaxFields,
		OnGenerate:  api.RecordGeneration,
	})

	// Start debug server
	debugServer := api.StartDebugServer(appConfig.Observability)

	server := api.NewServer(registry, appConfig)

	// Start API server in goroutine
	addr := ":" + strconv.Itoa(appConfig.Server.Port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(addr)
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.WithField("url", "http://localhost"+addr).Info("Server ready, press Ctrl+C to stop")
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("API server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("API server shutdown incomplete")
	}
	if debugServer != nil {
		if err := debugServer.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Debug server shutdown incomplete")
		}
	}
	log.Info("Goodbye")
}
