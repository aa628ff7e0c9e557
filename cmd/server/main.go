package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authsec-server/configs"
	httpEngine "authsec-server/internal/app/http"
	"authsec-server/internal/logics"
	"authsec-server/internal/repositories"

	"go.uber.org/zap"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&configPath, "config", "", "Path to config file (long)")
	flag.Parse()

	if configPath != "" {
		os.Setenv("CONFIG_PATH", configPath)
	}

	// Initialize configuration and logger
	configs.Init(&configPath)
	defer configs.Logger.Sync()

	configs.Logger.Info("Configuration loaded.",
		zap.String("configPath", configPath),
	)

	// Initialize repositories (Postgres, Redis)
	repositories.Init()

	// Background sweeps: in-memory limiter state and expired DB rows
	logics.RateLimitSvc.StartReaper()
	logics.MaintenanceSvc.Start()

	// Create HTTP server and run it in a separate goroutine.
	httpServer := httpEngine.NewServer()
	go func() {
		if err := httpServer.Start(); err != nil {
			if err.Error() != "http: Server closed" {
				configs.Logger.Fatal("HTTP server error", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	configs.Logger.Info("Shutdown signal received")

	logics.RateLimitSvc.Stop()
	logics.MaintenanceSvc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		configs.Logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		configs.Logger.Info("HTTP server shutdown gracefully")
	}

	configs.Logger.Info("Server exited")
}
