package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenInverterCore/internal/auth"
	"github.com/KevinKickass/OpenInverterCore/internal/config"
	"github.com/KevinKickass/OpenInverterCore/internal/system"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	genKey := flag.Bool("generate-api-key", false, "print a new API key and its hash, then exit")
	flag.Parse()

	if *genKey {
		if err := generateAPIKey(); err != nil {
			log.Fatalf("Failed to generate API key: %v", err)
		}
		return
	}

	// Logger initialisieren
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Config laden
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Config loaded successfully", zap.String("path", *configPath))

	lifecycle, err := system.NewLifecycleManager(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build system", zap.Error(err))
	}

	// System starten
	if err := lifecycle.Start(context.Background()); err != nil {
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	logger.Info("OpenInverterCore started successfully")

	// Graceful Shutdown auf Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
	case <-lifecycle.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	if err := lifecycle.Err(); err != nil {
		logger.Error("OpenInverterCore stopped with error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("OpenInverterCore stopped successfully")
}

func generateAPIKey() error {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	hash, err := auth.NewKeyHasher().Hash(key)
	if err != nil {
		return err
	}
	fmt.Printf("api key:      %s\n", key)
	fmt.Printf("api_key_hash: %s\n", hash)
	return nil
}
