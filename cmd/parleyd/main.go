package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"parley/internal/config"
	"parley/internal/daemon"
	"parley/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, path, exists, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !exists {
		log.Printf("no config file found, using defaults (looked at %s)", path)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("parleyd shutting down")
}
