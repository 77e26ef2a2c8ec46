package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/citewise/internal/api"
	"github.com/dgallion1/citewise/internal/app"
	"github.com/dgallion1/citewise/internal/config"
	"github.com/dgallion1/citewise/internal/logging"
)

func main() {
	cfg := config.Load()
	log, logFile := logging.New(os.Stdout, logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	err := run(cfg, log)
	if err != nil {
		log.Error("server error", "error", err)
	}
	logFile.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return api.Run(ctx, a, log)
}
