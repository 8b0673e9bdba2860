package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/sdk/qbridge"
	log "github.com/sirupsen/logrus"
)

// StartService builds the qbridge service from the loaded configuration and
// runs it until an interrupt or termination signal arrives.
func StartService(cfg *config.Config, configPath string) {
	service, err := qbridge.NewBuilder().
		WithConfig(cfg).
		WithConfigPath(configPath).
		Build()
	if err != nil {
		log.Fatalf("failed to build service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("service terminated: %v", err)
	}
	log.Info("server exited")
}
