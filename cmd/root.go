package cmd

import (
	"fmt"
	"log/slog"

	"github.com/psds-microservice/assist-service/internal/application"
	"github.com/psds-microservice/assist-service/internal/config"
	"github.com/psds-microservice/assist-service/internal/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "assist-service",
	Short:         "Delivery support desk API: tickets, drivers, live feeds and assistant chat",
	RunE:          runAPI,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(migrateCmd)
}

// bootstrap loads configuration and builds the process logger.
func bootstrap() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log := logger.New(logger.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
		Env:     cfg.AppEnv,
		Service: application.ServiceName,
	})
	slog.SetDefault(log)
	return cfg, log, nil
}
