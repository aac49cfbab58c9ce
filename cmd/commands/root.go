package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"saliency-heatmap/config"
	"saliency-heatmap/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "saliency-heatmap",
	Short: "Saliency heatmap service",
	Long:  `Builds spectral-residual saliency heatmaps for uploaded images over HTTP and Telegram.`,
	// Без подкоманды запускаем сервер
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig читает конфигурацию и настраивает логирование
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}
