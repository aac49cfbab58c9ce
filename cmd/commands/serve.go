package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"saliency-heatmap/internal/api/rest"
	"saliency-heatmap/internal/api/telegram"
	"saliency-heatmap/internal/container"
	"saliency-heatmap/internal/infrastructure/vision"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and the Telegram bot when TELEGRAM_TOKEN is set)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	log.Info().
		Str("backend", vision.Backend).
		Strs("extensions", cfg.AllowedExtensions).
		Int("max_file_size_mb", cfg.MaxFileSizeMB).
		Int64("max_pixels", cfg.MaxPixels).
		Msg("starting saliency heatmap service")

	server := rest.NewServer(c.AnalysisService, c.Metrics, rest.Options{
		UploadField:      cfg.UploadField,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(cfg.Address)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, c.AnalysisService)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			return bot.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("service stopped")
	return nil
}
