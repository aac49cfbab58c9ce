package container

import (
	"fmt"

	"saliency-heatmap/config"
	app "saliency-heatmap/internal/application"
	"saliency-heatmap/internal/infrastructure/storage"
	"saliency-heatmap/internal/infrastructure/vision"
	"saliency-heatmap/internal/infrastructure/worker"
	"saliency-heatmap/internal/metrics"
)

type Container struct {
	Metrics         *metrics.Registry
	Store           *storage.TempArtifactStore
	Pool            *worker.Pool
	AnalysisService *app.AnalysisService
}

func New(cfg *config.Config) (*Container, error) {
	reg := metrics.NewRegistry()

	store, err := storage.NewTempArtifactStore(cfg.TempDir, reg)
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}

	pool := worker.NewPool(cfg.Workers)

	analysisService := app.NewAnalysisService(
		app.Options{
			AllowedExtensions: cfg.AllowedExtensions,
			MaxFileSizeMB:     cfg.MaxFileSizeMB,
			MaxPixels:         cfg.MaxPixels,
			Timeout:           cfg.RequestTimeout,
		},
		store,
		vision.NewCodec(),
		vision.NewEstimator(),
		vision.NewRenderer(),
		pool,
		reg,
	)

	return &Container{
		Metrics:         reg,
		Store:           store,
		Pool:            pool,
		AnalysisService: analysisService,
	}, nil
}

// Close останавливает воркеров
func (c *Container) Close() {
	c.Pool.Stop()
}
