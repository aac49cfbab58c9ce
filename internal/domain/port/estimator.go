package port

import (
	"context"
	"image"

	"saliency-heatmap/internal/domain/entity"
)

// SaliencyEstimator интерфейс алгоритма карты заметности
type SaliencyEstimator interface {
	// Estimate строит карту заметности со значениями в [0,1] того же размера, что и img
	Estimate(ctx context.Context, img image.Image) (*entity.SaliencyMap, error)
}

// HeatmapRenderer раскрашивает карту заметности
type HeatmapRenderer interface {
	// Render применяет палитру к нормализованной карте
	Render(m *entity.SaliencyMap) *image.RGBA
}
