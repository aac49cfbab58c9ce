//go:build !gocv
// +build !gocv

package vision

import "saliency-heatmap/internal/domain/port"

// Backend имя реализации, выбранной при сборке
const Backend = "go"

// NewEstimator возвращает оценщик заметности на чистом Go (сборка без тега gocv)
func NewEstimator() port.SaliencyEstimator {
	return NewSpectralResidual()
}

// NewRenderer возвращает рендерер палитры jet
func NewRenderer() port.HeatmapRenderer {
	return NewJetRenderer()
}

// NewCodec возвращает кодек стандартной библиотеки
func NewCodec() port.ImageCodec {
	return NewStdCodec()
}
