package vision

import (
	"image"
	"image/color"
	"math"

	"saliency-heatmap/internal/domain/entity"
	"saliency-heatmap/internal/domain/port"
)

// Palette таблица из 256 цветов для 8-битных значений
type Palette [256]color.RGBA

// JetPalette палитра "jet": синий → голубой → зелёный → жёлтый → красный.
// 0 соответствует тёмно-синему (0,0,128), 255 — тёмно-красному (128,0,0).
func JetPalette() *Palette {
	var p Palette
	for i := range p {
		v := float64(i) / 255
		p[i] = color.RGBA{
			R: jetChannel(v, 3),
			G: jetChannel(v, 2),
			B: jetChannel(v, 1),
			A: 0xff,
		}
	}
	return &p
}

func jetChannel(v, center float64) uint8 {
	c := 1.5 - math.Abs(4*v-center)
	c = math.Max(0, math.Min(1, c))
	return uint8(math.Round(c * 255))
}

// JetRenderer раскрашивает карту заметности палитрой jet
type JetRenderer struct {
	palette *Palette
}

// NewJetRenderer создаёт рендерер с палитрой jet
func NewJetRenderer() *JetRenderer {
	return &JetRenderer{palette: JetPalette()}
}

// Render квантует карту в 8 бит (с усечением) и применяет палитру
func (r *JetRenderer) Render(m *entity.SaliencyMap) *image.RGBA {
	out := image.NewRGBA(m.Bounds())
	for y := 0; y < m.Height; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < m.Width; x++ {
			c := r.palette[entity.Quantize(m.At(x, y))]
			row[4*x+0] = c.R
			row[4*x+1] = c.G
			row[4*x+2] = c.B
			row[4*x+3] = c.A
		}
	}
	return out
}

// Проверка реализации интерфейса
var _ port.HeatmapRenderer = (*JetRenderer)(nil)
