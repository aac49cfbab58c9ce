package entity

import (
	"image"
	"image/color"
)

// SaliencyMap карта заметности: по одному значению в [0,1] на пиксель
type SaliencyMap struct {
	Width  int
	Height int
	Values []float32 // построчно, len = Width*Height
}

// NewSaliencyMap создаёт нулевую карту заданного размера
func NewSaliencyMap(width, height int) *SaliencyMap {
	return &SaliencyMap{
		Width:  width,
		Height: height,
		Values: make([]float32, width*height),
	}
}

// At возвращает значение в точке (x, y)
func (m *SaliencyMap) At(x, y int) float32 {
	return m.Values[y*m.Width+x]
}

// Set записывает значение в точку (x, y)
func (m *SaliencyMap) Set(x, y int, v float32) {
	m.Values[y*m.Width+x] = v
}

// Bounds возвращает прямоугольник карты в координатах image
func (m *SaliencyMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// ToGray переводит карту в 8-битное изображение.
// Значение умножается на 255 и отбрасывается дробная часть (без округления).
func (m *SaliencyMap) ToGray() *image.Gray {
	gray := image.NewGray(m.Bounds())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			gray.SetGray(x, y, color.Gray{Y: Quantize(m.At(x, y))})
		}
	}
	return gray
}

// Quantize переводит значение из [0,1] в [0,255] с усечением.
func Quantize(v float32) uint8 {
	scaled := v * 255
	switch {
	case scaled != scaled, scaled <= 0:
		return 0
	case scaled >= 255:
		return 255
	}
	return uint8(scaled)
}
