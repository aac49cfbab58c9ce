package vision

import (
	"bufio"
	"fmt"
	"image"
	_ "image/jpeg" // регистрирует JPEG в image.Decode
	"image/png"
	"io"
	"os"

	"saliency-heatmap/internal/domain/port"
)

// StdCodec читает JPEG/PNG и пишет PNG средствами стандартной библиотеки
type StdCodec struct {
	encoder png.Encoder
}

// NewStdCodec создаёт кодек с умолчательным сжатием PNG
func NewStdCodec() *StdCodec {
	return &StdCodec{encoder: png.Encoder{CompressionLevel: png.DefaultCompression}}
}

// DecodeConfigFile читает размеры из заголовка, не декодируя пиксели
func (c *StdCodec) DecodeConfigFile(path string) (image.Config, error) {
	return decodeConfigFile(path)
}

// DecodeFile читает изображение из файла; формат определяется по содержимому
func (c *StdCodec) DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode image: %s has no pixels", format)
	}
	return img, nil
}

func decodeConfigFile(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return image.Config{}, fmt.Errorf("decode image header: %w", err)
	}
	return cfg, nil
}

// EncodePNG пишет изображение в PNG
func (c *StdCodec) EncodePNG(w io.Writer, img image.Image) error {
	return c.encoder.Encode(w, img)
}

// Проверка реализации интерфейса
var _ port.ImageCodec = (*StdCodec)(nil)
