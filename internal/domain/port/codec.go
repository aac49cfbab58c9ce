package port

import (
	"image"
	"io"
)

// ImageCodec интерфейс чтения и записи изображений
type ImageCodec interface {
	// DecodeConfigFile читает только заголовок: формат и размеры
	DecodeConfigFile(path string) (image.Config, error)

	// DecodeFile читает изображение из файла
	DecodeFile(path string) (image.Image, error)

	// EncodePNG пишет изображение в формате PNG
	EncodePNG(w io.Writer, img image.Image) error
}
