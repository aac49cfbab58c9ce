package entity

import (
	"path/filepath"
	"strings"
)

// Upload загруженный файл, живёт только в рамках одного запроса
type Upload struct {
	Filename string // имя файла от клиента
	Ext      string // расширение в нижнем регистре, с точкой
	Content  []byte // содержимое файла
}

// NewUpload создаёт Upload и вычисляет расширение по имени файла
func NewUpload(filename string, content []byte) *Upload {
	return &Upload{
		Filename: filename,
		Ext:      ExtOf(filename),
		Content:  content,
	}
}

// Size возвращает размер содержимого в байтах
func (u *Upload) Size() int {
	return len(u.Content)
}

// ExtOf возвращает расширение файла в нижнем регистре (".jpg", ".png", ...).
func ExtOf(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
