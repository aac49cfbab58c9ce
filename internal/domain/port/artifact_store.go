package port

// ArtifactStore интерфейс хранилища временных файлов запроса
type ArtifactStore interface {
	// Put сохраняет данные под уникальным именем и возвращает путь
	Put(ext string, data []byte) (string, error)

	// Remove удаляет файл; отсутствие файла не считается ошибкой
	Remove(path string) error
}
