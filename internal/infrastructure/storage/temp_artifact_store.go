package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"saliency-heatmap/internal/domain/port"
	"saliency-heatmap/internal/metrics"
)

const inputPrefix = "input_"

// TempArtifactStore хранит входные файлы запросов во временном каталоге
type TempArtifactStore struct {
	dir string
	reg *metrics.Registry
}

// NewTempArtifactStore создаёт хранилище в каталоге dir (пустой dir = os.TempDir()).
func NewTempArtifactStore(dir string, reg *metrics.Registry) (*TempArtifactStore, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &TempArtifactStore{dir: dir, reg: reg}, nil
}

// Dir возвращает каталог хранилища
func (s *TempArtifactStore) Dir() string {
	return s.dir
}

// Put записывает data в файл input_<uuid><ext> и возвращает его путь
func (s *TempArtifactStore) Put(ext string, data []byte) (string, error) {
	path := filepath.Join(s.dir, inputPrefix+uuid.NewString()+ext)

	// O_EXCL: два запроса никогда не получат один файл
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close artifact: %w", err)
	}

	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("artifact created")
	s.reg.Inc(context.Background(), metrics.ArtifactsCreated, nil, 1)
	return path, nil
}

// Remove удаляет файл; повторное удаление не ошибка
func (s *TempArtifactStore) Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove artifact: %w", err)
	}

	log.Debug().Str("path", path).Msg("artifact removed")
	s.reg.Inc(context.Background(), metrics.ArtifactsRemoved, nil, 1)
	return nil
}

// Проверка реализации интерфейса
var _ port.ArtifactStore = (*TempArtifactStore)(nil)
