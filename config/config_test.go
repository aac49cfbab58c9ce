package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // без .env

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8000", cfg.Address)
	require.Equal(t, []string{".jpg", ".jpeg", ".png"}, cfg.AllowedExtensions)
	require.Equal(t, 5, cfg.MaxFileSizeMB)
	require.Equal(t, int64(40_000_000), cfg.MaxPixels)
	require.Equal(t, "file", cfg.UploadField)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout)
	require.Equal(t, []string{"*"}, cfg.CORSAllowOrigins)
	require.Empty(t, cfg.TelegramToken)
}

func TestLoad_FromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ALLOWED_EXTENSIONS", "PNG, .Webp")
	t.Setenv("MAX_FILE_SIZE_MB", "2")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("MAX_PIXELS", "1000000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{".png", ".webp"}, cfg.AllowedExtensions)
	require.Equal(t, 2, cfg.MaxFileSizeMB)
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)
	require.Equal(t, int64(1_000_000), cfg.MaxPixels)
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MAX_FILE_SIZE_MB", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Config{
		AllowedExtensions: []string{".png"},
		MaxFileSizeMB:     1,
		MaxPixels:         100,
		UploadField:       "file",
		RequestTimeout:    time.Second,
	}
	require.NoError(t, cfg.Validate())

	cfg.Workers = -1
	require.Error(t, cfg.Validate())

	cfg.Workers = 0
	cfg.MaxPixels = 0
	require.Error(t, cfg.Validate())
}

// chdir заменяет t.Chdir (Go 1.24+): переходит в dir и возвращает рабочий каталог после теста
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
