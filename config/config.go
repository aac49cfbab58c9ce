package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

type Config struct {
	// Адрес HTTP-сервера, например ":8000"
	Address string `env:"ADDRESS" envDefault:":8000"`

	// Допустимые расширения загружаемых файлов
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" envDefault:".jpg,.jpeg,.png" envSeparator:","`

	// Максимальный размер загрузки в мегабайтах
	MaxFileSizeMB int `env:"MAX_FILE_SIZE_MB" envDefault:"5"`

	// Максимум пикселей в декодированном изображении (ширина*высота)
	MaxPixels int64 `env:"MAX_PIXELS" envDefault:"40000000"`

	// Имя поля формы с файлом
	UploadField string `env:"UPLOAD_FIELD" envDefault:"file"`

	// Каталог временных файлов, пусто = системный
	TempDir string `env:"TEMP_DIR"`

	// Ограничение времени на один запрос
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Число воркеров для тяжёлых вычислений, 0 = GOMAXPROCS
	Workers int `env:"WORKERS" envDefault:"0"`

	// Разрешённые источники CORS
	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envDefault:"*" envSeparator:","`

	// Токен Telegram-бота; пусто = бот выключен
	TelegramToken string `env:"TELEGRAM_TOKEN"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.AllowedExtensions = NormalizeExtensions(cfg.AllowedExtensions)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения конфигурации
func (c *Config) Validate() error {
	if len(c.AllowedExtensions) == 0 {
		return errors.New("ALLOWED_EXTENSIONS cannot be empty")
	}
	if c.MaxFileSizeMB <= 0 {
		return errors.New("MAX_FILE_SIZE_MB must be positive")
	}
	if c.MaxPixels <= 0 {
		return errors.New("MAX_PIXELS must be positive")
	}
	if c.UploadField == "" {
		return errors.New("UPLOAD_FIELD cannot be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	if c.Workers < 0 {
		return errors.New("WORKERS must be non-negative")
	}
	return nil
}

// NormalizeExtensions приводит расширения к виду ".ext" в нижнем регистре
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}
