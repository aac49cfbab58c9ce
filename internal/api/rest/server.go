package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	app "saliency-heatmap/internal/application"
	"saliency-heatmap/internal/domain/entity"
	"saliency-heatmap/internal/metrics"
)

const mimeImagePNG = "image/png"

// Options настройки HTTP-сервера
type Options struct {
	UploadField      string   // имя поля формы с файлом
	CORSAllowOrigins []string // "*" = любые источники
}

// Server HTTP-интерфейс сервиса анализа
type Server struct {
	echo  *echo.Echo
	svc   *app.AnalysisService
	reg   *metrics.Registry
	field string
}

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// NewServer собирает echo с маршрутами и middleware
func NewServer(svc *app.AnalysisService, reg *metrics.Registry, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(RequestLogger(reg))
	e.Use(middleware.CORSWithConfig(corsConfig(opts.CORSAllowOrigins)))

	s := &Server{echo: e, svc: svc, reg: reg, field: opts.UploadField}
	if s.field == "" {
		s.field = "file"
	}

	e.POST("/analyze", s.analyze)
	e.GET("/healthz", s.health)
	e.GET("/metrics", reg.EchoHandlerText)
	return s
}

// corsConfig разрешает все методы и заголовки; пустой AllowHeaders в echo
// отражает заголовки из preflight-запроса.
func corsConfig(origins []string) middleware.CORSConfig {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowCredentials: true,

		// С "*" и credentials браузеру отдаётся исходный Origin
		UnsafeWildcardOriginWithAllowCredentials: slices.Contains(origins, "*"),
	}
}

// Handler возвращает http.Handler сервера
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start слушает addr до вызова Shutdown
func (s *Server) Start(addr string) error {
	log.Info().Str("address", addr).Msg("http server is listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown плавно останавливает сервер
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// analyze обрабатывает POST /analyze.
// Части формы читаются потоком, поэтому проверка расширения идёт до чтения файла.
func (s *Server) analyze(c echo.Context) error {
	req := c.Request()
	mr, err := req.MultipartReader()
	if err != nil {
		return s.writeError(c, entity.ErrMissingFile())
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return s.writeError(c, entity.ErrMissingFile())
		}
		if err != nil {
			log.Ctx(req.Context()).Warn().Err(err).Msg("malformed multipart body")
			return s.writeError(c, entity.ErrMissingFile())
		}
		if part.FormName() != s.field || part.FileName() == "" {
			part.Close()
			continue
		}

		png, err := s.svc.Analyze(req.Context(), part.FileName(), part)
		part.Close()
		if err != nil {
			return s.writeError(c, err)
		}
		return c.Blob(http.StatusOK, mimeImagePNG, png)
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeError(c echo.Context, err error) error {
	if ae, ok := entity.AsAnalysisError(err); ok {
		return c.JSON(ae.Status(), ErrorResponse{Error: string(ae.Kind), Detail: ae.Detail})
	}
	log.Ctx(c.Request().Context()).Error().Err(err).Msg("analysis failed")
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:  "InternalError",
		Detail: "internal server error",
	})
}
