package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"saliency-heatmap/internal/domain/entity"
	"saliency-heatmap/internal/domain/port"
	"saliency-heatmap/internal/metrics"
)

// Options ограничения сервиса анализа
type Options struct {
	AllowedExtensions []string      // расширения в нижнем регистре, с точкой
	MaxFileSizeMB     int           // лимит размера загрузки
	MaxPixels         int64         // лимит ширина*высота, 0 = без лимита
	Timeout           time.Duration // лимит времени на запрос, 0 = без лимита
}

// DefaultOptions возвращает ограничения по умолчанию
func DefaultOptions() Options {
	return Options{
		AllowedExtensions: []string{".jpg", ".jpeg", ".png"},
		MaxFileSizeMB:     5,
		MaxPixels:         40_000_000,
		Timeout:           30 * time.Second,
	}
}

// MaxFileSizeBytes возвращает лимит загрузки в байтах
func (o Options) MaxFileSizeBytes() int64 {
	return int64(o.MaxFileSizeMB) * 1024 * 1024
}

// AnalysisService строит тепловую карту заметности по загруженному изображению
type AnalysisService struct {
	opts      Options
	store     port.ArtifactStore
	codec     port.ImageCodec
	estimator port.SaliencyEstimator
	renderer  port.HeatmapRenderer
	executor  port.Executor
	reg       *metrics.Registry
}

// NewAnalysisService создаёт сервис анализа
func NewAnalysisService(
	opts Options,
	store port.ArtifactStore,
	codec port.ImageCodec,
	estimator port.SaliencyEstimator,
	renderer port.HeatmapRenderer,
	executor port.Executor,
	reg *metrics.Registry,
) *AnalysisService {
	return &AnalysisService{
		opts:      opts,
		store:     store,
		codec:     codec,
		estimator: estimator,
		renderer:  renderer,
		executor:  executor,
		reg:       reg,
	}
}

// Options возвращает текущие ограничения
func (s *AnalysisService) Options() Options {
	return s.opts
}

// CheckExtension проверяет расширение имени файла без учёта регистра
func (s *AnalysisService) CheckExtension(filename string) error {
	ext := entity.ExtOf(filename)
	if !slices.Contains(s.opts.AllowedExtensions, ext) {
		return entity.ErrInvalidFileType(ext)
	}
	return nil
}

// AnalyzeBytes то же, что Analyze, для уже прочитанного файла
func (s *AnalysisService) AnalyzeBytes(ctx context.Context, filename string, data []byte) ([]byte, error) {
	return s.Analyze(ctx, filename, bytes.NewReader(data))
}

// Analyze проверяет загрузку, строит карту заметности и возвращает PNG.
// Временный файл удаляется до возврата при любом исходе.
func (s *AnalysisService) Analyze(ctx context.Context, filename string, body io.Reader) (png []byte, err error) {
	start := time.Now()
	trace := entity.NewTrace()
	logger := log.Ctx(ctx).With().Str("filename", filename).Logger()
	defer func() {
		s.finish(ctx, &logger, trace, start, err)
	}()

	workCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		workCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	// 1. Расширение: до чтения и записи чего-либо
	if err := s.CheckExtension(filename); err != nil {
		return nil, err
	}

	// 2. Размер
	content, err := s.readLimited(body)
	if err != nil {
		return nil, err
	}
	upload := entity.NewUpload(filename, content)
	logger = logger.With().Int("size", upload.Size()).Logger()
	advance(&logger, trace, entity.StateValidated)

	// 3. Временный файл под уникальным именем
	path, err := s.store.Put(upload.Ext, upload.Content)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	defer func() {
		if rmErr := s.store.Remove(path); rmErr != nil {
			logger.Error().Err(rmErr).Str("path", path).Msg("failed to remove artifact")
		}
	}()

	// 4-8. Тяжёлая часть на воркере
	var res result
	doErr := s.executor.Do(workCtx, func() error {
		res = s.process(workCtx, path)
		return res.err
	})
	if ctxErr := workCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, entity.ErrTimeout(ctxErr)
		}
		return nil, entity.ErrCanceled(ctxErr)
	}
	if doErr != nil {
		if res.reached != "" {
			replay(&logger, trace, res.reached)
		}
		if _, ok := entity.AsAnalysisError(doErr); ok {
			return nil, doErr
		}
		return nil, fmt.Errorf("process upload: %w", doErr)
	}

	replay(&logger, trace, res.reached)
	return res.png, nil
}

// result итог обработки на воркере
type result struct {
	png     []byte
	reached entity.RequestState // последнее пройденное состояние
	err     error
}

// process декодирует, считает заметность, раскрашивает и кодирует в PNG
func (s *AnalysisService) process(ctx context.Context, path string) result {
	// Размеры из заголовка: растр, карта и RGBA-результат растут с числом пикселей
	cfg, err := s.codec.DecodeConfigFile(path)
	if err != nil {
		return result{reached: entity.StateValidated, err: entity.ErrDecode(err)}
	}
	if limit := s.opts.MaxPixels; limit > 0 && int64(cfg.Width)*int64(cfg.Height) > limit {
		return result{reached: entity.StateValidated, err: entity.ErrImageTooLarge(cfg.Width, cfg.Height, limit)}
	}

	img, err := s.codec.DecodeFile(path)
	if err != nil {
		return result{reached: entity.StateValidated, err: entity.ErrDecode(err)}
	}

	sal, err := s.estimator.Estimate(ctx, img)
	if err != nil {
		return result{reached: entity.StateDecoded, err: entity.ErrSaliency(err)}
	}
	if err := checkSize(sal, img.Bounds()); err != nil {
		return result{reached: entity.StateDecoded, err: entity.ErrSaliency(err)}
	}

	heatmap := s.renderer.Render(sal)

	var buf bytes.Buffer
	if err := s.codec.EncodePNG(&buf, heatmap); err != nil {
		return result{reached: entity.StateSaliencyComputed, err: entity.ErrEncode(err)}
	}
	return result{reached: entity.StateRendered, png: buf.Bytes()}
}

func checkSize(sal *entity.SaliencyMap, b image.Rectangle) error {
	if sal == nil {
		return errors.New("estimator returned no map")
	}
	if sal.Width != b.Dx() || sal.Height != b.Dy() || len(sal.Values) != sal.Width*sal.Height {
		return fmt.Errorf("saliency map is %dx%d, image is %dx%d", sal.Width, sal.Height, b.Dx(), b.Dy())
	}
	return nil
}

// readLimited читает не больше лимита+1 байт: больший файл целиком в память не попадает
func (s *AnalysisService) readLimited(body io.Reader) ([]byte, error) {
	limit := s.opts.MaxFileSizeBytes()
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, entity.ErrFileTooLarge(s.opts.MaxFileSizeMB)
	}
	return data, nil
}

// replay продвигает трассу от текущего состояния до reached
func replay(logger *zerolog.Logger, trace *entity.Trace, reached entity.RequestState) {
	order := []entity.RequestState{
		entity.StateValidated,
		entity.StateDecoded,
		entity.StateSaliencyComputed,
		entity.StateRendered,
	}
	for _, st := range order {
		if trace.Current() == reached {
			return
		}
		if slices.Contains(trace.States, st) {
			continue
		}
		advance(logger, trace, st)
	}
}

func advance(logger *zerolog.Logger, trace *entity.Trace, to entity.RequestState) {
	if err := trace.Advance(to); err != nil {
		logger.Warn().Err(err).Msg("unexpected request state transition")
	}
}

func (s *AnalysisService) finish(ctx context.Context, logger *zerolog.Logger, trace *entity.Trace, start time.Time, err error) {
	outcome := "ok"
	if err == nil {
		advance(logger, trace, entity.StateResponded)
	} else {
		kind := entity.ErrorKind("InternalError")
		if ae, ok := entity.AsAnalysisError(err); ok {
			kind = ae.Kind
		}
		_ = trace.Fail(kind)
		outcome = string(kind)
	}

	s.reg.Inc(ctx, metrics.AnalyzeRequests, map[string]string{"outcome": outcome}, 1)

	ev := logger.Info()
	if err != nil {
		ev = logger.Warn().Err(err)
	}
	ev.Str("outcome", outcome).
		Str("state", string(trace.Current())).
		Dur("duration", time.Since(start)).
		Msg("analysis finished")
}
