package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"saliency-heatmap/internal/domain/entity"
	"saliency-heatmap/internal/domain/port"
	"saliency-heatmap/internal/infrastructure/storage"
	"saliency-heatmap/internal/infrastructure/vision"
	"saliency-heatmap/internal/infrastructure/worker"
	"saliency-heatmap/internal/metrics"
)

type fixture struct {
	svc   *AnalysisService
	dir   string
	reg   *metrics.Registry
	codec *spyCodec
}

// spyCodec считает вызовы декодирования
type spyCodec struct {
	port.ImageCodec
	configs int
	decodes int
}

func (c *spyCodec) DecodeConfigFile(path string) (image.Config, error) {
	c.configs++
	return c.ImageCodec.DecodeConfigFile(path)
}

func (c *spyCodec) DecodeFile(path string) (image.Image, error) {
	c.decodes++
	return c.ImageCodec.DecodeFile(path)
}

type failingEstimator struct{}

func (failingEstimator) Estimate(ctx context.Context, img image.Image) (*entity.SaliencyMap, error) {
	return nil, errors.New("no saliency")
}

type blockingEstimator struct{}

func (blockingEstimator) Estimate(ctx context.Context, img image.Image) (*entity.SaliencyMap, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// untouchable падает, если тело запроса начали читать
type untouchable struct{ t *testing.T }

func (u untouchable) Read(p []byte) (int, error) {
	u.t.Fatal("body must not be read")
	return 0, io.EOF
}

func newFixture(t *testing.T, est port.SaliencyEstimator, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()
	reg := metrics.NewRegistry()
	store, err := storage.NewTempArtifactStore(dir, reg)
	require.NoError(t, err)

	pool := worker.NewPool(2)
	t.Cleanup(pool.Stop)

	if est == nil {
		est = vision.NewSpectralResidual()
	}
	codec := &spyCodec{ImageCodec: vision.NewStdCodec()}
	svc := NewAnalysisService(opts, store, codec, est, vision.NewJetRenderer(), pool, reg)
	return &fixture{svc: svc, dir: dir, reg: reg, codec: codec}
}

func (f *fixture) requireNoArtifacts(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solidJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func pattern(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / w)
			if x > w/2 && x < w/2+10 && y > h/3 && y < h/3+10 {
				v = 255 - v
			}
			img.Set(x, y, color.RGBA{R: v, G: uint8(y), B: 60, A: 255})
		}
	}
	return img
}

func requireKind(t *testing.T, err error, kind entity.ErrorKind) {
	t.Helper()
	ae, ok := entity.AsAnalysisError(err)
	require.True(t, ok, "expected AnalysisError, got %v", err)
	require.Equal(t, kind, ae.Kind)
}

func TestAnalyze_InvalidExtension(t *testing.T) {
	f := newFixture(t, nil, DefaultOptions())

	for _, name := range []string{"a.gif", "a.bmp", "noext", "a.png.txt", "a.jpgx"} {
		_, err := f.svc.Analyze(context.Background(), name, untouchable{t})
		requireKind(t, err, entity.KindInvalidFileType)
	}
	f.requireNoArtifacts(t)
	require.Zero(t, f.codec.configs)
	require.Zero(t, f.codec.decodes)
	require.Equal(t, int64(5), f.reg.Value("analyze_requests_total", map[string]string{"outcome": "InvalidFileType"}))
}

func TestAnalyze_ExtensionIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, nil, DefaultOptions())
	data := encodePNG(t, pattern(40, 30))

	for _, name := range []string{"A.PNG", "b.Png", "c.png"} {
		_, err := f.svc.AnalyzeBytes(context.Background(), name, data)
		require.NoError(t, err, name)
	}
}

func TestAnalyze_FileTooLarge(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxFileSizeMB = 1
	f := newFixture(t, nil, opts)

	data := make([]byte, 1024*1024+1)
	_, err := f.svc.AnalyzeBytes(context.Background(), "big.png", data)
	requireKind(t, err, entity.KindFileTooLarge)

	ae, _ := entity.AsAnalysisError(err)
	require.Equal(t, "file too large (max 1MB)", ae.Detail)
	require.Zero(t, f.codec.configs)
	require.Zero(t, f.codec.decodes)
	f.requireNoArtifacts(t)
}

func TestAnalyze_ExactlyAtLimitIsAccepted(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxFileSizeMB = 1
	f := newFixture(t, nil, opts)

	// Проходит проверку размера и падает уже на декодировании
	data := make([]byte, 1024*1024)
	_, err := f.svc.AnalyzeBytes(context.Background(), "edge.jpg", data)
	requireKind(t, err, entity.KindDecode)
	require.Equal(t, 1, f.codec.configs)
}

func TestAnalyze_DecodeError(t *testing.T) {
	f := newFixture(t, nil, DefaultOptions())

	_, err := f.svc.AnalyzeBytes(context.Background(), "fake.jpg", []byte("definitely not a jpeg"))
	requireKind(t, err, entity.KindDecode)
	f.requireNoArtifacts(t)
	require.Equal(t, int64(1), f.reg.Value("artifacts_created_total", nil))
	require.Equal(t, int64(1), f.reg.Value("artifacts_removed_total", nil))
}

func TestAnalyze_SaliencyError(t *testing.T) {
	f := newFixture(t, failingEstimator{}, DefaultOptions())

	_, err := f.svc.AnalyzeBytes(context.Background(), "ok.png", encodePNG(t, pattern(20, 20)))
	requireKind(t, err, entity.KindSaliency)
	f.requireNoArtifacts(t)
}

func TestAnalyze_Timeout(t *testing.T) {
	opts := DefaultOptions()
	opts.Timeout = 30 * time.Millisecond
	f := newFixture(t, blockingEstimator{}, opts)

	_, err := f.svc.AnalyzeBytes(context.Background(), "ok.png", encodePNG(t, pattern(20, 20)))
	requireKind(t, err, entity.KindTimeout)
	f.requireNoArtifacts(t)
}

func TestAnalyze_Success(t *testing.T) {
	f := newFixture(t, nil, DefaultOptions())

	out, err := f.svc.AnalyzeBytes(context.Background(), "photo.png", encodePNG(t, pattern(123, 77)))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, 123, img.Bounds().Dx())
	require.Equal(t, 77, img.Bounds().Dy())
	f.requireNoArtifacts(t)
	require.Equal(t, int64(1), f.reg.Value("analyze_requests_total", map[string]string{"outcome": "ok"}))
}

func TestAnalyze_Deterministic(t *testing.T) {
	f := newFixture(t, nil, DefaultOptions())
	data := encodePNG(t, pattern(64, 64))

	a, err := f.svc.AnalyzeBytes(context.Background(), "a.png", data)
	require.NoError(t, err)
	b, err := f.svc.AnalyzeBytes(context.Background(), "a.png", data)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestAnalyze_SolidJPEGMapsToLowestColor(t *testing.T) {
	f := newFixture(t, nil, DefaultOptions())

	out, err := f.svc.AnalyzeBytes(context.Background(), "flat.jpg", solidJPEG(t, 100, 100, color.RGBA{R: 200, G: 30, B: 30, A: 255}))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())

	lowest := vision.JetPalette()[0]
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			require.Equal(t, [3]uint32{uint32(lowest.R), uint32(lowest.G), uint32(lowest.B)}, [3]uint32{r >> 8, g >> 8, b >> 8})
		}
	}
}

func TestOptions_MaxFileSizeBytes(t *testing.T) {
	require.Equal(t, int64(5*1024*1024), DefaultOptions().MaxFileSizeBytes())
	require.Equal(t, int64(1024*1024), Options{MaxFileSizeMB: 1}.MaxFileSizeBytes())
}

func TestCheckExtension_CustomList(t *testing.T) {
	opts := DefaultOptions()
	opts.AllowedExtensions = []string{".png"}
	f := newFixture(t, nil, opts)

	require.NoError(t, f.svc.CheckExtension("x.PNG"))
	require.Error(t, f.svc.CheckExtension("x.jpg"))
}

// pngHeader PNG из одного заголовка IHDR (8 бит, серый): размеры есть, пикселей нет
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestAnalyze_PixelBombRejectedBeforeDecode(t *testing.T) {
	f := newFixture(t, nil, DefaultOptions())

	data := pngHeader(10000, 10000)
	require.Less(t, len(data), 64)

	_, err := f.svc.AnalyzeBytes(context.Background(), "bomb.png", data)
	requireKind(t, err, entity.KindImageTooLarge)

	ae, _ := entity.AsAnalysisError(err)
	require.Equal(t, http.StatusBadRequest, ae.Status())
	require.Equal(t, "image too large (max 40000000 pixels)", ae.Detail)
	require.Equal(t, 1, f.codec.configs)
	require.Zero(t, f.codec.decodes)
	f.requireNoArtifacts(t)
	require.Equal(t, int64(1), f.reg.Value("analyze_requests_total", map[string]string{"outcome": "ImageTooLarge"}))
}

func TestAnalyze_CompressedZeroImageOverPixelLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxPixels = 1000 * 1000
	f := newFixture(t, nil, opts)

	// Нулевой растр сжимается в килобайты
	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 1200, 1000)))
	require.Less(t, len(data), 64*1024)

	_, err := f.svc.AnalyzeBytes(context.Background(), "zeros.png", data)
	requireKind(t, err, entity.KindImageTooLarge)
	require.Zero(t, f.codec.decodes)
	f.requireNoArtifacts(t)

	// Ровно на лимите проходит
	_, err = f.svc.AnalyzeBytes(context.Background(), "ok.png", encodePNG(t, image.NewGray(image.Rect(0, 0, 1000, 1000))))
	require.NoError(t, err)
}

func TestAnalyze_CanceledIsNotTimeout(t *testing.T) {
	f := newFixture(t, nil, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.AnalyzeBytes(ctx, "ok.png", encodePNG(t, pattern(20, 20)))
	requireKind(t, err, entity.KindCanceled)
	require.ErrorIs(t, err, context.Canceled)
	f.requireNoArtifacts(t)
	require.Equal(t, int64(1), f.reg.Value("analyze_requests_total", map[string]string{"outcome": "Canceled"}))
	require.Zero(t, f.reg.Value("analyze_requests_total", map[string]string{"outcome": "Timeout"}))
}

func TestAnalyze_CanceledWhileRunning(t *testing.T) {
	f := newFixture(t, blockingEstimator{}, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := f.svc.AnalyzeBytes(ctx, "ok.png", encodePNG(t, pattern(20, 20)))
	requireKind(t, err, entity.KindCanceled)
	f.requireNoArtifacts(t)
}

func TestAnalyze_LogsWithRequestLogger(t *testing.T) {
	f := newFixture(t, nil, DefaultOptions())

	var buf bytes.Buffer
	ctx := zerolog.New(&buf).With().Str("request_id", "req-1").Logger().WithContext(context.Background())

	_, err := f.svc.AnalyzeBytes(ctx, "ok.png", encodePNG(t, pattern(20, 20)))
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"request_id":"req-1"`)
	require.Contains(t, buf.String(), `"filename":"ok.png"`)
	require.Contains(t, buf.String(), `"size":`)
	require.Contains(t, buf.String(), `"state":"responded"`)
}

func TestAdvance_IllegalTransitionUsesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Str("request_id", "req-2").Str("filename", "a.png").Logger()

	trace := entity.NewTrace()
	advance(&logger, trace, entity.StateRendered)

	require.Equal(t, entity.StateReceived, trace.Current())
	require.Contains(t, buf.String(), "unexpected request state transition")
	require.Contains(t, buf.String(), `"request_id":"req-2"`)
	require.Contains(t, buf.String(), `"filename":"a.png"`)
}
