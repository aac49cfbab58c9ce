//go:build gocv
// +build gocv

package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"

	"gocv.io/x/gocv"

	"saliency-heatmap/internal/domain/entity"
	"saliency-heatmap/internal/domain/port"
)

// Backend имя реализации, выбранной при сборке
const Backend = "gocv"

// NewEstimator возвращает оценщик заметности на OpenCV
func NewEstimator() port.SaliencyEstimator {
	return NewGoCVSpectralResidual()
}

// NewRenderer возвращает рендерер на cv::applyColorMap
func NewRenderer() port.HeatmapRenderer {
	return &GoCVRenderer{fallback: NewJetRenderer()}
}

// NewCodec возвращает кодек на cv::imread
func NewCodec() port.ImageCodec {
	return &GoCVCodec{}
}

// GoCVSpectralResidual спектральный остаток средствами OpenCV,
// шаг в шаг с cv::saliency::StaticSaliencySpectralResidual
type GoCVSpectralResidual struct {
	Size      int
	BoxSize   int
	BlurSize  int
	BlurSigma float64
}

// NewGoCVSpectralResidual создаёт оценщик с константами OpenCV
func NewGoCVSpectralResidual() *GoCVSpectralResidual {
	return &GoCVSpectralResidual{Size: 64, BoxSize: 3, BlurSize: 5, BlurSigma: 8}
}

// Estimate строит карту заметности в [0,1] того же размера, что и img.
func (s *GoCVSpectralResidual) Estimate(ctx context.Context, img image.Image) (*entity.SaliencyMap, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmptyImage
	}
	w, h := b.Dx(), b.Dy()
	n := s.Size

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("image to mat: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(gray, &small, image.Pt(n, n), 0, 0, gocv.InterpolationLinear)

	// Однотонная картинка: спектр без остатка
	if lo, hi, _, _ := gocv.MinMaxLoc(small); lo == hi {
		return entity.NewSaliencyMap(w, h), nil
	}

	re := gocv.NewMat()
	defer re.Close()
	small.ConvertTo(&re, gocv.MatTypeCV32F)
	im := gocv.Zeros(n, n, gocv.MatTypeCV32F)
	defer im.Close()

	planes := gocv.NewMat()
	defer planes.Close()
	gocv.Merge([]gocv.Mat{re, im}, &planes)

	freq := gocv.NewMat()
	defer freq.Close()
	gocv.DFT(planes, &freq, gocv.DftComplexOutput)

	parts := gocv.Split(freq)
	for i := range parts {
		defer parts[i].Close()
	}

	mag := gocv.NewMat()
	defer mag.Close()
	ang := gocv.NewMat()
	defer ang.Close()
	gocv.CartToPolar(parts[0], parts[1], &mag, &ang, false)

	// log(0) = -inf, поэтому сдвигаем на малую величину
	mag.AddFloat(1e-9)
	logAmp := gocv.NewMat()
	defer logAmp.Close()
	gocv.Log(mag, &logAmp)

	avg := gocv.NewMat()
	defer avg.Close()
	gocv.Blur(logAmp, &avg, image.Pt(s.BoxSize, s.BoxSize))

	residual := gocv.NewMat()
	defer residual.Close()
	gocv.Subtract(logAmp, avg, &residual)

	amp := gocv.NewMat()
	defer amp.Close()
	gocv.Exp(residual, &amp)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cre := gocv.NewMat()
	defer cre.Close()
	cim := gocv.NewMat()
	defer cim.Close()
	gocv.PolarToCart(amp, ang, &cre, &cim, false)

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge([]gocv.Mat{cre, cim}, &merged)

	back := gocv.NewMat()
	defer back.Close()
	gocv.DFT(merged, &back, gocv.DftInverse|gocv.DftScale)

	backParts := gocv.Split(back)
	for i := range backParts {
		defer backParts[i].Close()
	}

	m := gocv.NewMat()
	defer m.Close()
	gocv.Magnitude(backParts[0], backParts[1], &m)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(m, &blurred, image.Pt(s.BlurSize, s.BlurSize), s.BlurSigma, 0, gocv.BorderDefault)

	sq := gocv.NewMat()
	defer sq.Close()
	gocv.Multiply(blurred, blurred, &sq)

	// Деление на максимум: минимум карты не подтягивается к нулю
	_, hi, _, _ := gocv.MinMaxLoc(sq)
	if hi <= 0 {
		return entity.NewSaliencyMap(w, h), nil
	}
	sq.DivideFloat(hi)

	full := gocv.NewMat()
	defer full.Close()
	gocv.Resize(sq, &full, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)

	out := entity.NewSaliencyMap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(x, y, full.GetFloatAt(y, x))
		}
	}
	return out, nil
}

// GoCVRenderer раскрашивает карту через cv::applyColorMap(COLORMAP_JET)
type GoCVRenderer struct {
	fallback *JetRenderer
}

// Render применяет палитру jet; при ошибке OpenCV используется Go-палитра
func (r *GoCVRenderer) Render(m *entity.SaliencyMap) *image.RGBA {
	src, err := gocv.ImageGrayToMatGray(m.ToGray())
	if err != nil {
		return r.fallback.Render(m)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.ApplyColorMap(src, &dst, gocv.ColormapJet)

	img, err := dst.ToImage()
	if err != nil {
		return r.fallback.Render(m)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}

// GoCVCodec читает изображения через OpenCV, PNG пишет стандартной библиотекой
type GoCVCodec struct{}

// DecodeConfigFile читает размеры из заголовка до cv::imread
func (c *GoCVCodec) DecodeConfigFile(path string) (image.Config, error) {
	return decodeConfigFile(path)
}

// DecodeFile читает файл через cv::imread
func (c *GoCVCodec) DecodeFile(path string) (image.Image, error) {
	cfg, err := decodeConfigFile(path)
	if err != nil {
		return nil, err
	}

	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("failed to decode image")
	}
	// Растр не должен разойтись с заголовком, по которому проверялся лимит пикселей.
	// imread поворачивает JPEG по EXIF, поэтому сравнивается площадь.
	if mat.Cols()*mat.Rows() != cfg.Width*cfg.Height {
		return nil, fmt.Errorf("decoded %dx%d, header says %dx%d", mat.Cols(), mat.Rows(), cfg.Width, cfg.Height)
	}
	return mat.ToImage()
}

// EncodePNG пишет изображение в PNG
func (c *GoCVCodec) EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// Проверка реализации интерфейсов
var (
	_ port.SaliencyEstimator = (*GoCVSpectralResidual)(nil)
	_ port.HeatmapRenderer   = (*GoCVRenderer)(nil)
	_ port.ImageCodec        = (*GoCVCodec)(nil)
)
