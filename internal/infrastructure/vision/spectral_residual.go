package vision

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/cmplx"

	"github.com/nfnt/resize"
	"gonum.org/v1/gonum/dsp/fourier"

	"saliency-heatmap/internal/domain/entity"
	"saliency-heatmap/internal/domain/port"
)

// ErrEmptyImage изображение без пикселей
var ErrEmptyImage = errors.New("empty image")

// SpectralResidual оценивает заметность методом спектрального остатка
// (Hou & Zhang, 2007) на чистом Go.
type SpectralResidual struct {
	Size       int     // сторона уменьшенного квадрата, на котором считается спектр
	BoxSize    int     // окно усреднения логарифма амплитуды
	BlurSize   int     // окно гауссова сглаживания модуля
	BlurSigma  float64 // сигма гауссова сглаживания модуля
	FlatEpsRel float64 // относительный порог «плоского» спектра и карты
}

// NewSpectralResidual создаёт оценщик с константами cv::saliency::StaticSaliencySpectralResidual
func NewSpectralResidual() *SpectralResidual {
	return &SpectralResidual{
		Size:       64,
		BoxSize:    3,
		BlurSize:   5,
		BlurSigma:  8,
		FlatEpsRel: 1e-9,
	}
}

// Estimate строит карту заметности в [0,1] того же размера, что и img.
// Порядок шагов как в OpenCV: серый, уменьшение, остаток, модуль, сглаживание,
// квадрат, деление на максимум. Однотонное изображение даёт нулевую карту.
func (s *SpectralResidual) Estimate(ctx context.Context, img image.Image) (*entity.SaliencyMap, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmptyImage
	}
	w, h := b.Dx(), b.Dy()
	n := s.Size

	small := resize.Resize(uint(n), uint(n), toGray(img), resize.Bilinear)
	sb := small.Bounds()

	plane := make([]float64, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			g := color.GrayModel.Convert(small.At(sb.Min.X+x, sb.Min.Y+y)).(color.Gray)
			plane[y*n+x] = float64(g.Y)
		}
	}
	if isFlat(plane, 0) {
		return entity.NewSaliencyMap(w, h), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	freq := make([]complex128, n*n)
	for i, v := range plane {
		freq[i] = complex(v, 0)
	}
	fft2(freq, n, false)

	amp := make([]float64, n*n)
	maxAmp := 0.0
	for i, c := range freq {
		amp[i] = cmplx.Abs(c)
		maxAmp = math.Max(maxAmp, amp[i])
	}
	floor := maxAmp * s.FlatEpsRel

	logAmp := make([]float64, n*n)
	for i, a := range amp {
		logAmp[i] = math.Log(math.Max(a, floor))
	}
	avg := boxBlur(logAmp, n, n, s.BoxSize)

	// Остаток = log A - усреднённый log A; фаза сохраняется.
	// Нулевые частоты исходного спектра остаются нулевыми.
	for i := range freq {
		if amp[i] <= floor {
			freq[i] = 0
			continue
		}
		freq[i] = cmplx.Rect(math.Exp(logAmp[i]-avg[i]), cmplx.Phase(freq[i]))
	}
	fft2(freq, n, true)

	sal := make([]float64, n*n)
	for i, c := range freq {
		sal[i] = cmplx.Abs(c)
	}
	sal = gaussianBlur(sal, n, n, s.BlurSize, s.BlurSigma)
	for i, m := range sal {
		sal[i] = m * m
	}

	if !scaleByMax(sal, s.FlatEpsRel) {
		return entity.NewSaliencyMap(w, h), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return upsample(sal, n, w, h), nil
}

// toGray переводит изображение в 8-битный серый; у JPEG берётся готовая яркость
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	switch src := img.(type) {
	case *image.Gray:
		return src
	case *image.YCbCr:
		g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			off := src.YOffset(b.Min.X, b.Min.Y+y)
			copy(g.Pix[y*g.Stride:y*g.Stride+b.Dx()], src.Y[off:off+b.Dx()])
		}
		return g
	}
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// upsample растягивает карту n×n до w×h через Gray16
func upsample(sal []float64, n, w, h int) *entity.SaliencyMap {
	g := image.NewGray16(image.Rect(0, 0, n, n))
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			g.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(sal[y*n+x] * 0xffff))})
		}
	}
	big := resize.Resize(uint(w), uint(h), g, resize.Bilinear)

	out := entity.NewSaliencyMap(w, h)
	bb := big.Bounds()
	g16, ok := big.(*image.Gray16)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v uint16
			if ok {
				v = g16.Gray16At(bb.Min.X+x, bb.Min.Y+y).Y
			} else {
				v = color.Gray16Model.Convert(big.At(bb.Min.X+x, bb.Min.Y+y)).(color.Gray16).Y
			}
			out.Set(x, y, float32(v)/0xffff)
		}
	}
	return out
}

// scaleByMax делит неотрицательные значения на максимум, минимум остаётся как есть.
// Возвращает false, если разброс пренебрежимо мал.
func scaleByMax(v []float64, epsRel float64) bool {
	lo, hi := v[0], v[0]
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if hi <= 0 || !isSpread(lo, hi, epsRel) {
		return false
	}
	for i := range v {
		v[i] /= hi
	}
	return true
}

func isFlat(v []float64, epsRel float64) bool {
	lo, hi := v[0], v[0]
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return !isSpread(lo, hi, epsRel)
}

func isSpread(lo, hi, epsRel float64) bool {
	span := hi - lo
	scale := math.Max(math.Abs(lo), math.Abs(hi))
	return span > 0 && span > scale*epsRel
}

// fft2 двумерное БПФ на месте по строкам, затем по столбцам
func fft2(data []complex128, n int, inverse bool) {
	fft := fourier.NewCmplxFFT(n)
	in := make([]complex128, n)
	out := make([]complex128, n)

	transform := func() {
		if inverse {
			fft.Sequence(out, in)
		} else {
			fft.Coefficients(out, in)
		}
	}

	for y := 0; y < n; y++ {
		copy(in, data[y*n:(y+1)*n])
		transform()
		copy(data[y*n:(y+1)*n], out)
	}
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			in[y] = data[y*n+x]
		}
		transform()
		for y := 0; y < n; y++ {
			data[y*n+x] = out[y]
		}
	}
}

// reflect101 отражение индекса за границей без повтора крайнего (BORDER_REFLECT_101)
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}

// boxBlur усреднение окном size×size
func boxBlur(v []float64, w, h, size int) []float64 {
	k := make([]float64, size)
	for i := range k {
		k[i] = 1 / float64(size)
	}
	return convolveSeparable(v, w, h, k)
}

// gaussianBlur сглаживание ядром size×size (size нечётный), как cv::GaussianBlur
func gaussianBlur(v []float64, w, h, size int, sigma float64) []float64 {
	r := size / 2
	k := make([]float64, 2*r+1)
	sum := 0.0
	for i := range k {
		d := float64(i - r)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return convolveSeparable(v, w, h, k)
}

func convolveSeparable(v []float64, w, h int, k []float64) []float64 {
	r := len(k) / 2
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for i, kv := range k {
				acc += kv * v[y*w+reflect101(x+i-r, w)]
			}
			tmp[y*w+x] = acc
		}
	}
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for i, kv := range k {
				acc += kv * tmp[reflect101(y+i-r, h)*w+x]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

// Проверка реализации интерфейса
var _ port.SaliencyEstimator = (*SpectralResidual)(nil)
