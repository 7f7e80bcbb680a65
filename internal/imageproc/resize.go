package imageproc

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// Filter selects the resampling kernel used by Resize.
type Filter int

const (
	Bilinear Filter = iota
	Nearest
)

func (f Filter) String() string {
	switch f {
	case Bilinear:
		return "bilinear"
	case Nearest:
		return "nearest"
	default:
		return fmt.Sprintf("filter(%d)", int(f))
	}
}

// ParseFilter accepts "bilinear" (the default for "") and "nearest".
func ParseFilter(raw string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "bilinear", "linear":
		return Bilinear, nil
	case "nearest":
		return Nearest, nil
	default:
		return 0, fmt.Errorf("unsupported resize filter %q (want bilinear|nearest)", raw)
	}
}

// Resize scales img to width x height with pixel centers aligned as in
// OpenCV's resize.
func Resize(img image.Image, width, height int, filter Filter) (*image.RGBA, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("resize target %dx%d must be positive", width, height)
	}

	src := toRGBA(img)
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	if sw == width && sh == height {
		return src, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	switch filter {
	case Nearest:
		resizeNearest(dst, src)
	case Bilinear:
		resizeBilinear(dst, src)
	default:
		return nil, fmt.Errorf("unsupported resize filter %s", filter)
	}

	return dst, nil
}

func resizeNearest(dst, src *image.RGBA) {
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	dw, dh := dst.Rect.Dx(), dst.Rect.Dy()

	for y := range dh {
		sy := min(y*sh/dh, sh-1)
		for x := range dw {
			sx := min(x*sw/dw, sw-1)
			copy(dst.Pix[dst.PixOffset(x, y):dst.PixOffset(x, y)+4], src.Pix[src.PixOffset(sx, sy):src.PixOffset(sx, sy)+4])
		}
	}
}

func resizeBilinear(dst, src *image.RGBA) {
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	dw, dh := dst.Rect.Dx(), dst.Rect.Dy()
	scaleX := float64(sw) / float64(dw)
	scaleY := float64(sh) / float64(dh)

	for y := range dh {
		y0, y1, fy := sample(y, scaleY, sh)
		for x := range dw {
			x0, x1, fx := sample(x, scaleX, sw)

			p00 := src.PixOffset(x0, y0)
			p01 := src.PixOffset(x1, y0)
			p10 := src.PixOffset(x0, y1)
			p11 := src.PixOffset(x1, y1)
			out := dst.PixOffset(x, y)

			for c := range 4 {
				top := float64(src.Pix[p00+c])*(1-fx) + float64(src.Pix[p01+c])*fx
				bottom := float64(src.Pix[p10+c])*(1-fx) + float64(src.Pix[p11+c])*fx
				v := top*(1-fy) + bottom*fy
				dst.Pix[out+c] = uint8(math.Min(255, math.Max(0, math.Round(v))))
			}
		}
	}
}

// sample maps destination index i onto the two source neighbours and the
// weight of the second one.
func sample(i int, scale float64, size int) (int, int, float64) {
	pos := (float64(i)+0.5)*scale - 0.5
	if pos < 0 {
		pos = 0
	}

	i0 := int(pos)
	if i0 >= size-1 {
		return size - 1, size - 1, 0
	}

	return i0, i0 + 1, pos - float64(i0)
}
