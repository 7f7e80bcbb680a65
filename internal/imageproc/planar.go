package imageproc

import (
	"fmt"
	"image"
	"strings"

	gtensor "gorgonia.org/tensor"
)

// ChannelOrder is the order of colour planes in a three channel tensor.
type ChannelOrder int

const (
	BGR ChannelOrder = iota
	RGB
)

func (o ChannelOrder) String() string {
	switch o {
	case BGR:
		return "bgr"
	case RGB:
		return "rgb"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// ParseChannelOrder accepts "bgr" (the default for "") and "rgb".
func ParseChannelOrder(raw string) (ChannelOrder, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "bgr":
		return BGR, nil
	case "rgb":
		return RGB, nil
	default:
		return 0, fmt.Errorf("unsupported channel order %q (want bgr|rgb)", raw)
	}
}

// Interleaved returns the pixels of img as a row-major HWC float32 buffer
// with 1 (luma) or 3 channels in the requested order. Values stay in 0..255.
func Interleaved(img image.Image, channels int, order ChannelOrder) ([]float32, error) {
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("unsupported channel count %d (want 1 or 3)", channels)
	}

	src := toRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := make([]float32, 0, w*h*channels)

	for y := range h {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			r, g, b := float32(row[x]), float32(row[x+1]), float32(row[x+2])
			switch {
			case channels == 1:
				out = append(out, 0.299*r+0.587*g+0.114*b)
			case order == RGB:
				out = append(out, r, g, b)
			default:
				out = append(out, b, g, r)
			}
		}
	}

	return out, nil
}

// ToPlanar transposes an interleaved HWC buffer into CHW order.
func ToPlanar(hwc []float32, height, width, channels int) ([]float32, error) {
	if len(hwc) != height*width*channels {
		return nil, fmt.Errorf("buffer of %d values does not match %dx%dx%d", len(hwc), height, width, channels)
	}
	if channels == 1 || height*width == 1 {
		return append([]float32(nil), hwc...), nil
	}

	dense := gtensor.New(
		gtensor.WithShape(height, width, channels),
		gtensor.WithBacking(append([]float32(nil), hwc...)),
	)
	if err := dense.T(2, 0, 1); err != nil {
		return nil, fmt.Errorf("transpose to planar: %w", err)
	}
	if err := dense.Transpose(); err != nil {
		return nil, fmt.Errorf("transpose to planar: %w", err)
	}

	planar, ok := dense.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("transpose to planar: unexpected backing %T", dense.Data())
	}

	return planar, nil
}
