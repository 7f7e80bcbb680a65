// Package imageproc turns decoded images into the planar float tensors image
// inputs of a network expect: resize to the declared spatial size, reorder
// channels and transpose interleaved pixels into NCHW.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
)

// Decode reads a JPEG or PNG image.
func Decode(r io.Reader) (image.Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode image: empty %s image", format)
	}

	return img, nil
}

// Load decodes the image stored at path.
func Load(path string) (image.Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}

	img, err := Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return img, nil
}

// toRGBA returns img as an *image.RGBA anchored at the origin, copying only
// when needed.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}

	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	return dst
}
