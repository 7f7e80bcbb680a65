package imageproc

import (
	"fmt"
	"image"

	"github.com/example/go-iesched/internal/tensor"
)

// Preprocessor converts images into tensors of a declared NCHW shape.
type Preprocessor struct {
	order  ChannelOrder
	filter Filter
}

type Option func(*Preprocessor)

// WithChannelOrder sets the plane order of three channel tensors.
func WithChannelOrder(order ChannelOrder) Option {
	return func(p *Preprocessor) { p.order = order }
}

// WithFilter sets the resize kernel.
func WithFilter(filter Filter) Option {
	return func(p *Preprocessor) { p.filter = filter }
}

// NewPreprocessor returns a BGR, bilinear preprocessor unless overridden.
func NewPreprocessor(opts ...Option) *Preprocessor {
	p := &Preprocessor{order: BGR, filter: Bilinear}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Preprocessor) ChannelOrder() ChannelOrder { return p.order }
func (p *Preprocessor) Filter() Filter             { return p.filter }

// Tensor resizes img to shape[3] x shape[2], lays it out planar and reshapes
// it to shape. shape must be [1, C, H, W] with C of 1 or 3.
func (p *Preprocessor) Tensor(img image.Image, shape []int64) (*tensor.Tensor, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	if len(shape) != 4 {
		return nil, fmt.Errorf("image shape %v must have rank 4 (NCHW)", shape)
	}
	if shape[0] != 1 {
		return nil, fmt.Errorf("image shape %v: batch dimension must be 1", shape)
	}

	channels, height, width := int(shape[1]), int(shape[2]), int(shape[3])
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("image shape %v: channel dimension must be 1 or 3", shape)
	}

	resized, err := Resize(img, width, height, p.filter)
	if err != nil {
		return nil, err
	}

	hwc, err := Interleaved(resized, channels, p.order)
	if err != nil {
		return nil, err
	}

	chw, err := ToPlanar(hwc, height, width, channels)
	if err != nil {
		return nil, err
	}

	return tensor.New(chw, shape)
}
