// Package input builds the named tensor mapping a network expects from
// caller input: either one image for the first declared input, or a set of
// named entries.
package input

import (
	"errors"
	"fmt"
	"image"

	"github.com/example/go-iesched/internal/model"
	"github.com/example/go-iesched/internal/tensor"
)

// ErrInvalidInput is matched by every marshalling failure.
var ErrInvalidInput = errors.New("invalid input")

type variant int

const (
	variantNone variant = iota
	variantImage
	variantNamed
)

// Input is built with SingleImage or NamedInputs. The zero value is neither
// and is rejected by the Marshaller.
type Input struct {
	variant variant
	image   image.Image
	entries []Entry
}

// Entry is one named input. Image entries are resized to Shape, or to the
// declared shape when Shape is empty. Raw entries pass Tensor through.
type Entry struct {
	Name   string
	Kind   model.Kind
	Shape  []int64
	Image  image.Image
	Tensor *tensor.Tensor
}

// SingleImage feeds img to the first declared input.
func SingleImage(img image.Image) Input {
	return Input{variant: variantImage, image: img}
}

// NamedInputs feeds each entry to the input of the same name.
func NamedInputs(entries ...Entry) Input {
	return Input{variant: variantNamed, entries: append([]Entry(nil), entries...)}
}

// ImageEntry is shorthand for an image entry with the declared shape.
func ImageEntry(name string, img image.Image) Entry {
	return Entry{Name: name, Kind: model.KindImage, Image: img}
}

// RawEntry is shorthand for a pass-through tensor entry.
func RawEntry(name string, t *tensor.Tensor) Entry {
	return Entry{Name: name, Kind: model.KindRaw, Tensor: t}
}

func (in Input) IsSingleImage() bool { return in.variant == variantImage }
func (in Input) IsNamed() bool       { return in.variant == variantNamed }

func (in Input) String() string {
	switch in.variant {
	case variantImage:
		return "SingleImage"
	case variantNamed:
		return fmt.Sprintf("NamedInputs(%d)", len(in.entries))
	default:
		return "Input(invalid)"
	}
}
