package input

import (
	"errors"
	"fmt"

	"github.com/example/go-iesched/internal/imageproc"
	"github.com/example/go-iesched/internal/model"
	"github.com/example/go-iesched/internal/tensor"
)

// Marshaller converts Input into the tensors of one loaded network. It is
// safe for concurrent use.
type Marshaller struct {
	desc *model.Descriptor
	prep *imageproc.Preprocessor
}

// NewMarshaller uses prep for image inputs; nil selects the default
// preprocessor.
func NewMarshaller(desc *model.Descriptor, prep *imageproc.Preprocessor) *Marshaller {
	if prep == nil {
		prep = imageproc.NewPreprocessor()
	}

	return &Marshaller{desc: desc, prep: prep}
}

// Build returns the named tensor mapping for in. Every failure wraps
// ErrInvalidInput.
func (m *Marshaller) Build(in Input) (map[string]*tensor.Tensor, error) {
	if m.desc == nil || len(m.desc.Inputs) == 0 {
		return nil, fmt.Errorf("%w: model declares no inputs", ErrInvalidInput)
	}

	switch in.variant {
	case variantImage:
		return m.single(in)
	case variantNamed:
		return m.named(in)
	default:
		return nil, fmt.Errorf("%w: input is neither a single image nor named inputs", ErrInvalidInput)
	}
}

func (m *Marshaller) single(in Input) (map[string]*tensor.Tensor, error) {
	if in.image == nil {
		return nil, fmt.Errorf("%w: single image input has no image", ErrInvalidInput)
	}

	slot := m.desc.Inputs[0]
	t, err := m.prep.Tensor(in.image, slot.Shape)
	if err != nil {
		return nil, fmt.Errorf("%w: input %q: %w", ErrInvalidInput, slot.Name, err)
	}

	return map[string]*tensor.Tensor{slot.Name: t}, nil
}

func (m *Marshaller) named(in Input) (map[string]*tensor.Tensor, error) {
	if len(in.entries) == 0 {
		return nil, fmt.Errorf("%w: no named inputs given", ErrInvalidInput)
	}

	declared := m.desc.InputsByName()
	out := make(map[string]*tensor.Tensor, len(in.entries))

	for _, e := range in.entries {
		slot, ok := declared[e.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q is not an input of model %q", ErrInvalidInput, e.Name, m.desc.Name)
		}
		if _, dup := out[e.Name]; dup {
			return nil, fmt.Errorf("%w: input %q given twice", ErrInvalidInput, e.Name)
		}

		t, err := m.entry(e, slot)
		if err != nil {
			return nil, fmt.Errorf("%w: input %q: %w", ErrInvalidInput, e.Name, err)
		}

		out[e.Name] = t
	}

	return out, nil
}

func (m *Marshaller) entry(e Entry, slot model.TensorSlot) (*tensor.Tensor, error) {
	kind := e.Kind
	if kind == "" {
		kind = slot.Kind
	}

	switch kind {
	case model.KindImage:
		if e.Image == nil {
			return nil, errors.New("image entry has no image")
		}
		shape := e.Shape
		if len(shape) == 0 {
			shape = slot.Shape
		}
		return m.prep.Tensor(e.Image, shape)
	case model.KindRaw:
		if e.Tensor == nil {
			return nil, errors.New("raw entry has no tensor")
		}
		return e.Tensor, nil
	default:
		return nil, fmt.Errorf("unknown input kind %q", kind)
	}
}
