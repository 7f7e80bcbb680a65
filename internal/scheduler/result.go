package scheduler

import (
	"errors"
	"fmt"
	"maps"

	"github.com/example/go-iesched/internal/model"
	"github.com/example/go-iesched/internal/tensor"
)

// Result is the shaped output of one inference. Single output models set
// Tensor; models with several outputs set Named.
type Result struct {
	Tensor *tensor.Tensor
	Named  map[string]*tensor.Tensor
}

// IsNamed reports whether the result is a name to tensor mapping.
func (r Result) IsNamed() bool {
	return r.Named != nil
}

// Flat returns the data of a single output result as a flat float32 slice.
func (r Result) Flat() ([]float32, error) {
	if r.Tensor == nil {
		return nil, errors.New("result holds no single output tensor")
	}
	return r.Tensor.Float32s()
}

// Output returns the named output. A single output result answers for any
// name.
func (r Result) Output(name string) (*tensor.Tensor, bool) {
	if r.Named == nil {
		return r.Tensor, r.Tensor != nil
	}
	t, ok := r.Named[name]
	return t, ok
}

// shaper turns the raw engine outputs into a Result.
type shaper func(outputs map[string]*tensor.Tensor) (Result, error)

func newShaper(desc *model.Descriptor) shaper {
	if desc.SingleOutput() {
		name := desc.Outputs[0].Name
		return func(outputs map[string]*tensor.Tensor) (Result, error) {
			t, ok := outputs[name]
			if !ok || t == nil {
				return Result{}, fmt.Errorf("output %q missing from engine results", name)
			}
			return Result{Tensor: t}, nil
		}
	}

	names := make([]string, len(desc.Outputs))
	for i, o := range desc.Outputs {
		names[i] = o.Name
	}

	return func(outputs map[string]*tensor.Tensor) (Result, error) {
		for _, name := range names {
			if t, ok := outputs[name]; !ok || t == nil {
				return Result{}, fmt.Errorf("output %q missing from engine results", name)
			}
		}
		return Result{Named: maps.Clone(outputs)}, nil
	}
}
