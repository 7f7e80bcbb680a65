package model

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/example/go-iesched/internal/engine"
	"github.com/example/go-iesched/internal/tensor"
)

type VerifyOptions struct {
	TopologyPath string
	WeightsPath  string
	Device       string
	Stdout       io.Writer
	Stderr       io.Writer
}

// Verify checks that every declared input can be materialized, then runs a
// zero-filled smoke inference and confirms every declared output comes back.
func Verify(ctx context.Context, eng engine.Engine, opts VerifyOptions) error {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	desc, exec, err := Load(eng, opts.TopologyPath, opts.WeightsPath, opts.Device, 1)
	if err != nil {
		return err
	}
	defer func() { _ = exec.Close() }()

	inputs := make(map[string]*tensor.Tensor, len(desc.Inputs))
	for _, in := range desc.Inputs {
		t, err := tensor.Zeros(string(in.DType), in.Shape)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s: input %q: %v\n", desc.Name, in.Name, err)
			return fmt.Errorf("model %q input %q invalid: %w", desc.Name, in.Name, err)
		}

		inputs[in.Name] = t
	}

	outputs, err := exec.Infer(ctx, inputs)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s: %v\n", desc.Name, err)
		return fmt.Errorf("smoke inference for %q: %w", desc.Name, err)
	}

	var missing []error
	for _, out := range desc.Outputs {
		if _, ok := outputs[out.Name]; !ok {
			missing = append(missing, fmt.Errorf("output %q missing from results", out.Name))
		}
	}

	if err := errors.Join(missing...); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s: %v\n", desc.Name, err)
		return fmt.Errorf("smoke inference for %q: %w", desc.Name, err)
	}

	_, _ = fmt.Fprintf(opts.Stdout, "PASS %s (%d inputs, %d outputs)\n", desc.Name, len(desc.Inputs), len(desc.Outputs))

	return nil
}
