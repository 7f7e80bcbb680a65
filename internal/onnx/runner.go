package onnx

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/go-iesched/internal/tensor"
	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"
)

// RunnerConfig holds ORT library settings for creating runners.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

// Runner wraps one ORT session. Run may be called from several goroutines;
// every request slot of an executable shares the same runner.
type Runner struct {
	name    string
	runtime *ort.Runtime
	env     *ort.Env
	session *ort.Session
}

// NewRunner creates an ORT session for the network's weights file.
func NewRunner(net *Network, cfg RunnerConfig) (*Runner, error) {
	if cfg.APIVersion == 0 {
		cfg.APIVersion = 23
	}

	runtime, err := ort.NewRuntime(cfg.LibraryPath, cfg.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("ort runtime for %q: %w", net.Name(), err)
	}

	env, err := runtime.NewEnv("iesched-"+net.Name(), ort.LoggingLevelWarning)
	if err != nil {
		_ = runtime.Close()
		return nil, fmt.Errorf("ort env for %q: %w", net.Name(), err)
	}

	session, err := runtime.NewSession(env, net.WeightsPath(), nil)
	if err != nil {
		env.Close()
		_ = runtime.Close()

		return nil, fmt.Errorf("ort session for %q (%s): %w", net.Name(), net.WeightsPath(), err)
	}

	return &Runner{
		name:    net.Name(),
		runtime: runtime,
		env:     env,
		session: session,
	}, nil
}

// Run executes the graph with the given named input tensors.
func (r *Runner) Run(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	if r.session == nil {
		return nil, fmt.Errorf("run %q: runner is closed", r.name)
	}

	ortInputs := make(map[string]*ort.Value, len(inputs))
	for name, t := range inputs {
		v, err := tensorToORT(r.runtime, t)
		if err != nil {
			closeORTValues(ortInputs)
			return nil, fmt.Errorf("input %q: %w", name, err)
		}

		ortInputs[name] = v
	}

	defer closeORTValues(ortInputs)

	ortOutputs, err := r.session.Run(ctx, ortInputs)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", r.name, err)
	}
	defer closeORTValues(ortOutputs)

	results := make(map[string]*tensor.Tensor, len(ortOutputs))
	for name, v := range ortOutputs {
		t, err := ortToTensor(v)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}

		results[name] = t
	}

	return results, nil
}

// Close releases all ORT resources. Safe to call multiple times.
func (r *Runner) Close() error {
	if r.session != nil {
		r.session.Close()
		r.session = nil
	}

	if r.env != nil {
		r.env.Close()
		r.env = nil
	}

	var err error
	if r.runtime != nil {
		err = r.runtime.Close()
		r.runtime = nil
	}

	return err
}

// Name returns the network name.
func (r *Runner) Name() string {
	return r.name
}

func tensorToORT(runtime *ort.Runtime, t *tensor.Tensor) (*ort.Value, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}

	switch data := t.Data().(type) {
	case []float32:
		return ort.NewTensorValue(runtime, data, t.Shape())
	case []int64:
		return ort.NewTensorValue(runtime, data, t.Shape())
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %T", data)
	}
}

func ortToTensor(v *ort.Value) (*tensor.Tensor, error) {
	elemType, err := v.GetTensorElementType()
	if err != nil {
		return nil, fmt.Errorf("get element type: %w", err)
	}

	switch elemType {
	case ort.ONNXTensorElementDataTypeFloat:
		data, shape, err := ort.GetTensorData[float32](v)
		if err != nil {
			return nil, err
		}

		return tensor.New(data, shape)
	case ort.ONNXTensorElementDataTypeInt64:
		data, shape, err := ort.GetTensorData[int64](v)
		if err != nil {
			return nil, err
		}

		return tensor.New(data, shape)
	default:
		return nil, fmt.Errorf("unsupported ORT element type %d", elemType)
	}
}

func closeORTValues(vals map[string]*ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}
