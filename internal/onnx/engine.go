package onnx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/go-iesched/internal/config"
	"github.com/example/go-iesched/internal/engine"
	"github.com/example/go-iesched/internal/tensor"
)

// Engine is the ONNX Runtime implementation of engine.Engine.
type Engine struct {
	runner RunnerConfig
	info   RuntimeInfo
	log    *slog.Logger
}

var _ engine.Engine = (*Engine)(nil)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for runtime and network load events.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine locates the ONNX Runtime shared library described by cfg.
func NewEngine(cfg config.EngineConfig, opts ...EngineOption) (*Engine, error) {
	e := &Engine{log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}

	info, err := DetectRuntime(cfg)
	if err != nil {
		return nil, fmt.Errorf("detect onnx runtime: %w", err)
	}

	e.log.Info("onnx runtime detected", "library", info.LibraryPath, "version", info.Version)

	e.runner = RunnerConfig{
		LibraryPath: info.LibraryPath,
		APIVersion:  cfg.ORTAPIVersion,
	}
	e.info = info

	return e, nil
}

// Runtime reports the detected library.
func (e *Engine) Runtime() RuntimeInfo {
	return e.info
}

func (e *Engine) ReadNetwork(topologyPath, weightsPath string) (engine.Network, error) {
	return ReadNetwork(topologyPath, weightsPath)
}

func (e *Engine) LoadNetwork(net engine.Network, device string, numRequests int) (engine.Executable, error) {
	n, ok := net.(*Network)
	if !ok {
		return nil, fmt.Errorf("network %q was not read by the onnx engine", net.Name())
	}

	canonical, err := config.NormalizeDevice(device)
	if err != nil {
		return nil, err
	}

	if canonical != config.DeviceCPU {
		return nil, fmt.Errorf("device %q is not supported by the onnx runtime engine", canonical)
	}

	if numRequests < 1 {
		return nil, fmt.Errorf("request pool size must be >= 1, got %d", numRequests)
	}

	runner, err := NewRunner(n, e.runner)
	if err != nil {
		return nil, err
	}

	e.log.Info(
		"loaded network",
		"name", n.Name(),
		"device", canonical,
		"requests", numRequests,
	)

	return &Executable{
		network:  n,
		runner:   runner,
		requests: engine.NewRequestPool(numRequests, runner.Run),
	}, nil
}

// Executable is a network loaded into an ORT session with a fixed request
// pool.
type Executable struct {
	network  *Network
	runner   *Runner
	requests []engine.Request
}

var _ engine.Executable = (*Executable)(nil)

func (x *Executable) Inputs() []engine.PortInfo  { return x.network.Inputs() }
func (x *Executable) Outputs() []engine.PortInfo { return x.network.Outputs() }
func (x *Executable) Requests() []engine.Request { return x.requests }

func (x *Executable) Infer(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	return x.runner.Run(ctx, inputs)
}

// Close waits for in-flight requests and releases the session.
func (x *Executable) Close() error {
	for _, req := range x.requests {
		req.Wait(engine.Infinite)
	}

	if err := x.runner.Close(); err != nil {
		return fmt.Errorf("close runner %q: %w", x.runner.Name(), err)
	}

	return nil
}
