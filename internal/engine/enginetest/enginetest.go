// Package enginetest provides an in-memory engine.Engine whose jobs are
// scripted by the test, so scheduling can be exercised without a native
// runtime.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/example/go-iesched/internal/engine"
	"github.com/example/go-iesched/internal/tensor"
)

// BlockingSlot marks a Call made through Executable.Infer.
const BlockingSlot = -1

// Call is one job observed by the fake runtime.
type Call struct {
	Seq    int
	Slot   int
	Inputs map[string]*tensor.Tensor
}

// Handler computes the outputs of one job. It runs on the job goroutine and
// may block to simulate a slow device.
type Handler func(ctx context.Context, call Call) (map[string]*tensor.Tensor, error)

// Engine is a fake runtime. Zero values are usable: Devices defaults to CPU
// and Handler to SumHandler.
type Engine struct {
	Network *Network
	Devices []string
	Handler Handler
	ReadErr error
	// CloseErr is returned by Executable.Close after the executable is
	// marked closed.
	CloseErr error

	mu    sync.Mutex
	seq   int
	calls []Call
	execs []*Executable
}

var _ engine.Engine = (*Engine)(nil)

// New returns an engine serving a network with the given ports.
func New(inputs, outputs []engine.PortInfo) *Engine {
	return &Engine{Network: &Network{NetName: "fake", In: inputs, Out: outputs}}
}

func (e *Engine) ReadNetwork(topologyPath, weightsPath string) (engine.Network, error) {
	if e.ReadErr != nil {
		return nil, e.ReadErr
	}
	if topologyPath == "" || weightsPath == "" {
		return nil, errors.New("topology and weights paths are required")
	}
	if e.Network == nil {
		return nil, errors.New("fake engine has no network configured")
	}

	return e.Network, nil
}

func (e *Engine) LoadNetwork(net engine.Network, device string, numRequests int) (engine.Executable, error) {
	devices := e.Devices
	if len(devices) == 0 {
		devices = []string{"CPU"}
	}
	if !slices.Contains(devices, strings.ToUpper(device)) {
		return nil, fmt.Errorf("device %q is not supported", device)
	}
	if numRequests < 1 {
		return nil, fmt.Errorf("request pool size must be >= 1, got %d", numRequests)
	}

	x := &Executable{
		engine:  e,
		inputs:  net.Inputs(),
		outputs: net.Outputs(),
	}
	x.requests = make([]engine.Request, numRequests)
	for slot := range x.requests {
		x.requests[slot] = engine.NewAsyncRequest(func(ctx context.Context, in map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
			return e.handle(ctx, slot, in, x.outputs)
		})
	}

	e.mu.Lock()
	e.execs = append(e.execs, x)
	e.mu.Unlock()

	return x, nil
}

// Calls returns every job observed so far in start order.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]Call(nil), e.calls...)
}

// Executables returns every executable loaded from this engine.
func (e *Engine) Executables() []*Executable {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]*Executable(nil), e.execs...)
}

func (e *Engine) handle(ctx context.Context, slot int, in map[string]*tensor.Tensor, outputs []engine.PortInfo) (map[string]*tensor.Tensor, error) {
	e.mu.Lock()
	call := Call{Seq: e.seq, Slot: slot, Inputs: in}
	e.seq++
	e.calls = append(e.calls, call)
	h := e.Handler
	e.mu.Unlock()

	if h == nil {
		return SumHandler(outputs)(ctx, call)
	}

	return h(ctx, call)
}

// Network is a static engine.Network.
type Network struct {
	NetName string
	In      []engine.PortInfo
	Out     []engine.PortInfo
}

func (n *Network) Name() string                { return n.NetName }
func (n *Network) Inputs() []engine.PortInfo  { return slices.Clone(n.In) }
func (n *Network) Outputs() []engine.PortInfo { return slices.Clone(n.Out) }

// Executable is the fake compiled network.
type Executable struct {
	engine   *Engine
	inputs   []engine.PortInfo
	outputs  []engine.PortInfo
	requests []engine.Request

	mu     sync.Mutex
	closed bool
}

var _ engine.Executable = (*Executable)(nil)

func (x *Executable) Inputs() []engine.PortInfo  { return slices.Clone(x.inputs) }
func (x *Executable) Outputs() []engine.PortInfo { return slices.Clone(x.outputs) }
func (x *Executable) Requests() []engine.Request { return x.requests }

func (x *Executable) Infer(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	return x.engine.handle(ctx, BlockingSlot, inputs, x.outputs)
}

func (x *Executable) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return errors.New("executable already closed")
	}
	x.closed = true

	return x.engine.CloseErr
}

// Closed reports whether Close was called.
func (x *Executable) Closed() bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.closed
}

// SumHandler fills output i with (sum of every float32 input element) + i,
// which makes results a deterministic function of the inputs.
func SumHandler(outputs []engine.PortInfo) Handler {
	return func(_ context.Context, call Call) (map[string]*tensor.Tensor, error) {
		var sum float32
		for _, in := range call.Inputs {
			data, err := in.Float32s()
			if err != nil {
				continue
			}
			for _, v := range data {
				sum += v
			}
		}

		out := make(map[string]*tensor.Tensor, len(outputs))
		for i, port := range outputs {
			n, err := tensor.ElementCount(port.Shape)
			if err != nil {
				return nil, fmt.Errorf("output %q: %w", port.Name, err)
			}
			data := make([]float32, n)
			for j := range data {
				data[j] = sum + float32(i)
			}
			t, err := tensor.New(data, port.Shape)
			if err != nil {
				return nil, fmt.Errorf("output %q: %w", port.Name, err)
			}
			out[port.Name] = t
		}

		return out, nil
	}
}

// ImagePort returns an NCHW float32 input port.
func ImagePort(name string, channels, height, width int64) engine.PortInfo {
	return engine.PortInfo{
		Name:  name,
		DType: tensor.Float32,
		Shape: []int64{1, channels, height, width},
		Kind:  "image",
	}
}

// RawPort returns a float32 port with the given shape.
func RawPort(name string, shape ...int64) engine.PortInfo {
	return engine.PortInfo{Name: name, DType: tensor.Float32, Shape: shape}
}
