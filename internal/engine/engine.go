// Package engine defines the boundary to the inference runtime that actually
// loads networks and executes them. Implementations live elsewhere (see the
// onnx package); the scheduler only talks to these interfaces.
package engine

import (
	"context"
	"time"

	"github.com/example/go-iesched/internal/tensor"
)

// Infinite is the Wait timeout that blocks until the request is idle.
const Infinite time.Duration = -1

// PortInfo describes one named input or output of a network as reported by
// the runtime.
type PortInfo struct {
	Name  string
	DType tensor.DType
	Shape []int64
	// Kind is the declared role of an input ("image", "raw"), empty when the
	// topology does not say.
	Kind string
}

// Engine reads and compiles networks.
type Engine interface {
	ReadNetwork(topologyPath, weightsPath string) (Network, error)
	LoadNetwork(net Network, device string, numRequests int) (Executable, error)
}

// Network is a parsed, not yet executable model.
type Network interface {
	Name() string
	Inputs() []PortInfo
	Outputs() []PortInfo
}

// Executable is a network compiled for a device together with its fixed pool
// of reusable inference requests.
type Executable interface {
	Inputs() []PortInfo
	Outputs() []PortInfo
	// Requests returns the request pool. Its length never changes.
	Requests() []Request
	// Infer runs one synchronous inference outside the request pool.
	Infer(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)
	Close() error
}

// CompletionFunc is invoked by the runtime on its own goroutine once an
// asynchronous job finishes. The request is already idle when it runs.
type CompletionFunc func(status Status)

// Request is one reusable unit of execution state.
type Request interface {
	// StartAsync submits a job and returns immediately. It fails with
	// StatusRequestBusy if a job is still running.
	StartAsync(inputs map[string]*tensor.Tensor) error
	// Wait blocks until the current job finishes or the timeout elapses.
	// A negative timeout waits forever and zero only polls. It returns
	// StatusInferNotStarted for a request that never ran, the job status
	// once finished and StatusResultNotReady on timeout.
	Wait(timeout time.Duration) Status
	SetCompletionCallback(fn CompletionFunc)
	// Outputs returns the results of the last finished job.
	Outputs() map[string]*tensor.Tensor
	// Err returns the failure of the last finished job, if any.
	Err() error
}
