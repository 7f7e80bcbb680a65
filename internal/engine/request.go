package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/go-iesched/internal/tensor"
)

// RunFunc executes one job synchronously.
type RunFunc func(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)

// AsyncRequest is a Request that executes each job on its own goroutine and
// lets waiters block on a condition variable instead of polling.
type AsyncRequest struct {
	run RunFunc

	mu       sync.Mutex
	done     *sync.Cond
	started  bool
	busy     bool
	status   Status
	outputs  map[string]*tensor.Tensor
	err      error
	callback CompletionFunc
}

var _ Request = (*AsyncRequest)(nil)

func NewAsyncRequest(run RunFunc) *AsyncRequest {
	r := &AsyncRequest{
		run:    run,
		status: StatusInferNotStarted,
	}
	r.done = sync.NewCond(&r.mu)

	return r
}

// NewRequestPool builds n requests sharing the same RunFunc.
func NewRequestPool(n int, run RunFunc) []Request {
	pool := make([]Request, n)
	for i := range pool {
		pool[i] = NewAsyncRequest(run)
	}

	return pool
}

func (r *AsyncRequest) StartAsync(inputs map[string]*tensor.Tensor) error {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return &ExecutionError{Status: StatusRequestBusy}
	}
	r.busy = true
	r.started = true
	r.status = StatusResultNotReady
	r.outputs = nil
	r.err = nil
	r.mu.Unlock()

	go r.execute(inputs)

	return nil
}

func (r *AsyncRequest) execute(inputs map[string]*tensor.Tensor) {
	outputs, err := r.run(context.Background(), inputs)

	status := StatusOK
	if err != nil {
		status = StatusGeneralError

		var execErr *ExecutionError
		if errors.As(err, &execErr) && execErr.Status != StatusOK {
			status = execErr.Status
		}
	}

	r.mu.Lock()
	r.outputs = outputs
	r.err = err
	r.status = status
	r.busy = false
	cb := r.callback
	r.done.Broadcast()
	r.mu.Unlock()

	if cb != nil {
		cb(status)
	}
}

func (r *AsyncRequest) Wait(timeout time.Duration) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return StatusInferNotStarted
	}

	switch {
	case timeout < 0:
		for r.busy {
			r.done.Wait()
		}
	case timeout > 0 && r.busy:
		deadline := time.Now().Add(timeout)
		timer := time.AfterFunc(timeout, func() {
			r.mu.Lock()
			r.done.Broadcast()
			r.mu.Unlock()
		})
		defer timer.Stop()

		for r.busy && time.Now().Before(deadline) {
			r.done.Wait()
		}
	}

	if r.busy {
		return StatusResultNotReady
	}

	return r.status
}

func (r *AsyncRequest) SetCompletionCallback(fn CompletionFunc) {
	r.mu.Lock()
	r.callback = fn
	r.mu.Unlock()
}

func (r *AsyncRequest) Outputs() map[string]*tensor.Tensor {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.outputs
}

func (r *AsyncRequest) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}
