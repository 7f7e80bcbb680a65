package scheduler

import (
	"context"

	"github.com/example/go-iesched/internal/engine"
	"github.com/example/go-iesched/internal/input"
)

// BlockInfer runs one inference synchronously outside the request pool and
// shapes the outputs exactly like the asynchronous path.
func (s *Scheduler) BlockInfer(ctx context.Context, in input.Input) (Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrClosed
	}
	s.inline++
	s.mu.Unlock()
	defer s.endInline()

	tensors, err := s.marshal.Build(in)
	if err != nil {
		return Result{}, err
	}

	outputs, err := s.exec.Infer(ctx, tensors)
	if err != nil {
		return Result{}, executionError(engine.StatusGeneralError, err)
	}

	res, err := s.shape(outputs)
	if err != nil {
		return Result{}, &engine.ExecutionError{Status: engine.StatusGeneralError, Err: err}
	}

	return res, nil
}

func (s *Scheduler) endInline() {
	s.mu.Lock()
	s.inline--
	s.cond.Broadcast()
	s.mu.Unlock()
}
