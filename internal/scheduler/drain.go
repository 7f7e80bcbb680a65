package scheduler

import (
	"fmt"

	"github.com/example/go-iesched/internal/engine"
)

// WaitForAllCompletion blocks until every slot is idle and every callback
// for finished jobs has returned.
func (s *Scheduler) WaitForAllCompletion() {
	s.mu.Lock()
	for s.nbusy > 0 || s.pending > 0 {
		s.cond.Wait()
	}
	s.mu.Unlock()

	for _, req := range s.requests {
		req.Wait(engine.Infinite)
	}
}

// Close rejects further submissions, waits for in-flight jobs, including
// running BlockInfer calls, and releases the executable. Submitters blocked on
// a busy slot return ErrClosed.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.WaitForAllCompletion()

	s.mu.Lock()
	for s.inline > 0 {
		s.cond.Wait()
	}
	s.mu.Unlock()

	if err := s.exec.Close(); err != nil {
		return fmt.Errorf("close executable %q: %w", s.desc.Name, err)
	}

	s.log.Debug("scheduler closed", "model", s.desc.Name)

	return nil
}
