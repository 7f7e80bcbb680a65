package scheduler

import (
	"errors"

	"github.com/example/go-iesched/internal/engine"
)

// dispatch runs on the engine's completion goroutine. The slot is released
// before the callback runs so the callback itself may submit.
func (s *Scheduler) dispatch(ticket uint64, slot int, req engine.Request, status engine.Status) {
	defer s.finish()

	var (
		res Result
		err error
	)
	if status == engine.StatusOK {
		res, err = s.shape(req.Outputs())
		if err != nil {
			err = &engine.ExecutionError{Status: engine.StatusGeneralError, Err: err}
		}
	} else {
		err = executionError(status, req.Err())
	}

	s.release(slot)

	s.log.Debug("inference completed", "ticket", ticket, "slot", slot, "status", status)

	if err != nil {
		s.log.Warn("inference failed", "ticket", ticket, "slot", slot, "error", err)
	}

	cb := s.currentCallback()
	if cb == nil {
		s.log.Debug("no callback registered, result dropped", "ticket", ticket)
		return
	}

	cb(ticket, res, err)
}

func executionError(status engine.Status, cause error) error {
	var execErr *engine.ExecutionError
	if errors.As(cause, &execErr) {
		return execErr
	}

	if status == engine.StatusOK {
		status = engine.StatusGeneralError
	}

	return &engine.ExecutionError{Status: status, Err: cause}
}
