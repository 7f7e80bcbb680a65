// Package scheduler runs inference jobs on the fixed request pool of a loaded
// network. Submissions take slots in round-robin order and receive strictly
// increasing tickets; completions are shaped and handed to one registered
// callback.
//
// All methods are safe for concurrent use. A callback may submit new work
// but must not call WaitForAllCompletion or Close, which wait for callbacks
// to return.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/go-iesched/internal/engine"
	"github.com/example/go-iesched/internal/imageproc"
	"github.com/example/go-iesched/internal/input"
	"github.com/example/go-iesched/internal/model"
)

var (
	// ErrClosed is returned by submissions after Close.
	ErrClosed = errors.New("scheduler closed")
	// ErrNoModel is returned when there is no loaded network to run on.
	ErrNoModel = errors.New("no model loaded")
)

// Callback receives the outcome of an asynchronous job. err is an
// *engine.ExecutionError when the engine reported a failure.
type Callback func(ticket uint64, res Result, err error)

type Option func(*Scheduler)

func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithFirstTicket sets the id of the first submission (default 0).
func WithFirstTicket(id uint64) Option {
	return func(s *Scheduler) { s.next = id }
}

// WithPreprocessor sets how image inputs are converted.
func WithPreprocessor(p *imageproc.Preprocessor) Option {
	return func(s *Scheduler) { s.prep = p }
}

type Scheduler struct {
	exec     engine.Executable
	desc     *model.Descriptor
	requests []engine.Request
	marshal  *input.Marshaller
	prep     *imageproc.Preprocessor
	shape    shaper
	log      *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	busy    []bool
	nbusy   int
	pending int
	inline  int // BlockInfer calls running on the executable
	cursor  int
	next    uint64
	closed  bool

	cbMu     sync.RWMutex
	callback Callback
}

// New takes ownership of exec; Close releases it.
func New(exec engine.Executable, desc *model.Descriptor, opts ...Option) (*Scheduler, error) {
	if exec == nil || desc == nil {
		return nil, ErrNoModel
	}

	requests := exec.Requests()
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: executable has no request slots", ErrNoModel)
	}
	if len(desc.Outputs) == 0 {
		return nil, fmt.Errorf("%w: model %q declares no outputs", ErrNoModel, desc.Name)
	}

	s := &Scheduler{
		exec:     exec,
		desc:     desc,
		requests: requests,
		shape:    newShaper(desc),
		log:      slog.Default(),
		busy:     make([]bool, len(requests)),
	}
	s.cond = sync.NewCond(&s.mu)

	for _, opt := range opts {
		opt(s)
	}
	s.marshal = input.NewMarshaller(desc, s.prep)

	return s, nil
}

// SetCallback replaces the completion callback. nil clears it, after which
// results are dropped.
func (s *Scheduler) SetCallback(cb Callback) {
	s.cbMu.Lock()
	s.callback = cb
	s.cbMu.Unlock()
}

func (s *Scheduler) currentCallback() Callback {
	s.cbMu.RLock()
	defer s.cbMu.RUnlock()

	return s.callback
}

// AsyncInfer submits one job and returns its ticket as soon as the engine has
// accepted it. When the slot under the cursor is busy it blocks until that
// slot completes.
func (s *Scheduler) AsyncInfer(in input.Input) (uint64, error) {
	tensors, err := s.marshal.Build(in)
	if err != nil {
		return 0, err
	}

	slot, ticket, err := s.acquire()
	if err != nil {
		return 0, err
	}

	req := s.requests[slot]
	req.Wait(engine.Infinite)
	req.SetCompletionCallback(func(status engine.Status) {
		s.dispatch(ticket, slot, req, status)
	})

	if err := req.StartAsync(tensors); err != nil {
		s.release(slot)
		s.finish()

		return 0, fmt.Errorf("submit ticket %d on slot %d: %w", ticket, slot, err)
	}

	s.log.Debug("inference submitted", "ticket", ticket, "slot", slot)

	return ticket, nil
}

// acquire waits for the slot under the cursor, marks it busy and advances the
// cursor by one.
func (s *Scheduler) acquire() (int, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.closed && s.busy[s.cursor] {
		s.cond.Wait()
	}
	if s.closed {
		return 0, 0, ErrClosed
	}

	slot := s.cursor
	s.busy[slot] = true
	s.nbusy++
	s.pending++

	ticket := s.next
	s.next++
	s.cursor = (s.cursor + 1) % len(s.busy)

	return slot, ticket, nil
}

func (s *Scheduler) release(slot int) {
	s.mu.Lock()
	s.busy[slot] = false
	s.nbusy--
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	s.pending--
	s.cond.Broadcast()
	s.mu.Unlock()
}

// NumSlots is the size of the request pool.
func (s *Scheduler) NumSlots() int {
	return len(s.busy)
}

// Busy returns the number of slots with a job in flight.
func (s *Scheduler) Busy() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nbusy
}

// Cursor returns the slot the next submission will wait for.
func (s *Scheduler) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cursor
}

// Descriptor returns the model the scheduler runs.
func (s *Scheduler) Descriptor() *model.Descriptor {
	return s.desc
}
