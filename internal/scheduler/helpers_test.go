package scheduler

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/go-iesched/internal/engine"
	"github.com/example/go-iesched/internal/engine/enginetest"
	"github.com/example/go-iesched/internal/input"
	"github.com/example/go-iesched/internal/model"
	"github.com/example/go-iesched/internal/tensor"
)

const waitFor = 2 * time.Second

// gates holds back jobs keyed by the value of their "x" input until the test
// releases them.
type gates struct {
	mu      sync.Mutex
	byJob   map[int]chan struct{}
	opened  bool
	started chan int
}

func newGates() *gates {
	return &gates{
		byJob:   make(map[int]chan struct{}),
		started: make(chan int, 64),
	}
}

func (g *gates) gate(job int) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.byJob[job]
	if !ok {
		ch = make(chan struct{})
		if g.opened {
			close(ch)
		}
		g.byJob[job] = ch
	}
	return ch
}

func (g *gates) release(job int) {
	ch := g.gate(job)

	g.mu.Lock()
	defer g.mu.Unlock()

	select {
	case <-ch:
	default:
		close(ch)
	}
}

// openAll releases every current and future job.
func (g *gates) openAll() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.opened {
		return
	}
	g.opened = true
	for _, ch := range g.byJob {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
}

func (g *gates) handler(outputs []engine.PortInfo) enginetest.Handler {
	sum := enginetest.SumHandler(outputs)
	return func(ctx context.Context, call enginetest.Call) (map[string]*tensor.Tensor, error) {
		job := jobOf(call)
		g.started <- job
		<-g.gate(job)
		return sum(ctx, call)
	}
}

// awaitStarted waits until n jobs have reached the engine.
func (g *gates) awaitStarted(t *testing.T, n int) []int {
	t.Helper()

	jobs := make([]int, 0, n)
	for range n {
		select {
		case job := <-g.started:
			jobs = append(jobs, job)
		case <-time.After(waitFor):
			t.Fatalf("only %d of %d jobs started", len(jobs), n)
		}
	}
	return jobs
}

func jobOf(call enginetest.Call) int {
	data, err := call.Inputs["x"].Float32s()
	if err != nil || len(data) == 0 {
		return -1
	}
	return int(data[0])
}

// job builds the input for a raw model whose only input "x" is [1,1].
func job(t *testing.T, k int) input.Input {
	t.Helper()

	x, err := tensor.New([]float32{float32(k)}, []int64{1, 1})
	require.NoError(t, err)
	return input.NamedInputs(input.RawEntry("x", x))
}

func rawEngine(outputs ...engine.PortInfo) *enginetest.Engine {
	if len(outputs) == 0 {
		outputs = []engine.PortInfo{enginetest.RawPort("y", 1, 1)}
	}
	return enginetest.New([]engine.PortInfo{enginetest.RawPort("x", 1, 1)}, outputs)
}

func newScheduler(t *testing.T, eng *enginetest.Engine, pool int, opts ...Option) *Scheduler {
	t.Helper()

	desc, exec, err := model.Load(eng, "net.json", "net.onnx", "CPU", pool)
	require.NoError(t, err)

	s, err := New(exec, desc, opts...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })
	return s
}

// collector records callback invocations.
type collector struct {
	mu      sync.Mutex
	results map[uint64]Result
	errs    map[uint64]error
	order   []uint64
	done    chan uint64
}

func newCollector() *collector {
	return &collector{
		results: make(map[uint64]Result),
		errs:    make(map[uint64]error),
		done:    make(chan uint64, 256),
	}
}

func (c *collector) callback(ticket uint64, res Result, err error) {
	c.mu.Lock()
	c.results[ticket] = res
	c.errs[ticket] = err
	c.order = append(c.order, ticket)
	c.mu.Unlock()

	c.done <- ticket
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *collector) result(ticket uint64) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[ticket], c.errs[ticket]
}

func (c *collector) await(t *testing.T) uint64 {
	t.Helper()

	select {
	case ticket := <-c.done:
		return ticket
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a callback")
		return 0
	}
}

func flat(t *testing.T, res Result) []float32 {
	t.Helper()

	data, err := res.Flat()
	require.NoError(t, err)
	return data
}

// lockedBuffer is a log sink written from completion goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
