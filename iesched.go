// Package iesched schedules inference jobs on a fixed pool of reusable
// engine requests.
//
// A Session is opened from a topology/weights pair. AsyncInfer submits a job
// and returns its ticket at once; the result reaches the callback registered
// with SetCallback, tagged with the same ticket. BlockInfer runs one job
// synchronously and WaitForAllCompletion waits until the pool is idle.
//
//	eng, err := iesched.NewORTEngine(iesched.EngineConfig{ORTLibraryPath: lib})
//	...
//	s, err := iesched.Open(eng, "models/resnet.onnx", iesched.WithNumRequests(4))
//	...
//	s.SetCallback(func(ticket uint64, res iesched.Result, err error) { ... })
//	ticket, err := s.AsyncInfer(iesched.SingleImage(img))
package iesched

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/example/go-iesched/internal/config"
	"github.com/example/go-iesched/internal/engine"
	"github.com/example/go-iesched/internal/imageproc"
	"github.com/example/go-iesched/internal/input"
	"github.com/example/go-iesched/internal/model"
	"github.com/example/go-iesched/internal/onnx"
	"github.com/example/go-iesched/internal/scheduler"
	"github.com/example/go-iesched/internal/tensor"
)

type (
	Tensor         = tensor.Tensor
	DType          = tensor.DType
	Input          = input.Input
	Entry          = input.Entry
	Kind           = model.Kind
	TensorSlot     = model.TensorSlot
	Descriptor     = model.Descriptor
	Result         = scheduler.Result
	Callback       = scheduler.Callback
	Engine         = engine.Engine
	Status         = engine.Status
	ExecutionError = engine.ExecutionError
	EngineConfig   = config.EngineConfig
)

const (
	KindImage = model.KindImage
	KindRaw   = model.KindRaw
)

var (
	ErrModelLoad       = model.ErrModelLoad
	ErrInvalidInput    = input.ErrInvalidInput
	ErrEngineExecution = engine.ErrExecution
	ErrClosed          = scheduler.ErrClosed
	ErrNoModel         = scheduler.ErrNoModel
)

// DefaultNumRequests is the request pool size used unless WithNumRequests
// says otherwise.
const DefaultNumRequests = 4

// SingleImage feeds img to the first input of the model.
func SingleImage(img image.Image) Input { return input.SingleImage(img) }

// NamedInputs feeds each entry to the input of the same name.
func NamedInputs(entries ...Entry) Input { return input.NamedInputs(entries...) }

func ImageEntry(name string, img image.Image) Entry { return input.ImageEntry(name, img) }
func RawEntry(name string, t *Tensor) Entry         { return input.RawEntry(name, t) }

// NewTensor copies data into a tensor of the given shape.
func NewTensor[T ~int64 | ~float32](data []T, shape []int64) (*Tensor, error) {
	return tensor.New(data, shape)
}

// NewORTEngine returns the ONNX Runtime engine. Only WithLogger applies; other
// options are ignored.
func NewORTEngine(cfg EngineConfig, opts ...Option) (Engine, error) {
	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return onnx.NewEngine(cfg, onnx.WithLogger(o.log))
}

type options struct {
	device       string
	numRequests  int
	log          *slog.Logger
	channelOrder string
	resize       string
}

type Option func(*options)

// WithDevice selects the device the network is compiled for (default CPU).
func WithDevice(device string) Option {
	return func(o *options) { o.device = device }
}

// WithNumRequests sets the request pool size.
func WithNumRequests(n int) Option {
	return func(o *options) { o.numRequests = n }
}

func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithPreprocess sets the channel order ("bgr" or "rgb") and resize filter
// ("bilinear" or "nearest") applied to image inputs. Empty values keep the
// defaults.
func WithPreprocess(channelOrder, resize string) Option {
	return func(o *options) {
		o.channelOrder = channelOrder
		o.resize = resize
	}
}

// Session is one loaded model with its scheduler.
type Session struct {
	desc  *model.Descriptor
	sched *scheduler.Scheduler
}

// Open derives the topology and weights paths from modelFile by replacing its
// extension with .json and .onnx, then loads the pair.
func Open(eng Engine, modelFile string, opts ...Option) (*Session, error) {
	topology, weights, err := model.ResolvePair(modelFile)
	if err != nil {
		return nil, err
	}

	return Load(eng, topology, weights, opts...)
}

// Load reads and compiles the network and allocates its request pool.
func Load(eng Engine, topologyPath, weightsPath string, opts ...Option) (*Session, error) {
	o := options{
		device:      config.DeviceCPU,
		numRequests: DefaultNumRequests,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	order, err := imageproc.ParseChannelOrder(o.channelOrder)
	if err != nil {
		return nil, err
	}
	filter, err := imageproc.ParseFilter(o.resize)
	if err != nil {
		return nil, err
	}

	desc, exec, err := model.Load(eng, topologyPath, weightsPath, o.device, o.numRequests)
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.New(exec, desc,
		scheduler.WithLogger(o.log),
		scheduler.WithPreprocessor(imageproc.NewPreprocessor(
			imageproc.WithChannelOrder(order),
			imageproc.WithFilter(filter),
		)),
	)
	if err != nil {
		_ = exec.Close()
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	o.log.Info("model loaded",
		"name", desc.Name,
		"device", desc.Device,
		"requests", desc.PoolSize,
		"inputs", len(desc.Inputs),
		"outputs", len(desc.Outputs),
	)

	return &Session{desc: desc, sched: sched}, nil
}

// Descriptor returns the loaded model's tensor description.
func (s *Session) Descriptor() *Descriptor {
	if s == nil {
		return nil
	}
	return s.desc
}

// Inputs returns the model inputs with their shapes and kinds.
func (s *Session) Inputs() map[string]TensorSlot {
	if s == nil || s.desc == nil {
		return map[string]TensorSlot{}
	}
	return s.desc.InputsByName()
}

// Outputs returns the model outputs with their shapes.
func (s *Session) Outputs() map[string]TensorSlot {
	if s == nil || s.desc == nil {
		return map[string]TensorSlot{}
	}
	return s.desc.OutputsByName()
}

// NumRequests is the size of the request pool, zero without a model.
func (s *Session) NumRequests() int {
	if s == nil || s.sched == nil {
		return 0
	}
	return s.sched.NumSlots()
}

// SetCallback replaces the completion callback; nil drops later results.
func (s *Session) SetCallback(cb Callback) {
	if s == nil || s.sched == nil {
		return
	}
	s.sched.SetCallback(cb)
}

// AsyncInfer submits one job and returns its ticket. It blocks while the
// next slot in round-robin order is busy.
func (s *Session) AsyncInfer(in Input) (uint64, error) {
	if s == nil || s.sched == nil {
		return 0, ErrNoModel
	}
	return s.sched.AsyncInfer(in)
}

// BlockInfer runs one job synchronously.
func (s *Session) BlockInfer(ctx context.Context, in Input) (Result, error) {
	if s == nil || s.sched == nil {
		return Result{}, ErrNoModel
	}
	return s.sched.BlockInfer(ctx, in)
}

// WaitForAllCompletion blocks until every request slot is idle. It must not
// be called from a callback.
func (s *Session) WaitForAllCompletion() {
	if s == nil || s.sched == nil {
		return
	}
	s.sched.WaitForAllCompletion()
}

// Close waits for in-flight jobs and releases the model.
func (s *Session) Close() error {
	if s == nil || s.sched == nil {
		return nil
	}
	return s.sched.Close()
}
