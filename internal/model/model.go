// Package model loads a topology/weights pair through an engine and
// describes the named tensors of the resulting network.
package model

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/example/go-iesched/internal/engine"
	"github.com/example/go-iesched/internal/tensor"
)

// ErrModelLoad is matched by every failure of Load.
var ErrModelLoad = errors.New("model load failed")

const (
	TopologyExt = ".json"
	WeightsExt  = ".onnx"
)

// Kind is the role of a network input.
type Kind string

const (
	KindImage Kind = "image"
	KindRaw   Kind = "raw"
)

// ParseKind accepts "image" and "raw" in any case.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindImage:
		return KindImage, nil
	case KindRaw:
		return KindRaw, nil
	default:
		return "", fmt.Errorf("unknown input kind %q", raw)
	}
}

// TensorSlot is one named input or output of a loaded network. Kind is empty
// for outputs.
type TensorSlot struct {
	Name  string       `json:"name"`
	Shape []int64      `json:"shape"`
	DType tensor.DType `json:"dtype"`
	Kind  Kind         `json:"kind,omitempty"`
}

// Descriptor is derived once at load time and never changes afterwards.
type Descriptor struct {
	Name     string       `json:"name"`
	Device   string       `json:"device"`
	PoolSize int          `json:"num_requests"`
	Inputs   []TensorSlot `json:"inputs"`
	Outputs  []TensorSlot `json:"outputs"`
}

// InputsByName returns the inputs keyed by name.
func (d *Descriptor) InputsByName() map[string]TensorSlot {
	return byName(d.Inputs)
}

// OutputsByName returns the outputs keyed by name.
func (d *Descriptor) OutputsByName() map[string]TensorSlot {
	return byName(d.Outputs)
}

// Input looks up a declared input.
func (d *Descriptor) Input(name string) (TensorSlot, bool) {
	for _, s := range d.Inputs {
		if s.Name == name {
			return cloneSlot(s), true
		}
	}
	return TensorSlot{}, false
}

// SingleOutput reports whether results are delivered as one tensor rather
// than a named mapping.
func (d *Descriptor) SingleOutput() bool {
	return len(d.Outputs) == 1
}

func byName(slots []TensorSlot) map[string]TensorSlot {
	m := make(map[string]TensorSlot, len(slots))
	for _, s := range slots {
		m[s.Name] = cloneSlot(s)
	}
	return m
}

func cloneSlot(s TensorSlot) TensorSlot {
	s.Shape = append([]int64(nil), s.Shape...)
	return s
}

// ResolvePair derives the topology and weights paths from a model path by
// replacing its extension, so "net.onnx", "net.json" and "net" all name the
// same pair.
func ResolvePair(path string) (topology, weights string, err error) {
	if strings.TrimSpace(path) == "" {
		return "", "", fmt.Errorf("%w: model path is empty", ErrModelLoad)
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))

	return base + TopologyExt, base + WeightsExt, nil
}

// Load reads the network, compiles it for device with poolSize request
// slots and describes its tensors.
func Load(eng engine.Engine, topologyPath, weightsPath, device string, poolSize int) (*Descriptor, engine.Executable, error) {
	if eng == nil {
		return nil, nil, fmt.Errorf("%w: no engine", ErrModelLoad)
	}
	if poolSize < 1 {
		return nil, nil, fmt.Errorf("%w: request pool size must be >= 1, got %d", ErrModelLoad, poolSize)
	}
	if topologyPath == "" || weightsPath == "" {
		return nil, nil, fmt.Errorf("%w: topology and weights paths are required", ErrModelLoad)
	}

	net, err := eng.ReadNetwork(topologyPath, weightsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read network %s: %w", ErrModelLoad, topologyPath, err)
	}

	desc, err := describe(net)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrModelLoad, topologyPath, err)
	}

	exec, err := eng.LoadNetwork(net, device, poolSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load %q on %s: %w", ErrModelLoad, desc.Name, device, err)
	}

	if n := len(exec.Requests()); n != poolSize {
		closeErr := exec.Close()
		return nil, nil, errors.Join(
			fmt.Errorf("%w: engine allocated %d requests, want %d", ErrModelLoad, n, poolSize),
			closeErr,
		)
	}

	desc.Device = device
	desc.PoolSize = poolSize

	slog.Debug("model described",
		"name", desc.Name,
		"inputs", slotNames(desc.Inputs),
		"outputs", slotNames(desc.Outputs),
	)

	return desc, exec, nil
}

func describe(net engine.Network) (*Descriptor, error) {
	ins, outs := net.Inputs(), net.Outputs()
	if len(ins) == 0 {
		return nil, errors.New("network declares no inputs")
	}
	if len(outs) == 0 {
		return nil, errors.New("network declares no outputs")
	}

	desc := &Descriptor{
		Name:    net.Name(),
		Inputs:  make([]TensorSlot, 0, len(ins)),
		Outputs: make([]TensorSlot, 0, len(outs)),
	}

	for _, p := range ins {
		kind, err := inputKind(p)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", p.Name, err)
		}
		desc.Inputs = append(desc.Inputs, TensorSlot{
			Name:  p.Name,
			Shape: append([]int64(nil), p.Shape...),
			DType: p.DType,
			Kind:  kind,
		})
	}

	for _, p := range outs {
		desc.Outputs = append(desc.Outputs, TensorSlot{
			Name:  p.Name,
			Shape: append([]int64(nil), p.Shape...),
			DType: p.DType,
		})
	}

	return desc, nil
}

// inputKind uses the declared kind, defaulting rank 4 float inputs to images.
func inputKind(p engine.PortInfo) (Kind, error) {
	if p.Kind != "" {
		return ParseKind(p.Kind)
	}
	if len(p.Shape) == 4 && p.DType == tensor.Float32 {
		return KindImage, nil
	}
	return KindRaw, nil
}

func slotNames(slots []TensorSlot) string {
	names := make([]string, len(slots))
	for i, s := range slots {
		names[i] = s.Name
	}
	return strings.Join(names, ",")
}
