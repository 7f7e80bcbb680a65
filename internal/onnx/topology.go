package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-iesched/internal/engine"
	"github.com/example/go-iesched/internal/tensor"
	jsoniter "github.com/json-iterator/go"
)

// NodeInfo is one input or output entry of a topology manifest.
type NodeInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []any  `json:"shape"`
	Kind  string `json:"kind,omitempty"`
}

// Topology is the structure description paired with a weights file.
type Topology struct {
	Name    string     `json:"name"`
	Inputs  []NodeInfo `json:"inputs"`
	Outputs []NodeInfo `json:"outputs"`
}

// Network is a topology whose weights file has been located.
type Network struct {
	name        string
	weightsPath string
	inputs      []engine.PortInfo
	outputs     []engine.PortInfo
}

var _ engine.Network = (*Network)(nil)

func (n *Network) Name() string                { return n.name }
func (n *Network) WeightsPath() string         { return n.weightsPath }
func (n *Network) Inputs() []engine.PortInfo  { return clonePorts(n.inputs) }
func (n *Network) Outputs() []engine.PortInfo { return clonePorts(n.outputs) }

func ReadTopology(path string) (*Topology, error) {
	if path == "" {
		return nil, errors.New("topology path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}

	var topo Topology
	if err := jsoniter.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("decode topology: %w", err)
	}

	if len(topo.Inputs) == 0 {
		return nil, errors.New("topology declares no inputs")
	}

	if len(topo.Outputs) == 0 {
		return nil, errors.New("topology declares no outputs")
	}

	return &topo, nil
}

// ReadNetwork parses the topology manifest and checks that the weights file
// exists.
func ReadNetwork(topologyPath, weightsPath string) (*Network, error) {
	topo, err := ReadTopology(topologyPath)
	if err != nil {
		return nil, err
	}

	if weightsPath == "" {
		return nil, errors.New("weights path is required")
	}

	if _, err := os.Stat(weightsPath); err != nil {
		return nil, fmt.Errorf("weights file: %w", err)
	}

	inputs, err := toPorts(topo.Inputs)
	if err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}

	outputs, err := toPorts(topo.Outputs)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}

	name := topo.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(weightsPath), filepath.Ext(weightsPath))
	}

	slog.Debug(
		"read network topology",
		"name", name,
		"weights", weightsPath,
		"inputs", nodeNames(topo.Inputs),
		"outputs", nodeNames(topo.Outputs),
	)

	return &Network{
		name:        name,
		weightsPath: weightsPath,
		inputs:      inputs,
		outputs:     outputs,
	}, nil
}

func toPorts(nodes []NodeInfo) ([]engine.PortInfo, error) {
	seen := make(map[string]struct{}, len(nodes))
	ports := make([]engine.PortInfo, 0, len(nodes))

	for _, n := range nodes {
		if n.Name == "" {
			return nil, errors.New("node has empty name")
		}

		if _, dup := seen[n.Name]; dup {
			return nil, fmt.Errorf("duplicate node name %q", n.Name)
		}
		seen[n.Name] = struct{}{}

		dtype, err := tensor.ParseDType(n.DType)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.Name, err)
		}

		shape, err := tensor.ResolveShape(n.Shape)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.Name, err)
		}

		ports = append(ports, engine.PortInfo{
			Name:  n.Name,
			DType: dtype,
			Shape: shape,
			Kind:  strings.ToLower(strings.TrimSpace(n.Kind)),
		})
	}

	return ports, nil
}

func clonePorts(ports []engine.PortInfo) []engine.PortInfo {
	out := make([]engine.PortInfo, len(ports))
	for i, p := range ports {
		p.Shape = append([]int64(nil), p.Shape...)
		out[i] = p
	}

	return out
}

func nodeNames(nodes []NodeInfo) string {
	if len(nodes) == 0 {
		return ""
	}

	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}

	return strings.Join(names, ",")
}
