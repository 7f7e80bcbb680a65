package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-iesched/internal/engine"
	"github.com/example/go-iesched/internal/engine/enginetest"
	"github.com/example/go-iesched/internal/tensor"
)

func TestResolvePair(t *testing.T) {
	tests := []struct {
		path     string
		topology string
		weights  string
	}{
		{"models/net.onnx", "models/net.json", "models/net.onnx"},
		{"models/net.json", "models/net.json", "models/net.onnx"},
		{"models/net", "models/net.json", "models/net.onnx"},
		{"models/v1.2/net.xml", "models/v1.2/net.json", "models/v1.2/net.onnx"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			topology, weights, err := ResolvePair(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.topology, topology)
			assert.Equal(t, tt.weights, weights)
		})
	}

	_, _, err := ResolvePair("  ")
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestLoadDescribesNetwork(t *testing.T) {
	eng := enginetest.New(
		[]engine.PortInfo{
			enginetest.ImagePort("data", 3, 8, 8),
			enginetest.RawPort("scale", 1, 2),
			{Name: "ids", DType: tensor.Int64, Shape: []int64{1, 4}},
		},
		[]engine.PortInfo{enginetest.RawPort("prob", 1, 10)},
	)
	eng.Network.In[0].Kind = ""

	desc, exec, err := Load(eng, "net.json", "net.onnx", "CPU", 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	assert.Equal(t, "fake", desc.Name)
	assert.Equal(t, "CPU", desc.Device)
	assert.Equal(t, 3, desc.PoolSize)
	assert.Len(t, exec.Requests(), 3)

	require.Len(t, desc.Inputs, 3)
	assert.Equal(t, KindImage, desc.Inputs[0].Kind, "rank 4 float defaults to image")
	assert.Equal(t, KindRaw, desc.Inputs[1].Kind)
	assert.Equal(t, KindRaw, desc.Inputs[2].Kind)
	assert.Equal(t, tensor.Int64, desc.Inputs[2].DType)

	require.Len(t, desc.Outputs, 1)
	assert.Empty(t, desc.Outputs[0].Kind)
	assert.True(t, desc.SingleOutput())

	ins := desc.InputsByName()
	assert.Equal(t, []int64{1, 3, 8, 8}, ins["data"].Shape)
	assert.Equal(t, []int64{1, 10}, desc.OutputsByName()["prob"].Shape)

	slot, ok := desc.Input("scale")
	require.True(t, ok)
	slot.Shape[0] = 42
	assert.Equal(t, int64(1), desc.Inputs[1].Shape[0], "lookups return copies")

	_, ok = desc.Input("missing")
	assert.False(t, ok)
}

func TestLoadHonoursDeclaredKind(t *testing.T) {
	in := enginetest.ImagePort("features", 1, 1, 16)
	in.Kind = "RAW"

	eng := enginetest.New([]engine.PortInfo{in}, []engine.PortInfo{
		enginetest.RawPort("a", 1),
		enginetest.RawPort("b", 1),
	})

	desc, _, err := Load(eng, "net.json", "net.onnx", "cpu", 1)
	require.NoError(t, err)
	assert.Equal(t, KindRaw, desc.Inputs[0].Kind)
	assert.False(t, desc.SingleOutput())
}

func TestLoadErrors(t *testing.T) {
	ports := func() ([]engine.PortInfo, []engine.PortInfo) {
		return []engine.PortInfo{enginetest.ImagePort("data", 3, 4, 4)},
			[]engine.PortInfo{enginetest.RawPort("out", 1)}
	}

	tests := []struct {
		name     string
		setup    func() *enginetest.Engine
		topology string
		device   string
		pool     int
	}{
		{
			name:  "pool size zero",
			setup: func() *enginetest.Engine { return enginetest.New(ports()) },
			pool:  0,
		},
		{
			name:     "missing paths",
			setup:    func() *enginetest.Engine { return enginetest.New(ports()) },
			topology: "-",
			pool:     1,
		},
		{
			name: "read failure",
			setup: func() *enginetest.Engine {
				e := enginetest.New(ports())
				e.ReadErr = errors.New("malformed topology")
				return e
			},
			pool: 1,
		},
		{
			name: "unsupported device",
			setup: func() *enginetest.Engine {
				return enginetest.New(ports())
			},
			device: "MYRIAD",
			pool:   1,
		},
		{
			name: "no inputs",
			setup: func() *enginetest.Engine {
				_, out := ports()
				return enginetest.New(nil, out)
			},
			pool: 1,
		},
		{
			name: "no outputs",
			setup: func() *enginetest.Engine {
				in, _ := ports()
				return enginetest.New(in, nil)
			},
			pool: 1,
		},
		{
			name: "unknown kind",
			setup: func() *enginetest.Engine {
				in, out := ports()
				in[0].Kind = "audio"
				return enginetest.New(in, out)
			},
			pool: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topology := "net.json"
			if tt.topology == "-" {
				topology = ""
			}
			device := tt.device
			if device == "" {
				device = "CPU"
			}

			eng := tt.setup()
			_, exec, err := Load(eng, topology, "net.onnx", device, tt.pool)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrModelLoad)
			assert.Nil(t, exec)
			assert.Empty(t, eng.Executables(), "no executable may be left loaded")
		})
	}

	_, _, err := Load(nil, "net.json", "net.onnx", "CPU", 1)
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Image ")
	require.NoError(t, err)
	assert.Equal(t, KindImage, k)

	_, err = ParseKind("")
	assert.Error(t, err)
}
