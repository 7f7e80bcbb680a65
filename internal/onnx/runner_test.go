package onnx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-iesched/internal/config"
	"github.com/example/go-iesched/internal/engine"
	"github.com/example/go-iesched/internal/tensor"
)

// identityModel is a one-input one-output graph computing y = x for a [1,3]
// float tensor. Tests using it skip when ORT or the file is unavailable.
var identityModel = filepath.Join("testdata", "identity_float32.onnx")

func ortLibraryOrSkip(t *testing.T) string {
	t.Helper()

	libPath := os.Getenv("IESCHED_ORT_LIB")
	if libPath == "" {
		libPath = os.Getenv("ORT_LIBRARY_PATH")
	}

	if libPath == "" {
		t.Skip("no ORT library available; set IESCHED_ORT_LIB")
	}

	if _, err := os.Stat(identityModel); err != nil {
		t.Skipf("identity model not found: %v", err)
	}

	return libPath
}

func identityNetwork(t *testing.T) (string, string) {
	t.Helper()

	tmp := t.TempDir()
	topoPath := filepath.Join(tmp, "identity.json")
	topology := `{
  "name": "identity",
  "inputs": [{"name":"input","dtype":"float","shape":[1,3]}],
  "outputs": [{"name":"output","dtype":"float","shape":[1,3]}]
}`
	if err := os.WriteFile(topoPath, []byte(topology), 0o644); err != nil {
		t.Fatalf("write topology: %v", err)
	}

	weights, err := filepath.Abs(identityModel)
	if err != nil {
		t.Fatalf("abs: %v", err)
	}

	return topoPath, weights
}

func TestRunnerRoundTrip(t *testing.T) {
	libPath := ortLibraryOrSkip(t)
	topoPath, weightsPath := identityNetwork(t)

	net, err := ReadNetwork(topoPath, weightsPath)
	if err != nil {
		t.Fatalf("ReadNetwork: %v", err)
	}

	runner, err := NewRunner(net, RunnerConfig{LibraryPath: libPath, APIVersion: 23})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer func() { _ = runner.Close() }()

	input, err := tensor.New([]float32{1.0, 2.0, 3.0}, []int64{1, 3})
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}

	outputs, err := runner.Run(context.Background(), map[string]*tensor.Tensor{"input": input})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out, ok := outputs["output"]
	if !ok {
		t.Fatal("missing 'output' key in results")
	}

	data, err := out.Float32s()
	if err != nil {
		t.Fatalf("Float32s: %v", err)
	}

	for i, want := range []float32{1.0, 2.0, 3.0} {
		if data[i] != want {
			t.Errorf("data[%d] = %f, want %f", i, data[i], want)
		}
	}
}

func TestRunnerCloseIsIdempotent(t *testing.T) {
	libPath := ortLibraryOrSkip(t)
	topoPath, weightsPath := identityNetwork(t)

	net, err := ReadNetwork(topoPath, weightsPath)
	if err != nil {
		t.Fatalf("ReadNetwork: %v", err)
	}

	runner, err := NewRunner(net, RunnerConfig{LibraryPath: libPath, APIVersion: 23})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	if err := runner.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := runner.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, err := runner.Run(context.Background(), nil); err == nil {
		t.Fatal("expected error running a closed runner")
	}
}

func TestEngineAsyncRequests(t *testing.T) {
	libPath := ortLibraryOrSkip(t)
	topoPath, weightsPath := identityNetwork(t)

	eng, err := NewEngine(config.EngineConfig{ORTLibraryPath: libPath, ORTAPIVersion: 23})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	net, err := eng.ReadNetwork(topoPath, weightsPath)
	if err != nil {
		t.Fatalf("ReadNetwork: %v", err)
	}

	exec, err := eng.LoadNetwork(net, "cpu", 2)
	if err != nil {
		t.Fatalf("LoadNetwork: %v", err)
	}
	defer func() { _ = exec.Close() }()

	if len(exec.Requests()) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(exec.Requests()))
	}

	input, _ := tensor.New([]float32{4, 5, 6}, []int64{1, 3})
	req := exec.Requests()[1]
	if err := req.StartAsync(map[string]*tensor.Tensor{"input": input}); err != nil {
		t.Fatalf("StartAsync: %v", err)
	}

	if status := req.Wait(engine.Infinite); status != engine.StatusOK {
		t.Fatalf("expected ok status, got %s (%v)", status, req.Err())
	}

	data, err := req.Outputs()["output"].Float32s()
	if err != nil {
		t.Fatalf("Float32s: %v", err)
	}
	if data[2] != 6 {
		t.Fatalf("unexpected output %v", data)
	}
}

func TestLoadNetworkRejectsUnsupportedDevice(t *testing.T) {
	topology := `{"inputs":[{"name":"x","dtype":"float","shape":[1]}],"outputs":[{"name":"y","dtype":"float","shape":[1]}]}`
	topoPath, weightsPath := writeModelPair(t, t.TempDir(), topology)

	eng := &Engine{}
	net, err := eng.ReadNetwork(topoPath, weightsPath)
	if err != nil {
		t.Fatalf("ReadNetwork: %v", err)
	}

	if _, err := eng.LoadNetwork(net, "GPU", 4); err == nil {
		t.Fatal("expected error for GPU device")
	}

	if _, err := eng.LoadNetwork(net, "CPU", 0); err == nil {
		t.Fatal("expected error for empty request pool")
	}
}
