package model

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/go-iesched/internal/engine"
	"github.com/example/go-iesched/internal/engine/enginetest"
	"github.com/example/go-iesched/internal/tensor"
)

func verifyEngine() *enginetest.Engine {
	return enginetest.New(
		[]engine.PortInfo{
			enginetest.ImagePort("data", 3, 2, 2),
			{Name: "ids", DType: tensor.Int64, Shape: []int64{1, 3}},
		},
		[]engine.PortInfo{enginetest.RawPort("prob", 1, 4)},
	)
}

func TestVerifyRunsSmokeInference(t *testing.T) {
	eng := verifyEngine()

	var out bytes.Buffer
	err := Verify(context.Background(), eng, VerifyOptions{
		TopologyPath: "tiny.json",
		WeightsPath:  "tiny.onnx",
		Device:       "CPU",
		Stdout:       &out,
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if !strings.Contains(out.String(), "PASS fake") {
		t.Fatalf("unexpected output: %q", out.String())
	}

	calls := eng.Calls()
	if len(calls) != 1 || calls[0].Slot != enginetest.BlockingSlot {
		t.Fatalf("expected one blocking smoke call, got %+v", calls)
	}

	data, err := calls[0].Inputs["data"].Float32s()
	if err != nil {
		t.Fatalf("data input: %v", err)
	}
	for i, v := range data {
		if v != 0 {
			t.Fatalf("data[%d] = %v, want zero", i, v)
		}
	}

	if _, err := calls[0].Inputs["ids"].Int64s(); err != nil {
		t.Fatalf("ids input: %v", err)
	}

	execs := eng.Executables()
	if len(execs) != 1 || !execs[0].Closed() {
		t.Fatal("expected the verification executable to be closed")
	}
}

func TestVerifyReportsInferenceFailure(t *testing.T) {
	eng := verifyEngine()
	eng.Handler = func(context.Context, enginetest.Call) (map[string]*tensor.Tensor, error) {
		return nil, errors.New("kernel crashed")
	}

	var stderr bytes.Buffer
	err := Verify(context.Background(), eng, VerifyOptions{
		TopologyPath: "tiny.json",
		WeightsPath:  "tiny.onnx",
		Stderr:       &stderr,
		Device:       "CPU",
	})
	if err == nil {
		t.Fatal("expected smoke inference error")
	}
	if !strings.Contains(stderr.String(), "FAIL fake") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestVerifyReportsMissingOutputs(t *testing.T) {
	eng := verifyEngine()
	eng.Handler = func(context.Context, enginetest.Call) (map[string]*tensor.Tensor, error) {
		return map[string]*tensor.Tensor{}, nil
	}

	err := Verify(context.Background(), eng, VerifyOptions{
		TopologyPath: "tiny.json",
		WeightsPath:  "tiny.onnx",
		Device:       "CPU",
	})
	if err == nil || !strings.Contains(err.Error(), `output "prob" missing`) {
		t.Fatalf("expected missing output error, got %v", err)
	}
}

func TestVerifyPropagatesLoadErrors(t *testing.T) {
	err := Verify(context.Background(), verifyEngine(), VerifyOptions{
		TopologyPath: "tiny.json",
		WeightsPath:  "tiny.onnx",
		Device:       "GPU",
	})
	if !errors.Is(err, ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
}
