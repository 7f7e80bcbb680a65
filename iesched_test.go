package iesched_test

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iesched "github.com/example/go-iesched"
	"github.com/example/go-iesched/internal/engine"
	"github.com/example/go-iesched/internal/engine/enginetest"
)

func classifier() *enginetest.Engine {
	return enginetest.New(
		[]engine.PortInfo{enginetest.ImagePort("data", 3, 4, 4)},
		[]engine.PortInfo{enginetest.RawPort("prob", 1, 3)},
	)
}

func gray(w, h int, v uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestOpenDefaults(t *testing.T) {
	eng := classifier()

	s, err := iesched.Open(eng, "models/classifier.xml")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, iesched.DefaultNumRequests, s.NumRequests())
	assert.Equal(t, "CPU", s.Descriptor().Device)

	inputs := s.Inputs()
	require.Contains(t, inputs, "data")
	assert.Equal(t, iesched.KindImage, inputs["data"].Kind)
	assert.Equal(t, []int64{1, 3, 4, 4}, inputs["data"].Shape)

	outputs := s.Outputs()
	require.Contains(t, outputs, "prob")
	assert.Equal(t, []int64{1, 3}, outputs["prob"].Shape)
}

func TestSessionInference(t *testing.T) {
	eng := classifier()

	s, err := iesched.Load(eng, "m.json", "m.onnx", iesched.WithNumRequests(2), iesched.WithPreprocess("rgb", "nearest"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var mu sync.Mutex
	results := make(map[uint64][]float32)
	done := make(chan struct{}, 4)
	s.SetCallback(func(ticket uint64, res iesched.Result, err error) {
		if err == nil {
			data, _ := res.Flat()
			mu.Lock()
			results[ticket] = data
			mu.Unlock()
		}
		done <- struct{}{}
	})

	var tickets []uint64
	for _, v := range []uint8{1, 2, 3, 4} {
		ticket, err := s.AsyncInfer(iesched.SingleImage(gray(8, 8, v)))
		require.NoError(t, err)
		tickets = append(tickets, ticket)
	}
	assert.Equal(t, []uint64{0, 1, 2, 3}, tickets)

	s.WaitForAllCompletion()
	require.Len(t, done, 4)

	blocked, err := s.BlockInfer(context.Background(), iesched.SingleImage(gray(8, 8, 2)))
	require.NoError(t, err)
	data, err := blocked.Flat()
	require.NoError(t, err)

	// 4x4x3 values of 2
	assert.Equal(t, []float32{96, 96, 96}, data)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, data, results[1])
}

func TestSessionNamedInputs(t *testing.T) {
	eng := enginetest.New(
		[]engine.PortInfo{
			enginetest.ImagePort("data", 1, 2, 2),
			enginetest.RawPort("scale", 1, 1),
		},
		[]engine.PortInfo{enginetest.RawPort("a", 1), enginetest.RawPort("b", 1)},
	)

	s, err := iesched.Load(eng, "m.json", "m.onnx", iesched.WithNumRequests(1))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	scale, err := iesched.NewTensor([]float32{10}, []int64{1, 1})
	require.NoError(t, err)

	res, err := s.BlockInfer(context.Background(), iesched.NamedInputs(
		iesched.ImageEntry("data", gray(2, 2, 0)),
		iesched.RawEntry("scale", scale),
	))
	require.NoError(t, err)
	require.True(t, res.IsNamed())
	assert.Len(t, res.Named, 2)
}

func TestLoadErrors(t *testing.T) {
	_, err := iesched.Load(classifier(), "m.json", "m.onnx", iesched.WithNumRequests(0))
	assert.ErrorIs(t, err, iesched.ErrModelLoad)

	_, err = iesched.Load(classifier(), "m.json", "m.onnx", iesched.WithDevice("MYRIAD"))
	assert.ErrorIs(t, err, iesched.ErrModelLoad)

	_, err = iesched.Open(classifier(), "")
	assert.ErrorIs(t, err, iesched.ErrModelLoad)

	_, err = iesched.Load(classifier(), "m.json", "m.onnx", iesched.WithPreprocess("hsv", ""))
	assert.Error(t, err)
}

func TestInvalidInputAndClosedSession(t *testing.T) {
	eng := classifier()
	s, err := iesched.Load(eng, "m.json", "m.onnx")
	require.NoError(t, err)

	_, err = s.AsyncInfer(iesched.Input{})
	assert.ErrorIs(t, err, iesched.ErrInvalidInput)
	assert.Empty(t, eng.Calls())

	require.NoError(t, s.Close())
	_, err = s.AsyncInfer(iesched.SingleImage(gray(4, 4, 1)))
	assert.ErrorIs(t, err, iesched.ErrClosed)
}

func TestNilSession(t *testing.T) {
	var s *iesched.Session

	_, err := s.AsyncInfer(iesched.SingleImage(gray(1, 1, 0)))
	assert.ErrorIs(t, err, iesched.ErrNoModel)

	_, err = s.BlockInfer(context.Background(), iesched.SingleImage(gray(1, 1, 0)))
	assert.ErrorIs(t, err, iesched.ErrNoModel)

	assert.Empty(t, s.Inputs())
	assert.Zero(t, s.NumRequests())
	s.WaitForAllCompletion()
	assert.NoError(t, s.Close())
}
