// Package tensor holds the dense value type exchanged with the inference
// engine: a flat data slice plus a validated shape.
package tensor

import (
	"fmt"
	"math"
	"strings"
)

type DType string

const (
	Float32 DType = "float32"
	Int64   DType = "int64"
)

type Tensor struct {
	dtype DType
	shape []int64
	data  any
}

// New copies data into a tensor of the given shape. The element count implied
// by shape must match len(data).
func New[T ~int64 | ~float32](data []T, shape []int64) (*Tensor, error) {
	dtype, err := dtypeOf(data)
	if err != nil {
		return nil, err
	}
	if err := validateShape(shape, len(data)); err != nil {
		return nil, err
	}

	t := &Tensor{
		dtype: dtype,
		shape: append([]int64(nil), shape...),
	}
	switch dtype {
	case Float32:
		converted := make([]float32, len(data))
		for i, v := range data {
			converted[i] = float32(v)
		}
		t.data = converted
	case Int64:
		converted := make([]int64, len(data))
		for i, v := range data {
			converted[i] = int64(v)
		}
		t.data = converted
	}
	return t, nil
}

// Zeros allocates a zero-filled tensor. dtype accepts ONNX spellings such as
// "float", "tensor(float)" or "int64".
func Zeros(dtype string, shape []int64) (*Tensor, error) {
	canonical, err := ParseDType(dtype)
	if err != nil {
		return nil, err
	}
	count, err := ElementCount(shape)
	if err != nil {
		return nil, err
	}

	switch canonical {
	case Float32:
		return New(make([]float32, count), shape)
	default:
		return New(make([]int64, count), shape)
	}
}

func (t *Tensor) DType() DType {
	return t.dtype
}

func (t *Tensor) Shape() []int64 {
	return append([]int64(nil), t.shape...)
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	switch v := t.data.(type) {
	case []float32:
		return len(v)
	case []int64:
		return len(v)
	default:
		return 0
	}
}

// Data returns a copy of the backing slice ([]float32 or []int64).
func (t *Tensor) Data() any {
	switch v := t.data.(type) {
	case []float32:
		return append([]float32(nil), v...)
	case []int64:
		return append([]int64(nil), v...)
	default:
		return nil
	}
}

// Float32s returns a copy of the data of a float32 tensor.
func (t *Tensor) Float32s() ([]float32, error) {
	if t == nil {
		return nil, fmt.Errorf("expected float32 tensor, got nil")
	}
	data, ok := t.data.([]float32)
	if !ok {
		return nil, fmt.Errorf("expected float32 tensor, got %s", t.dtype)
	}
	return append([]float32(nil), data...), nil
}

// Int64s returns a copy of the data of an int64 tensor.
func (t *Tensor) Int64s() ([]int64, error) {
	if t == nil {
		return nil, fmt.Errorf("expected int64 tensor, got nil")
	}
	data, ok := t.data.([]int64)
	if !ok {
		return nil, fmt.Errorf("expected int64 tensor, got %s", t.dtype)
	}
	return append([]int64(nil), data...), nil
}

// Reshape returns a tensor sharing no memory with t, viewed with a new shape
// of the same element count.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	if err := validateShape(shape, t.Len()); err != nil {
		return nil, fmt.Errorf("reshape %v -> %v: %w", t.shape, shape, err)
	}
	return &Tensor{
		dtype: t.dtype,
		shape: append([]int64(nil), shape...),
		data:  t.Data(),
	}, nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s%v)", t.dtype, t.shape)
}

func dtypeOf[T ~int64 | ~float32](_ []T) (DType, error) {
	var zero T
	switch any(zero).(type) {
	case int64:
		return Int64, nil
	case float32:
		return Float32, nil
	default:
		return "", fmt.Errorf("unsupported tensor data type %T", zero)
	}
}

// ParseDType maps an ONNX or numpy style type name to a supported DType.
func ParseDType(raw string) (DType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.TrimPrefix(normalized, "tensor(")
	normalized = strings.TrimSuffix(normalized, ")")
	switch normalized {
	case "", "float", "float32", "fp32":
		return Float32, nil
	case "int64", "long", "i64":
		return Int64, nil
	default:
		return "", fmt.Errorf("unsupported tensor dtype %q", raw)
	}
}

// ResolveShape converts a decoded JSON shape into concrete dimensions.
// Symbolic (string) dimensions resolve to 1.
func ResolveShape(shape []any) ([]int64, error) {
	out := make([]int64, len(shape))
	for i, dim := range shape {
		switch v := dim.(type) {
		case float64:
			if v < 1 || v != math.Trunc(v) {
				return nil, fmt.Errorf("shape[%d]=%v is not a positive integer", i, v)
			}
			out[i] = int64(v)
		case int:
			if v < 1 {
				return nil, fmt.Errorf("shape[%d]=%d is not positive", i, v)
			}
			out[i] = int64(v)
		case int64:
			if v < 1 {
				return nil, fmt.Errorf("shape[%d]=%d is not positive", i, v)
			}
			out[i] = v
		case string:
			if strings.TrimSpace(v) == "" {
				return nil, fmt.Errorf("shape[%d] has empty symbolic dimension", i)
			}
			out[i] = 1
		default:
			return nil, fmt.Errorf("shape[%d] has unsupported type %T", i, dim)
		}
	}
	return out, nil
}

func validateShape(shape []int64, dataLen int) error {
	count, err := ElementCount(shape)
	if err != nil {
		return err
	}
	if count != dataLen {
		return fmt.Errorf("shape %v expects %d elements, got %d", shape, count, dataLen)
	}
	return nil
}

// ElementCount returns the product of the dimensions. A rank-0 shape has one
// element.
func ElementCount(shape []int64) (int, error) {
	if len(shape) == 0 {
		return 1, nil
	}
	count := int64(1)
	for i, dim := range shape {
		if dim < 1 {
			return 0, fmt.Errorf("shape[%d]=%d is not positive", i, dim)
		}
		if count > math.MaxInt64/dim {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}
		count *= dim
	}
	if count > int64(math.MaxInt) {
		return 0, fmt.Errorf("shape %v exceeds platform int capacity", shape)
	}
	return int(count), nil
}
