package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/saliency/internal/tensor"
)

// TestMaxPool2D_BasicForward tests 2x2/2 pooling over values 1..16.
func TestMaxPool2D_BasicForward(t *testing.T) {
	b := New()
	data := make([]float32, 16)
	for i := range data {
		data[i] = float32(i + 1)
	}
	input := mustTensor(t, tensor.Shape{1, 4, 4, 1}, data...)

	out := b.MaxPool2D(input, tensor.Window{Size: [2]int{2, 2}, Stride: 2})
	require.Equal(t, tensor.Shape{1, 2, 2, 1}, out.Shape())
	assert.Equal(t, []float32{6, 8, 14, 16}, out.Data())
}

func TestMaxPool2D_SamePaddingIgnoresBorder(t *testing.T) {
	b := New()
	// All negative: zero padding would win if padded cells were counted.
	input := mustTensor(t, tensor.Shape{1, 3, 3, 1}, -9, -8, -7, -6, -5, -4, -3, -2, -1)
	out := b.MaxPool2D(input, tensor.Window{Size: [2]int{3, 3}, Stride: 2, Padding: tensor.PaddingSame})
	require.Equal(t, tensor.Shape{1, 2, 2, 1}, out.Shape())
	assert.Equal(t, []float32{-5, -4, -2, -1}, out.Data())
}

func TestMaxPool2D_BackwardRoutesToArgmax(t *testing.T) {
	b := New()
	input := mustTensor(t, tensor.Shape{1, 2, 2, 2},
		1, 8,
		4, 5,
		3, 6,
		2, 7,
	)
	win := tensor.Window{Size: [2]int{2, 2}, Stride: 2}
	grad := mustTensor(t, tensor.Shape{1, 1, 1, 2}, 10, 20)

	dx := b.MaxPool2DBackward(input, grad, win)
	assert.Equal(t, []float32{
		0, 20,
		10, 0,
		0, 0,
		0, 0,
	}, dx.Data())
}

func TestMaxPool2D_OverlappingWindowsAccumulate(t *testing.T) {
	b := New()
	// Centre pixel is the maximum of all four 2x2 windows at stride 1.
	input := mustTensor(t, tensor.Shape{1, 3, 3, 1}, 0, 0, 0, 0, 9, 0, 0, 0, 0)
	win := tensor.Window{Size: [2]int{2, 2}, Stride: 1}
	grad := mustTensor(t, tensor.Shape{1, 2, 2, 1}, 1, 2, 3, 4)

	dx := b.MaxPool2DBackward(input, grad, win)
	assert.Equal(t, float32(10), dx.At(0, 1, 1, 0))
	assert.Equal(t, float32(10), sum(dx.Data()))
}

func TestGlobalAvgPool2D(t *testing.T) {
	b := New()
	input := mustTensor(t, tensor.Shape{1, 2, 2, 2},
		1, 10,
		2, 20,
		3, 30,
		6, 60,
	)
	out := b.GlobalAvgPool2D(input)
	require.Equal(t, tensor.Shape{1, 2}, out.Shape())
	assert.Equal(t, []float32{3, 30}, out.Data())
}

func sum(xs []float32) float32 {
	var s float32
	for _, x := range xs {
		s += x
	}
	return s
}
