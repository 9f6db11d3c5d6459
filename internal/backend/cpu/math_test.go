package cpu

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/saliency/internal/tensor"
)

func TestMatMul(t *testing.T) {
	b := New()
	a := mustTensor(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	w := mustTensor(t, tensor.Shape{3, 2}, 7, 8, 9, 10, 11, 12)

	out := b.MatMul(a, w)
	require.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{58, 64, 139, 154}, out.Data())

	assert.Panics(t, func() { b.MatMul(a, a) })
}

func TestTranspose(t *testing.T) {
	b := New()
	a := mustTensor(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	out := b.Transpose(a)
	require.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.Data())
}

func TestReLU(t *testing.T) {
	b := New()
	x := mustTensor(t, tensor.Shape{4}, -1, 0, 2, -3)
	assert.Equal(t, []float32{0, 0, 2, 0}, b.ReLU(x).Data())
}

func TestSoftmax_RowsSumToOne(t *testing.T) {
	b := New()
	x := mustTensor(t, tensor.Shape{2, 3}, 1, 2, 3, 1000, 1000, 1000)
	out := b.Softmax(x)
	d := out.Data()
	assert.InDelta(t, 1.0, float64(d[0]+d[1]+d[2]), 1e-6)
	assert.Less(t, d[0], d[1])
	assert.InDelta(t, 1.0/3, float64(d[3]), 1e-6, "large logits must not overflow")
}

func TestSumAll(t *testing.T) {
	b := New()
	x := mustTensor(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	out := b.SumAll(x)
	assert.Equal(t, tensor.Shape{}, out.Shape())
	assert.Equal(t, float32(10), out.Item())
}

func TestMaxDim_LastAxis(t *testing.T) {
	b := New()
	x := mustTensor(t, tensor.Shape{1, 1, 2, 3},
		1, 5, 2,
		7, 3, 7,
	)
	out := b.MaxDim(x, -1)
	require.Equal(t, tensor.Shape{1, 1, 2}, out.Shape())
	assert.Equal(t, []float32{5, 7}, out.Data())

	grad := mustTensor(t, tensor.Shape{1, 1, 2}, 2, 3)
	dx := b.MaxDimBackward(x, grad, -1)
	assert.Equal(t, []float32{0, 2, 0, 1.5, 0, 1.5}, dx.Data(), "ties share the gradient")
}

func TestMaxDim_MiddleAxisMatchesNumerical(t *testing.T) {
	b := New()
	rng := rand.New(rand.NewPCG(9, 9))
	x := randomTensor(t, rng, tensor.Shape{2, 4, 3})
	checkInputGradient(t, x,
		func(in *tensor.RawTensor) *tensor.RawTensor { return b.MaxDim(in, 1) },
		func(in, g *tensor.RawTensor) *tensor.RawTensor { return b.MaxDimBackward(in, g, 1) },
	)
}

func TestMaxDim_InvalidAxisPanics(t *testing.T) {
	b := New()
	x := mustTensor(t, tensor.Shape{2}, 1, 2)
	assert.Panics(t, func() { b.MaxDim(x, 3) })
}
