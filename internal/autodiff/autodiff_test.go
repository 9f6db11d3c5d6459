package autodiff_test

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/saliency/internal/autodiff"
	"github.com/born-ml/saliency/internal/backend/cpu"
	"github.com/born-ml/saliency/internal/tensor"
)

func raw(t *testing.T, shape tensor.Shape, data ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromSlice(data, shape, tensor.CPU)
	require.NoError(t, err)
	return r
}

func TestAutodiffBackend_Name(t *testing.T) {
	backend := autodiff.New(cpu.New())
	assert.Equal(t, "Autodiff(CPU)", backend.Name())
	assert.Equal(t, tensor.CPU, backend.Device())
	assert.Nil(t, backend.Registry())
}

func TestGradientTape_RecordsOnlyWhenRecording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := raw(t, tensor.Shape{2}, 1, 2)

	backend.Add(x, x)
	assert.Equal(t, 0, backend.Tape().NumOps())

	backend.Tape().StartRecording()
	backend.Add(x, x)
	backend.Mul(x, x)
	assert.Equal(t, 2, backend.Tape().NumOps())

	backend.Tape().Clear()
	assert.Equal(t, 0, backend.Tape().NumOps())
	assert.True(t, backend.Tape().IsRecording())
}

func TestGradientTape_BackwardFromIntermediate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := raw(t, tensor.Shape{2}, 2, 3)
	y := backend.Mul(x, x) // y = x²
	z := backend.Add(y, y) // recorded after y, must not contribute

	grads := backend.Tape().BackwardFrom(y, raw(t, tensor.Shape{2}, 1, 1), backend.Inner())
	require.Contains(t, grads, x)
	assert.Equal(t, []float32{4, 6}, grads[x].Data())
	assert.NotContains(t, grads, z)
	assert.True(t, backend.Tape().IsRecording())
}

func TestGradients_SharedInputAccumulates(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := raw(t, tensor.Shape{3}, 1, -2, 3)
	// L = sum(x + relu(x))
	loss := backend.SumAll(backend.Add(x, backend.ReLU(x)))

	grads, err := autodiff.Gradients(backend, loss, x)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 1, 2}, grads[0].Data())
}

func TestGradients_IntermediateLossIgnoresLaterOps(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := raw(t, tensor.Shape{1, 4}, 1, 2, 3, 4)
	loss := backend.SumAll(x)
	// Recorded after the loss and therefore irrelevant to it.
	backend.Softmax(backend.Mul(x, x))

	grads, err := autodiff.Gradients(backend, loss, x)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1, 1}, grads[0].Data())
}

func TestGradients_UnreachedTensorIsZero(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := raw(t, tensor.Shape{2}, 1, 2)
	unrelated := raw(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	loss := backend.SumAll(backend.Mul(x, x))

	grads, err := autodiff.Gradients(backend, loss, x, unrelated)
	require.NoError(t, err)
	require.Len(t, grads, 2)
	assert.Equal(t, []float32{2, 4}, grads[0].Data())
	assert.Equal(t, tensor.Shape{2, 2}, grads[1].Shape())
	assert.Equal(t, []float32{0, 0, 0, 0}, grads[1].Data())
}

func TestGradients_Errors(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := raw(t, tensor.Shape{2}, 1, 2)

	_, err := autodiff.Gradients(backend, x, x)
	require.ErrorIs(t, err, autodiff.ErrNoOperations)

	backend.Tape().StartRecording()
	y := backend.Mul(x, x)
	_, err = autodiff.Gradients(backend, y, x)
	require.ErrorIs(t, err, autodiff.ErrNotScalar)
}

// TestGradients_ConvNetMatchesNumerical checks a conv -> affine -> relu ->
// maxpool -> conv -> gap -> sum chain against finite differences.
func TestGradients_ConvNetMatchesNumerical(t *testing.T) {
	rng := rand.New(rand.NewPCG(21, 42))
	fill := func(shape tensor.Shape) *tensor.RawTensor {
		r := tensor.MustNewRaw(shape, tensor.CPU)
		for i := range r.Data() {
			r.Data()[i] = float32(rng.NormFloat64())
		}
		return r
	}

	x := fill(tensor.Shape{1, 6, 6, 2})
	k1 := fill(tensor.Shape{3, 3, 2, 3})
	scale := fill(tensor.Shape{3})
	shift := fill(tensor.Shape{3})
	dk := fill(tensor.Shape{3, 3, 3})
	same := tensor.Window{Stride: 1, Padding: tensor.PaddingSame}
	pool := tensor.Window{Size: [2]int{2, 2}, Stride: 2}

	forward := func(b tensor.Backend, in *tensor.RawTensor) *tensor.RawTensor {
		h := b.Conv2D(in, k1, same)
		h = b.ChannelAffine(h, scale, shift)
		h = b.ReLU(h)
		h = b.MaxPool2D(h, pool)
		h = b.DepthwiseConv2D(h, dk, same)
		return b.SumAll(b.GlobalAvgPool2D(h))
	}

	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()
	loss := forward(backend, x)
	grads, err := autodiff.Gradients(backend, loss, x)
	require.NoError(t, err)

	plain := cpu.New()
	const eps = 1e-3
	for i := range x.Data() {
		probe := x.Clone()
		probe.Data()[i] += eps
		up := forward(plain, probe).Item()
		probe.Data()[i] -= 2 * eps
		down := forward(plain, probe).Item()
		assert.InDelta(t, float64((up-down)/(2*eps)), float64(grads[0].Data()[i]), 2e-2, "element %d", i)
	}
}

type negateRule struct{}

func (negateRule) ReLUBackward(outputGrad, _ *tensor.RawTensor) *tensor.RawTensor {
	out := outputGrad.Clone()
	for i := range out.Data() {
		out.Data()[i] = -out.Data()[i]
	}
	return out
}

func TestReLUWithGradient(t *testing.T) {
	reg := autodiff.NewRegistry()
	require.NoError(t, reg.Register("Negate", negateRule{}))

	backend := autodiff.New(cpu.New(), autodiff.WithRegistry(reg))
	backend.Tape().StartRecording()

	x := raw(t, tensor.Shape{2}, -1, 1)
	y, err := backend.ReLUWithGradient(x, "Negate")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, y.Data())

	grads, err := autodiff.Gradients(backend, backend.SumAll(y), x)
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, -1}, grads[0].Data())

	_, err = backend.ReLUWithGradient(x, "Missing")
	var regErr *autodiff.GradientRegistrationError
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, "Missing", regErr.Name)

	y, err = backend.ReLUWithGradient(x, "")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, y.Data())
}

func TestReLUWithGradient_NoRegistry(t *testing.T) {
	backend := autodiff.New(cpu.New())
	_, err := backend.ReLUWithGradient(raw(t, tensor.Shape{1}, 1), "GuidedBackProp")
	var regErr *autodiff.GradientRegistrationError
	require.ErrorAs(t, err, &regErr)
}
