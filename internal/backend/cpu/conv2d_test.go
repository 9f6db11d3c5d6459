package cpu

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/saliency/internal/tensor"
)

// TestConv2D_BasicForward checks a 2x2 diagonal kernel over a 3x3 image.
func TestConv2D_BasicForward(t *testing.T) {
	b := New()

	// 1 2 3
	// 4 5 6
	// 7 8 9
	input := mustTensor(t, tensor.Shape{1, 3, 3, 1}, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	// 1 0
	// 0 1
	kernel := mustTensor(t, tensor.Shape{2, 2, 1, 1}, 1, 0, 0, 1)

	out := b.Conv2D(input, kernel, tensor.Window{Stride: 1, Padding: tensor.PaddingValid})
	require.Equal(t, tensor.Shape{1, 2, 2, 1}, out.Shape())
	assert.Equal(t, []float32{6, 8, 12, 14}, out.Data())
}

func TestConv2D_SamePaddingKeepsSize(t *testing.T) {
	b := New()
	input, err := tensor.Full(tensor.Shape{1, 4, 4, 2}, 1, tensor.CPU)
	require.NoError(t, err)
	kernel, err := tensor.Full(tensor.Shape{3, 3, 2, 1}, 1, tensor.CPU)
	require.NoError(t, err)

	out := b.Conv2D(input, kernel, tensor.Window{Stride: 1, Padding: tensor.PaddingSame})
	require.Equal(t, tensor.Shape{1, 4, 4, 1}, out.Shape())
	// Corners see a 2x2 patch of 2 channels, the centre a full 3x3.
	assert.Equal(t, float32(8), out.At(0, 0, 0, 0))
	assert.Equal(t, float32(18), out.At(0, 1, 1, 0))
	assert.Equal(t, float32(12), out.At(0, 0, 1, 0))
}

func TestConv2D_MultiChannel(t *testing.T) {
	b := New()
	// One pixel, two input channels, three output channels: a 1x1 conv is a matmul.
	input := mustTensor(t, tensor.Shape{1, 1, 1, 2}, 2, 3)
	kernel := mustTensor(t, tensor.Shape{1, 1, 2, 3},
		1, 0, -1,
		0, 1, 1,
	)
	out := b.Conv2D(input, kernel, tensor.Window{Stride: 1})
	assert.Equal(t, []float32{2, 3, 1}, out.Data())
}

func TestConv2D_InputBackwardMatchesNumerical(t *testing.T) {
	b := New()
	rng := rand.New(rand.NewPCG(3, 4))
	tests := []struct {
		name  string
		input tensor.Shape
		kern  tensor.Shape
		win   tensor.Window
	}{
		{"valid stride 1", tensor.Shape{1, 5, 5, 2}, tensor.Shape{3, 3, 2, 3}, tensor.Window{Stride: 1, Padding: tensor.PaddingValid}},
		{"valid stride 2", tensor.Shape{1, 7, 7, 1}, tensor.Shape{3, 3, 1, 2}, tensor.Window{Stride: 2, Padding: tensor.PaddingValid}},
		{"same stride 2", tensor.Shape{2, 6, 5, 2}, tensor.Shape{3, 3, 2, 2}, tensor.Window{Stride: 2, Padding: tensor.PaddingSame}},
		{"pointwise stride 2", tensor.Shape{1, 5, 5, 3}, tensor.Shape{1, 1, 3, 4}, tensor.Window{Stride: 2, Padding: tensor.PaddingSame}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := randomTensor(t, rng, tt.input)
			k := randomTensor(t, rng, tt.kern)
			checkInputGradient(t, x,
				func(in *tensor.RawTensor) *tensor.RawTensor { return b.Conv2D(in, k, tt.win) },
				func(in, g *tensor.RawTensor) *tensor.RawTensor { return b.Conv2DInputBackward(in, k, g, tt.win) },
			)
		})
	}
}

func TestConv2D_ChannelMismatchPanics(t *testing.T) {
	b := New()
	input, _ := tensor.NewRaw(tensor.Shape{1, 3, 3, 2}, tensor.CPU)
	kernel, _ := tensor.NewRaw(tensor.Shape{1, 1, 3, 1}, tensor.CPU)
	assert.Panics(t, func() { b.Conv2D(input, kernel, tensor.Window{Stride: 1}) })
}

func TestDepthwiseConv2D_Forward(t *testing.T) {
	b := New()
	// Two channels, channel 0 summed by a ones kernel, channel 1 zeroed.
	input := mustTensor(t, tensor.Shape{1, 2, 2, 2},
		1, 10,
		2, 20,
		3, 30,
		4, 40,
	)
	kernel := mustTensor(t, tensor.Shape{2, 2, 2},
		1, 0,
		1, 0,
		1, 0,
		1, 0,
	)
	out := b.DepthwiseConv2D(input, kernel, tensor.Window{Stride: 1})
	require.Equal(t, tensor.Shape{1, 1, 1, 2}, out.Shape())
	assert.Equal(t, []float32{10, 0}, out.Data())
}

func TestDepthwiseConv2D_InputBackwardMatchesNumerical(t *testing.T) {
	b := New()
	rng := rand.New(rand.NewPCG(5, 6))
	for _, win := range []tensor.Window{
		{Stride: 1, Padding: tensor.PaddingSame},
		{Stride: 2, Padding: tensor.PaddingSame},
		{Stride: 1, Padding: tensor.PaddingValid},
	} {
		x := randomTensor(t, rng, tensor.Shape{1, 6, 6, 3})
		k := randomTensor(t, rng, tensor.Shape{3, 3, 3})
		checkInputGradient(t, x,
			func(in *tensor.RawTensor) *tensor.RawTensor { return b.DepthwiseConv2D(in, k, win) },
			func(in, g *tensor.RawTensor) *tensor.RawTensor { return b.DepthwiseConv2DInputBackward(in, k, g, win) },
		)
	}
}
