package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/saliency/internal/backend/cpu"
	"github.com/born-ml/saliency/internal/nn"
	"github.com/born-ml/saliency/internal/tensor"
)

func raw(t *testing.T, shape tensor.Shape, data ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromSlice(data, shape, tensor.CPU)
	require.NoError(t, err)
	return r
}

func sequential(t *testing.T, input tensor.Shape, layers ...nn.Layer) *nn.Model {
	t.Helper()
	m, err := nn.NewModel("test", nn.NewInput("input", input))
	require.NoError(t, err)
	for _, l := range layers {
		require.NoError(t, m.Add(l))
	}
	return m
}

func TestBatchNorm_Forward(t *testing.T) {
	bn := nn.NewBatchNorm("bn", 0.01)
	m := sequential(t, tensor.Shape{1, 1, 2}, bn)

	require.NoError(t, m.LoadStateDict(map[string]*tensor.RawTensor{
		"bn.gamma":           raw(t, tensor.Shape{2}, 2, 1),
		"bn.beta":            raw(t, tensor.Shape{2}, 1, 0),
		"bn.moving_mean":     raw(t, tensor.Shape{2}, 1, -1),
		"bn.moving_variance": raw(t, tensor.Shape{2}, 3.99, 0.99),
	}))

	out, err := m.Forward(cpu.New(), raw(t, tensor.Shape{1, 1, 1, 2}, 3, 1))
	require.NoError(t, err)
	// (3-1)/2*2+1 = 3, (1+1)/1*1+0 = 2
	assert.InDeltaSlice(t, []float32{3, 2}, out.Data(), 1e-5)
}

func TestBatchNorm_RejectsNegativeVariance(t *testing.T) {
	m := sequential(t, tensor.Shape{1, 1, 1}, nn.NewBatchNorm("bn", 0))
	params := m.Parameters()
	params["bn.moving_variance"].Tensor().Data()[0] = -1

	_, err := m.Forward(cpu.New(), raw(t, tensor.Shape{1, 1, 1, 1}, 1))
	require.Error(t, err)
}

func TestDense_FusedReLU(t *testing.T) {
	m := sequential(t, tensor.Shape{2}, nn.NewDense("fc", 2, nn.ReLU))
	require.NoError(t, m.LoadStateDict(map[string]*tensor.RawTensor{
		"fc.kernel": raw(t, tensor.Shape{2, 2}, 1, -1, 1, -1),
		"fc.bias":   raw(t, tensor.Shape{2}, 0.5, 0.5),
	}))

	out, err := m.Forward(cpu.New(), raw(t, tensor.Shape{1, 2}, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, []float32{3.5, 0}, out.Data())
}

func TestSeparableConv2D_MatchesDepthwiseThenPointwise(t *testing.T) {
	sep := nn.NewSeparableConv2D("sep", nn.Conv2DConfig{
		Filters: 3, Kernel: [2]int{3, 3}, Stride: 1, Padding: tensor.PaddingSame, UseBias: true,
	})
	m := sequential(t, tensor.Shape{4, 4, 2}, sep)
	m.InitWeights(7)
	params := m.Parameters()
	params["sep.bias"].Tensor().Data()[1] = 0.25

	x := tensor.MustNewRaw(tensor.Shape{1, 4, 4, 2}, tensor.CPU)
	for i := range x.Data() {
		x.Data()[i] = float32(i%5) - 2
	}

	b := cpu.New()
	got, err := m.Forward(b, x)
	require.NoError(t, err)

	h := b.DepthwiseConv2D(x, params["sep.depthwise_kernel"].Tensor(), tensor.Window{Size: [2]int{3, 3}, Stride: 1, Padding: tensor.PaddingSame})
	want := b.Conv2D(h, params["sep.pointwise_kernel"].Tensor(), tensor.Window{Size: [2]int{1, 1}, Stride: 1})
	want = b.ChannelAffine(want, nil, params["sep.bias"].Tensor())
	assert.Equal(t, want.Data(), got.Data())
	assert.Equal(t, tensor.Shape{1, 4, 4, 3}, got.Shape())
}

func TestModel_BuildErrors(t *testing.T) {
	m, err := nn.NewModel("m", nn.NewInput("input", tensor.Shape{8, 8, 1}))
	require.NoError(t, err)

	var buildErr *nn.BuildError
	require.ErrorAs(t, m.Add(nn.NewActivation("input", nn.ReLU)), &buildErr, "duplicate name")
	require.ErrorAs(t, m.Add(nn.NewAdd("sum"), "input", "missing"), &buildErr, "unknown producer")
	require.ErrorAs(t, m.Add(nn.NewDense("fc", 4, nn.Linear)), &buildErr, "dense on an image")

	require.NoError(t, m.Add(nn.NewMaxPool2D("pool", [2]int{2, 2}, 2, tensor.PaddingValid)))
	require.ErrorAs(t, m.Add(nn.NewAdd("sum"), "input", "pool"), &buildErr, "shape mismatch")

	_, err = nn.NewModel("m", nn.NewInput("input", tensor.Shape{}))
	require.Error(t, err)
}

func TestModel_CheckInput(t *testing.T) {
	m := sequential(t, tensor.Shape{4, 4, 3}, nn.NewActivation("relu", nn.ReLU))

	_, err := m.Forward(cpu.New(), tensor.MustNewRaw(tensor.Shape{1, 4, 4, 1}, tensor.CPU))
	var shapeErr *nn.InputShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, tensor.Shape{4, 4, 3}, shapeErr.Want)
	assert.Equal(t, tensor.Shape{1, 4, 4, 1}, shapeErr.Got)
	assert.Contains(t, shapeErr.Error(), "[N 4 4 3]")

	_, err = m.Forward(cpu.New(), tensor.MustNewRaw(tensor.Shape{4, 4, 3}, tensor.CPU))
	require.ErrorAs(t, err, &shapeErr)

	out, err := m.Forward(cpu.New(), tensor.MustNewRaw(tensor.Shape{2, 4, 4, 3}, tensor.CPU))
	require.NoError(t, err, "any batch size is accepted")
	assert.Equal(t, tensor.Shape{2, 4, 4, 3}, out.Shape())
}

func TestModel_LayerLookup(t *testing.T) {
	m := sequential(t, tensor.Shape{2},
		nn.NewDense("fc", 3, nn.ReLU),
		nn.NewDropout("drop", 0.5),
		nn.NewActivation("softmax", nn.Softmax),
	)
	assert.Equal(t, 4, m.NumLayers())

	l, err := m.Layer("drop")
	require.NoError(t, err)
	assert.Equal(t, "dropout", l.Type())

	l, err = m.LayerAt(-1)
	require.NoError(t, err)
	assert.Equal(t, "softmax", l.Name())

	l, err = m.LayerAt(-4)
	require.NoError(t, err)
	assert.Equal(t, "input", l.Name())

	var notFound *nn.LayerNotFoundError
	_, err = m.Layer("block14_sepconv2_act")
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "block14_sepconv2_act", notFound.Name)

	_, err = m.LayerAt(-5)
	require.ErrorAs(t, err, &notFound)
	_, err = m.LayerAt(4)
	require.ErrorAs(t, err, &notFound)

	shape, err := m.OutputShape("fc")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3}, shape)
}

func TestModel_Activations(t *testing.T) {
	m := sequential(t, tensor.Shape{2},
		nn.NewDense("fc", 2, nn.Linear),
		nn.NewActivation("relu", nn.ReLU),
	)
	require.NoError(t, m.LoadStateDict(map[string]*tensor.RawTensor{
		"fc.kernel": raw(t, tensor.Shape{2, 2}, 1, 0, 0, 1),
		"fc.bias":   raw(t, tensor.Shape{2}, 0, 0),
	}))

	acts, err := m.Run(cpu.New(), raw(t, tensor.Shape{1, 2}, -1, 2))
	require.NoError(t, err)

	fc, err := acts.Get("fc")
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, 2}, fc.Data())
	assert.Equal(t, []float32{0, 2}, acts.Output().Data())

	first, err := acts.At(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, 2}, first.Data())

	_, err = acts.At(3)
	require.Error(t, err)
	_, err = acts.Get("nope")
	require.Error(t, err)
}

func TestModel_LoadStateDictErrors(t *testing.T) {
	m := sequential(t, tensor.Shape{2}, nn.NewDense("fc", 1, nn.Linear))
	good := map[string]*tensor.RawTensor{
		"fc.kernel": raw(t, tensor.Shape{2, 1}, 1, 2),
		"fc.bias":   raw(t, tensor.Shape{1}, 3),
	}
	require.NoError(t, m.LoadStateDict(good))

	require.Error(t, m.LoadStateDict(map[string]*tensor.RawTensor{"fc.kernel": good["fc.kernel"]}), "missing bias")

	extra := map[string]*tensor.RawTensor{"fc.kernel": good["fc.kernel"], "fc.bias": good["fc.bias"], "fc.gamma": good["fc.bias"]}
	require.Error(t, m.LoadStateDict(extra))

	wrong := map[string]*tensor.RawTensor{"fc.kernel": raw(t, tensor.Shape{1, 2}, 1, 2), "fc.bias": good["fc.bias"]}
	require.Error(t, m.LoadStateDict(wrong))
}

func TestParseActivation(t *testing.T) {
	fn, err := nn.ParseActivation("")
	require.NoError(t, err)
	assert.Equal(t, nn.Linear, fn)

	_, err = nn.ParseActivation("gelu")
	require.ErrorIs(t, err, nn.ErrUnsupportedActivation)
}
