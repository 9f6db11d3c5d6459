package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/saliency/internal/backend/cpu"
	"github.com/born-ml/saliency/internal/nn"
	"github.com/born-ml/saliency/internal/tensor"
)

func tinyXception(t *testing.T) *nn.Model {
	t.Helper()
	m, err := nn.Xception(nn.XceptionConfig{
		InputSize:    32,
		Channels:     3,
		NumClasses:   5,
		WidthDivisor: 32,
		MiddleBlocks: 1,
		HeadUnits:    [2]int{256, 128},
		DropoutRate:  0.5,
	})
	require.NoError(t, err)
	m.InitWeights(42)
	return m
}

func TestXception_PublishedLayout(t *testing.T) {
	m, err := nn.Xception(nn.DefaultXceptionConfig())
	require.NoError(t, err)

	// 132 layers in the Keras base network plus the 7-layer head.
	assert.Equal(t, 139, m.NumLayers())
	// 20,861,480 base parameters plus the head.
	assert.Equal(t, 20861480+2048*1024+1024+1024*512+512+512*360+360, m.NumParams())

	l, err := m.LayerAt(-7)
	require.NoError(t, err)
	assert.Equal(t, "avg_pool", l.Name())

	shape, err := m.OutputShape("block14_sepconv2_act")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{7, 7, 2048}, shape)

	shape, err = m.OutputShape("block1_conv1")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{111, 111, 32}, shape)

	shape, err = m.OutputShape("block13_add")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{7, 7, 1024}, shape)

	shape, err = m.OutputShape("predictions")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{360}, shape)

	for _, name := range []string{"block2_sepconv1", "block3_sepconv1_act", "block12_add", "block13_residual_bn", "dense_2", "logits"} {
		_, err := m.Layer(name)
		assert.NoError(t, err, name)
	}
	_, err = m.Layer("block2_sepconv1_act")
	assert.Error(t, err, "block 2 has no leading rectifier")
}

func TestXception_ConfigValidation(t *testing.T) {
	cfg := nn.DefaultXceptionConfig()
	cfg.InputSize = 16
	_, err := nn.XceptionArchitecture(cfg)
	require.Error(t, err)

	cfg = nn.DefaultXceptionConfig()
	cfg.MiddleBlocks = 9
	_, err = nn.XceptionArchitecture(cfg)
	require.Error(t, err)
}

func TestXception_TinyForward(t *testing.T) {
	m := tinyXception(t)

	x := tensor.MustNewRaw(tensor.Shape{1, 32, 32, 3}, tensor.CPU)
	for i := range x.Data() {
		x.Data()[i] = float32(i%17)/8 - 1
	}

	acts, err := m.Run(cpu.New(), x)
	require.NoError(t, err)

	out := acts.Output()
	require.Equal(t, tensor.Shape{1, 5}, out.Shape())
	var sum float32
	for _, v := range out.Data() {
		assert.GreaterOrEqual(t, v, float32(0))
		sum += v
	}
	assert.InDelta(t, 1.0, float64(sum), 1e-5)

	feat, err := acts.Get("block14_sepconv2_act")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 1, 64}, feat.Shape())

	pooled, err := acts.At(-7)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 64}, pooled.Shape())
}

func TestXception_InitWeightsIsDeterministic(t *testing.T) {
	a, b := tinyXception(t), tinyXception(t)
	for name, p := range a.StateDict() {
		assert.Equal(t, p.Data(), b.StateDict()[name].Data(), name)
	}

	c := tinyXception(t)
	c.InitWeights(43)
	assert.NotEqual(t, a.StateDict()["block1_conv1.kernel"].Data(), c.StateDict()["block1_conv1.kernel"].Data())
}

func TestArchitecture_YAMLRoundTrip(t *testing.T) {
	cfg := nn.DefaultXceptionConfig()
	cfg.WidthDivisor = 16
	arch, err := nn.XceptionArchitecture(cfg)
	require.NoError(t, err)

	data, err := arch.Marshal()
	require.NoError(t, err)
	parsed, err := nn.ParseArchitecture(data)
	require.NoError(t, err)

	want, err := nn.Build(arch)
	require.NoError(t, err)
	got, err := nn.Build(parsed)
	require.NoError(t, err)

	assert.Equal(t, want.NumParams(), got.NumParams())
	assert.Equal(t, want.Summary(), got.Summary())
}

func TestParseArchitecture_Errors(t *testing.T) {
	_, err := nn.ParseArchitecture([]byte("name: x\ninput: [4, 4, 1]\nlayers:\n  - name: a\n    type: conv2d\n    colour: red\n"))
	require.Error(t, err, "unknown field")

	arch, err := nn.ParseArchitecture([]byte("name: x\ninput: [4, 4, 1]\nlayers:\n  - name: a\n    type: lstm\n"))
	require.NoError(t, err)
	_, err = nn.Build(arch)
	var buildErr *nn.BuildError
	require.ErrorAs(t, err, &buildErr)

	arch, err = nn.ParseArchitecture([]byte("name: x\ninput: [4, 4, 1]\nlayers:\n  - name: a\n    type: conv2d\n    filters: 2\n    kernel: [3, 3, 3]\n"))
	require.NoError(t, err)
	_, err = nn.Build(arch)
	require.ErrorAs(t, err, &buildErr)
}
