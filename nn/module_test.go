// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"errors"
	"testing"

	"github.com/born-ml/saliency/backend/cpu"
	"github.com/born-ml/saliency/nn"
	"github.com/born-ml/saliency/tensor"
)

// TestLayerInterface verifies that concrete layers implement Layer.
func TestLayerInterface(_ *testing.T) {
	var _ nn.Layer = nn.NewConv2D("conv", nn.Conv2DConfig{Filters: 2, Kernel: [2]int{1, 1}})
	var _ nn.Layer = nn.NewSeparableConv2D("sep", nn.Conv2DConfig{Filters: 2, Kernel: [2]int{3, 3}})
	var _ nn.Layer = nn.NewBatchNorm("bn", 1e-3)
	var _ nn.Layer = nn.NewDense("dense", 4, nn.ReLU)
	var _ nn.Layer = nn.NewActivation("act", nn.Softmax)
	var _ nn.Layer = nn.NewMaxPool2D("pool", [2]int{2, 2}, 2, tensor.PaddingValid)
	var _ nn.Layer = nn.NewGlobalAvgPool2D("gap")
	var _ nn.Layer = nn.NewAdd("add")
	var _ nn.Layer = nn.NewDropout("drop", 0.5)
}

func buildTiny(t *testing.T) *nn.Model {
	t.Helper()
	m, err := nn.NewModel("tiny", nn.NewInput("input", tensor.Shape{4, 4, 1}))
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	layers := []nn.Layer{
		nn.NewConv2D("conv", nn.Conv2DConfig{Filters: 2, Kernel: [2]int{1, 1}}),
		nn.NewActivation("conv_act", nn.ReLU),
		nn.NewGlobalAvgPool2D("avg_pool"),
		nn.NewDense("predictions", 3, nn.Softmax),
	}
	for _, l := range layers {
		if err := m.Add(l); err != nil {
			t.Fatalf("Add(%s) failed: %v", l.Name(), err)
		}
	}
	m.InitWeights(7)
	return m
}

// TestModelAPI builds, runs and inspects a model through the public package.
func TestModelAPI(t *testing.T) {
	m := buildTiny(t)

	shape, err := m.OutputShape("conv_act")
	if err != nil {
		t.Fatalf("OutputShape failed: %v", err)
	}
	if !shape.Equal(tensor.Shape{4, 4, 2}) {
		t.Errorf("OutputShape(conv_act) = %v, want [4 4 2]", shape)
	}

	x, _ := tensor.Full(tensor.Shape{1, 4, 4, 1}, 1, tensor.CPU)
	acts, err := m.Run(cpu.New(), x)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	out := acts.Output()
	if !out.Shape().Equal(tensor.Shape{1, 3}) {
		t.Fatalf("output shape = %v, want [1 3]", out.Shape())
	}
	var sum float32
	for _, v := range out.Data() {
		sum += v
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("softmax output sums to %v, want 1", sum)
	}

	if _, err := acts.Get("missing"); err == nil {
		t.Error("Get(missing) should fail")
	} else {
		var notFound *nn.LayerNotFoundError
		if !errors.As(err, &notFound) {
			t.Errorf("expected LayerNotFoundError, got %T", err)
		}
	}

	bad, _ := tensor.Full(tensor.Shape{1, 5, 5, 1}, 1, tensor.CPU)
	var shapeErr *nn.InputShapeError
	if _, err := m.Forward(cpu.New(), bad); !errors.As(err, &shapeErr) {
		t.Errorf("expected InputShapeError, got %v", err)
	}
}

// TestParameters checks "<layer>.<param>" keys and weight sharing across
// gradient override copies.
func TestParameters(t *testing.T) {
	m := buildTiny(t)

	params := m.Parameters()
	for _, key := range []string{"conv.kernel", "predictions.kernel", "predictions.bias"} {
		if _, ok := params[key]; !ok {
			t.Errorf("missing parameter %q", key)
		}
	}

	guided, err := m.WithGradientOverride("relu", "GuidedBackProp")
	if err != nil {
		t.Fatalf("WithGradientOverride failed: %v", err)
	}
	var p *nn.Parameter = guided.Parameters()["conv.kernel"]
	if p.Tensor() != params["conv.kernel"].Tensor() {
		t.Error("override copy should share the conv kernel")
	}
}

// TestXceptionArchitecture round-trips the Xception description through YAML.
func TestXceptionArchitecture(t *testing.T) {
	cfg := nn.DefaultXceptionConfig()
	cfg.InputSize = 32
	cfg.WidthDivisor = 32
	cfg.MiddleBlocks = 1
	cfg.NumClasses = 5

	arch, err := nn.XceptionArchitecture(cfg)
	if err != nil {
		t.Fatalf("XceptionArchitecture failed: %v", err)
	}
	data, err := arch.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	parsed, err := nn.ParseArchitecture(data)
	if err != nil {
		t.Fatalf("ParseArchitecture failed: %v", err)
	}
	m, err := nn.Build(parsed)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	direct, err := nn.Xception(cfg)
	if err != nil {
		t.Fatalf("Xception failed: %v", err)
	}
	if m.NumLayers() != direct.NumLayers() || m.NumParams() != direct.NumParams() {
		t.Errorf("rebuilt model has %d layers / %d params, want %d / %d",
			m.NumLayers(), m.NumParams(), direct.NumLayers(), direct.NumParams())
	}
	if _, err := m.Layer("block14_sepconv2_act"); err != nil {
		t.Errorf("Layer(block14_sepconv2_act) failed: %v", err)
	}
}
