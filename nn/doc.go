// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the layer graph used to run image classifiers.
//
// # Overview
//
// This package contains:
//   - Layers: Conv2D, SeparableConv2D, BatchNorm, Dense
//   - Parameter-free layers: Activation, MaxPool2D, GlobalAvgPool2D, Add, Dropout
//   - Model: a named DAG of layers exposing every intermediate output
//   - Architecture: a YAML description that a Model is built from
//   - Xception: the Keras applications network with a classification head
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/saliency/backend/cpu"
//	    "github.com/born-ml/saliency/nn"
//	)
//
//	func main() {
//	    model, _ := nn.Xception(nn.DefaultXceptionConfig())
//	    model.InitWeights(1)
//
//	    acts, _ := model.Run(cpu.New(), input)
//	    features, _ := acts.Get("block14_sepconv2_act")
//	    pooled, _ := acts.At(-7)
//	}
//
// # Building Models
//
// Layers are added in topological order. Inputs name earlier layers; with no
// inputs a layer consumes the previous one:
//
//	model, _ := nn.NewModel("tiny", nn.NewInput("input", tensor.Shape{32, 32, 3}))
//	_ = model.Add(nn.NewConv2D("conv", nn.Conv2DConfig{Filters: 8, Kernel: [2]int{3, 3}, Stride: 1}))
//	_ = model.Add(nn.NewActivation("conv_act", nn.ReLU))
//
// # Gradient Overrides
//
// WithGradientOverride returns a copy of the model whose rectifiers use a
// named rule from an autodiff.Registry. The copy shares weights with the
// source model:
//
//	guided, err := model.WithGradientOverride("relu", "GuidedBackProp")
//
// # Weights
//
// StateDict and LoadStateDict use "<layer>.<param>" keys, for example
// "block1_conv1.kernel".
package nn
