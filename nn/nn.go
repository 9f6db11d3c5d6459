// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/saliency/internal/nn"
)

// Architecture is a YAML-serializable list of layer specs in topological
// order.
type Architecture = nn.Architecture

// LayerSpec describes one layer of an Architecture.
type LayerSpec = nn.LayerSpec

// XceptionConfig parameterises the Xception builder.
type XceptionConfig = nn.XceptionConfig

// LayerNotFoundError reports a layer name or index absent from a model.
type LayerNotFoundError = nn.LayerNotFoundError

// InputShapeError reports an input that does not match the model input.
type InputShapeError = nn.InputShapeError

// BuildError reports an invalid layer configuration or wiring.
type BuildError = nn.BuildError

// DefaultXceptionConfig returns the 224×224, 360-class configuration.
func DefaultXceptionConfig() XceptionConfig {
	return nn.DefaultXceptionConfig()
}

// Xception builds the Xception classifier.
//
// Example:
//
//	model, err := nn.Xception(nn.DefaultXceptionConfig())
//	model.InitWeights(1)
func Xception(cfg XceptionConfig) (*Model, error) {
	return nn.Xception(cfg)
}

// XceptionArchitecture returns the Xception layer list without building it.
func XceptionArchitecture(cfg XceptionConfig) (*Architecture, error) {
	return nn.XceptionArchitecture(cfg)
}

// Build creates a Model from an Architecture.
func Build(arch *Architecture) (*Model, error) {
	return nn.Build(arch)
}

// LoadArchitecture reads a YAML architecture file.
func LoadArchitecture(path string) (*Architecture, error) {
	return nn.LoadArchitecture(path)
}

// ParseArchitecture decodes a YAML architecture.
func ParseArchitecture(data []byte) (*Architecture, error) {
	return nn.ParseArchitecture(data)
}
