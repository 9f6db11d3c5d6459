// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/saliency/internal/nn"
)

// Parameter is a named learned tensor of a layer.
//
// Example:
//
//	for name, p := range model.Parameters() {
//	    fmt.Println(name, p.Tensor().Shape())
//	}
//
// Methods:
//
//	Name() string
//	    Returns the parameter name (e.g., "kernel", "gamma").
//
//	Tensor() *tensor.RawTensor
//	    Returns the parameter tensor. Copies made by WithGradientOverride
//	    return the same pointer.
//
// Note: Parameter is implemented as a type alias because Model.Parameters
// returns the internal type, and a defined type would not match it.
type Parameter = nn.Parameter
