// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go NHWC backend.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Direct NHWC convolution, depthwise convolution and max pooling with
//     Keras valid/same padding
//   - Input-gradient kernels for reverse-mode differentiation
//   - Matrix products through gonum
//   - Row-parallel kernels whose results do not depend on worker count
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/saliency/autodiff"
//	    "github.com/born-ml/saliency/backend/cpu"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    // Wrap with autodiff to take gradients
//	    ad := autodiff.New(backend)
//	}
package cpu
