// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the float32 NHWC tensor storage and the Backend
// contract of the saliency runtime.
//
// # Overview
//
// A RawTensor is a shape over a row-major float32 buffer. Image-like
// tensors are NHWC: [batch, height, width, channels]. Backends implement
// the forward kernels that Xception needs plus the input-gradient kernels
// used by Grad-CAM and guided backpropagation.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/saliency/backend/cpu"
//	    "github.com/born-ml/saliency/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    x, _ := tensor.Full(tensor.Shape{1, 4, 4, 3}, 0.5, tensor.CPU)
//	    y := backend.ReLU(x)
//	    s := backend.SumAll(y).Item() // 24
//	}
//
// # Windows
//
// Convolution and pooling take a Window with Keras padding semantics:
//
//	win := tensor.Window{Size: [2]int{3, 3}, Stride: 2, Padding: tensor.PaddingSame}
//	g, err := win.Resolve(224, 224) // g.OutH == 112
package tensor
