// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/saliency/internal/tensor"
)

// Shape represents the dimensions of a tensor.
// Example: Shape{1, 224, 224, 3} is one 224×224 RGB image.
type Shape = tensor.Shape

// Device represents the device where tensor data resides.
type Device = tensor.Device

// CPU is the only device the saliency runtime computes on.
const CPU Device = tensor.CPU

// RawTensor is a shape over a row-major float32 buffer.
type RawTensor = tensor.RawTensor

// Backend is the compute contract implemented by backend/cpu and wrapped
// by autodiff.
type Backend = tensor.Backend

// Padding selects valid or same border handling.
type Padding = tensor.Padding

// Padding modes.
const (
	PaddingValid Padding = tensor.PaddingValid
	PaddingSame  Padding = tensor.PaddingSame
)

// Window describes a sliding convolution or pooling window.
type Window = tensor.Window

// Geometry is a Window resolved against an input size.
type Geometry = tensor.Geometry

// NewRaw creates a zero-filled tensor.
func NewRaw(shape Shape, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, device)
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice(data []float32, shape Shape, device Device) (*RawTensor, error) {
	return tensor.FromSlice(data, shape, device)
}

// Full creates a tensor with every element set to value.
func Full(shape Shape, value float32, device Device) (*RawTensor, error) {
	return tensor.Full(shape, value, device)
}

// ParsePadding parses "valid" or "same".
func ParsePadding(s string) (Padding, error) {
	return tensor.ParsePadding(s)
}
