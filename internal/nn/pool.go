package nn

import (
	"fmt"

	"github.com/born-ml/saliency/internal/tensor"
)

// MaxPool2D is a 2D max pooling layer.
//
// Example:
//
//	pool := nn.NewMaxPool2D("block2_pool", [2]int{3, 3}, 2, tensor.PaddingSame)
type MaxPool2D struct {
	name string
	win  tensor.Window
}

// NewMaxPool2D creates a new max pooling layer.
func NewMaxPool2D(name string, size [2]int, stride int, padding tensor.Padding) *MaxPool2D {
	return &MaxPool2D{
		name: name,
		win:  tensor.Window{Size: size, Stride: stride, Padding: padding},
	}
}

// Name returns the layer name.
func (p *MaxPool2D) Name() string { return p.name }

// Type returns "max_pool2d".
func (p *MaxPool2D) Type() string { return "max_pool2d" }

// Window returns the pooling window.
func (p *MaxPool2D) Window() tensor.Window { return p.win }

// Build implements Layer.
func (p *MaxPool2D) Build(inputs []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(p, inputs, 1); err != nil {
		return nil, err
	}
	in := inputs[0]
	if len(in) != 3 {
		return nil, &BuildError{Layer: p.name, Reason: fmt.Sprintf("expects [H W C] input, got %v", in)}
	}
	g, err := p.win.Resolve(in[0], in[1])
	if err != nil {
		return nil, &BuildError{Layer: p.name, Reason: err.Error()}
	}
	return tensor.Shape{g.OutH, g.OutW, in[2]}, nil
}

// Forward implements Layer.
func (p *MaxPool2D) Forward(b tensor.Backend, inputs []*tensor.RawTensor) (*tensor.RawTensor, error) {
	return b.MaxPool2D(inputs[0], p.win), nil
}

// Parameters returns nil.
func (p *MaxPool2D) Parameters() []*Parameter {
	return nil
}

// GlobalAvgPool2D averages over the spatial axes: [N,H,W,C] -> [N,C].
type GlobalAvgPool2D struct {
	name string
}

// NewGlobalAvgPool2D creates a new global average pooling layer.
func NewGlobalAvgPool2D(name string) *GlobalAvgPool2D {
	return &GlobalAvgPool2D{name: name}
}

// Name returns the layer name.
func (p *GlobalAvgPool2D) Name() string { return p.name }

// Type returns "global_avg_pool2d".
func (p *GlobalAvgPool2D) Type() string { return "global_avg_pool2d" }

// Build implements Layer.
func (p *GlobalAvgPool2D) Build(inputs []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(p, inputs, 1); err != nil {
		return nil, err
	}
	in := inputs[0]
	if len(in) != 3 {
		return nil, &BuildError{Layer: p.name, Reason: fmt.Sprintf("expects [H W C] input, got %v", in)}
	}
	return tensor.Shape{in[2]}, nil
}

// Forward implements Layer.
func (p *GlobalAvgPool2D) Forward(b tensor.Backend, inputs []*tensor.RawTensor) (*tensor.RawTensor, error) {
	return b.GlobalAvgPool2D(inputs[0]), nil
}

// Parameters returns nil.
func (p *GlobalAvgPool2D) Parameters() []*Parameter {
	return nil
}
