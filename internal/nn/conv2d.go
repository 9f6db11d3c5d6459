package nn

import (
	"fmt"

	"github.com/born-ml/saliency/internal/tensor"
)

// Conv2D is a 2D convolutional layer.
//
// Performs convolution: output = activation(Conv2D(input, kernel) + bias)
//
// Input shape:  [batch, height, width, in_channels]
// Kernel shape: [kernel_h, kernel_w, in_channels, filters]
// Bias shape:   [filters]
// Output shape: [batch, out_h, out_w, filters]
//
// Output size follows the Keras padding rules (see tensor.Window.Resolve).
//
// Example:
//
//	conv := nn.NewConv2D("block1_conv1", Conv2DConfig{Filters: 32, Kernel: [2]int{3, 3}, Stride: 2})
type Conv2D struct {
	name string
	cfg  Conv2DConfig

	kernel *Parameter // [kernel_h, kernel_w, in_channels, filters]
	bias   *Parameter // [filters] or nil

	gradient string
}

// Conv2DConfig holds the hyperparameters of Conv2D and SeparableConv2D.
type Conv2DConfig struct {
	Filters    int
	Kernel     [2]int
	Stride     int // 0 means 1
	Padding    tensor.Padding
	UseBias    bool
	Activation ActivationFunc
}

func (c Conv2DConfig) window() tensor.Window {
	stride := c.Stride
	if stride == 0 {
		stride = 1
	}
	return tensor.Window{Size: c.Kernel, Stride: stride, Padding: c.Padding}
}

func (c Conv2DConfig) validate() error {
	if c.Filters <= 0 {
		return fmt.Errorf("invalid filters %d", c.Filters)
	}
	if c.Kernel[0] <= 0 || c.Kernel[1] <= 0 {
		return fmt.Errorf("invalid kernel size %v", c.Kernel)
	}
	if c.Stride < 0 {
		return fmt.Errorf("invalid stride %d", c.Stride)
	}
	if _, err := ParseActivation(string(c.Activation)); err != nil {
		return err
	}
	return nil
}

// NewConv2D creates a new 2D convolutional layer. Parameters are allocated
// by Build.
func NewConv2D(name string, cfg Conv2DConfig) *Conv2D {
	if cfg.Activation == "" {
		cfg.Activation = Linear
	}
	return &Conv2D{name: name, cfg: cfg}
}

// Name returns the layer name.
func (c *Conv2D) Name() string { return c.name }

// Type returns "conv2d".
func (c *Conv2D) Type() string { return "conv2d" }

// Config returns the layer hyperparameters.
func (c *Conv2D) Config() Conv2DConfig { return c.cfg }

// Build implements Layer.
func (c *Conv2D) Build(inputs []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(c, inputs, 1); err != nil {
		return nil, err
	}
	if err := c.cfg.validate(); err != nil {
		return nil, &BuildError{Layer: c.name, Reason: err.Error()}
	}
	in := inputs[0]
	if len(in) != 3 {
		return nil, &BuildError{Layer: c.name, Reason: fmt.Sprintf("expects [H W C] input, got %v", in)}
	}
	g, err := c.cfg.window().Resolve(in[0], in[1])
	if err != nil {
		return nil, &BuildError{Layer: c.name, Reason: err.Error()}
	}

	kh, kw := c.cfg.Kernel[0], c.cfg.Kernel[1]
	fanIn, fanOut := convFans(kh, kw, in[2], c.cfg.Filters)
	c.kernel = NewParameter("kernel", tensor.Shape{kh, kw, in[2], c.cfg.Filters}, GlorotUniform(fanIn, fanOut))
	if c.cfg.UseBias {
		c.bias = NewParameter("bias", tensor.Shape{c.cfg.Filters}, Zeros)
	}
	return tensor.Shape{g.OutH, g.OutW, c.cfg.Filters}, nil
}

// Forward implements Layer.
func (c *Conv2D) Forward(b tensor.Backend, inputs []*tensor.RawTensor) (*tensor.RawTensor, error) {
	out := b.Conv2D(inputs[0], c.kernel.Tensor(), c.cfg.window())
	if c.bias != nil {
		out = b.ChannelAffine(out, nil, c.bias.Tensor())
	}
	return activate(b, out, c.cfg.Activation, c.gradient)
}

// Parameters returns [kernel] or [kernel, bias].
func (c *Conv2D) Parameters() []*Parameter {
	if c.bias != nil {
		return []*Parameter{c.kernel, c.bias}
	}
	return []*Parameter{c.kernel}
}

func (c *Conv2D) withReLUGradient(rule string) (Layer, bool) {
	if c.cfg.Activation != ReLU {
		return c, false
	}
	cp := *c
	cp.gradient = rule
	return &cp, true
}

// SeparableConv2D is a depthwise convolution followed by a 1x1 pointwise
// convolution, as in Keras (depth multiplier 1). Stride and padding apply to
// the depthwise step.
//
// Depthwise kernel shape: [kernel_h, kernel_w, in_channels]
// Pointwise kernel shape: [1, 1, in_channels, filters]
type SeparableConv2D struct {
	name string
	cfg  Conv2DConfig

	depthwise *Parameter
	pointwise *Parameter
	bias      *Parameter

	gradient string
}

// NewSeparableConv2D creates a new separable convolution layer.
func NewSeparableConv2D(name string, cfg Conv2DConfig) *SeparableConv2D {
	if cfg.Activation == "" {
		cfg.Activation = Linear
	}
	return &SeparableConv2D{name: name, cfg: cfg}
}

// Name returns the layer name.
func (s *SeparableConv2D) Name() string { return s.name }

// Type returns "separable_conv2d".
func (s *SeparableConv2D) Type() string { return "separable_conv2d" }

// Config returns the layer hyperparameters.
func (s *SeparableConv2D) Config() Conv2DConfig { return s.cfg }

// Build implements Layer.
func (s *SeparableConv2D) Build(inputs []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(s, inputs, 1); err != nil {
		return nil, err
	}
	if err := s.cfg.validate(); err != nil {
		return nil, &BuildError{Layer: s.name, Reason: err.Error()}
	}
	in := inputs[0]
	if len(in) != 3 {
		return nil, &BuildError{Layer: s.name, Reason: fmt.Sprintf("expects [H W C] input, got %v", in)}
	}
	g, err := s.cfg.window().Resolve(in[0], in[1])
	if err != nil {
		return nil, &BuildError{Layer: s.name, Reason: err.Error()}
	}

	kh, kw, cin := s.cfg.Kernel[0], s.cfg.Kernel[1], in[2]
	dwIn, dwOut := convFans(kh, kw, cin, 1)
	pwIn, pwOut := convFans(1, 1, cin, s.cfg.Filters)
	s.depthwise = NewParameter("depthwise_kernel", tensor.Shape{kh, kw, cin}, GlorotUniform(dwIn, dwOut))
	s.pointwise = NewParameter("pointwise_kernel", tensor.Shape{1, 1, cin, s.cfg.Filters}, GlorotUniform(pwIn, pwOut))
	if s.cfg.UseBias {
		s.bias = NewParameter("bias", tensor.Shape{s.cfg.Filters}, Zeros)
	}
	return tensor.Shape{g.OutH, g.OutW, s.cfg.Filters}, nil
}

// Forward implements Layer.
func (s *SeparableConv2D) Forward(b tensor.Backend, inputs []*tensor.RawTensor) (*tensor.RawTensor, error) {
	h := b.DepthwiseConv2D(inputs[0], s.depthwise.Tensor(), s.cfg.window())
	out := b.Conv2D(h, s.pointwise.Tensor(), tensor.Window{Size: [2]int{1, 1}, Stride: 1})
	if s.bias != nil {
		out = b.ChannelAffine(out, nil, s.bias.Tensor())
	}
	return activate(b, out, s.cfg.Activation, s.gradient)
}

// Parameters returns the depthwise and pointwise kernels and the optional bias.
func (s *SeparableConv2D) Parameters() []*Parameter {
	params := []*Parameter{s.depthwise, s.pointwise}
	if s.bias != nil {
		params = append(params, s.bias)
	}
	return params
}

func (s *SeparableConv2D) withReLUGradient(rule string) (Layer, bool) {
	if s.cfg.Activation != ReLU {
		return s, false
	}
	cp := *s
	cp.gradient = rule
	return &cp, true
}
