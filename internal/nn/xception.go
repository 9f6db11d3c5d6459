package nn

import "fmt"

// XceptionConfig parameterises the Xception builder.
type XceptionConfig struct {
	InputSize    int // square input side, at least 32
	Channels     int // 3 for rgb/bgr, 1 for grayscale
	NumClasses   int
	WidthDivisor int // divides every filter count; 1 is the published network
	MiddleBlocks int // 1 to 8; the published network has 8
	HeadUnits    [2]int
	DropoutRate  float64
}

// DefaultXceptionConfig is the fine-tuned 360-class Xception the saliency
// tool was written against.
func DefaultXceptionConfig() XceptionConfig {
	return XceptionConfig{
		InputSize:    224,
		Channels:     3,
		NumClasses:   360,
		WidthDivisor: 1,
		MiddleBlocks: 8,
		HeadUnits:    [2]int{1024, 512},
		DropoutRate:  0.5,
	}
}

// XceptionArchitecture describes Xception (Chollet, 2017) with the Keras
// applications layer names, followed by a classification head:
//
//	avg_pool, dense_1, dropout_1, dense_2, dropout_2, logits, predictions
//
// so that layer index -7 is the global average pooling layer and
// "block14_sepconv2_act" is the last convolutional activation. Middle
// blocks are numbered from 5; the exit flow is always blocks 13 and 14. The
// residual branches are named block{n}_residual, block{n}_residual_bn and
// block{n}_add.
func XceptionArchitecture(cfg XceptionConfig) (*Architecture, error) {
	if cfg.InputSize < 32 {
		return nil, fmt.Errorf("xception: input size %d too small (min 32)", cfg.InputSize)
	}
	if cfg.Channels <= 0 || cfg.NumClasses <= 0 {
		return nil, fmt.Errorf("xception: invalid channels %d or classes %d", cfg.Channels, cfg.NumClasses)
	}
	if cfg.MiddleBlocks < 1 || cfg.MiddleBlocks > 8 {
		return nil, fmt.Errorf("xception: middle blocks %d out of range [1, 8]", cfg.MiddleBlocks)
	}
	div := max(cfg.WidthDivisor, 1)
	width := func(n int) int { return max(n/div, 1) }

	x := &xceptionBuilder{}

	x.conv("block1_conv1", width(32), 3, 2, "valid")
	x.bn("block1_conv1_bn")
	x.act("block1_conv1_act")
	x.conv("block1_conv2", width(64), 3, 1, "valid")
	x.bn("block1_conv2_bn")
	x.act("block1_conv2_act")

	// Entry flow. Block 2 starts without a leading rectifier because
	// block1_conv2_act already applied one.
	for i, filters := range []int{128, 256, 728} {
		block := i + 2
		x.entryBlock(block, width(filters), block != 2)
	}

	for block := 5; block < 5+cfg.MiddleBlocks; block++ {
		x.middleBlock(block, width(728))
	}

	// The exit flow keeps its published names whatever the depth.
	x.exitBlock(13, width(728), width(1024))

	x.sep("block14_sepconv1", width(1536))
	x.bn("block14_sepconv1_bn")
	x.act("block14_sepconv1_act")
	x.sep("block14_sepconv2", width(2048))
	x.bn("block14_sepconv2_bn")
	x.act("block14_sepconv2_act")

	x.add(LayerSpec{Name: "avg_pool", Type: "global_avg_pool2d"})
	x.add(LayerSpec{Name: "dense_1", Type: "dense", Units: width(cfg.HeadUnits[0]), Activation: "relu"})
	x.add(LayerSpec{Name: "dropout_1", Type: "dropout", Rate: cfg.DropoutRate})
	x.add(LayerSpec{Name: "dense_2", Type: "dense", Units: width(cfg.HeadUnits[1]), Activation: "relu"})
	x.add(LayerSpec{Name: "dropout_2", Type: "dropout", Rate: cfg.DropoutRate})
	x.add(LayerSpec{Name: "logits", Type: "dense", Units: cfg.NumClasses})
	x.add(LayerSpec{Name: "predictions", Type: "activation", Activation: "softmax"})

	return &Architecture{
		Name:   "xception",
		Input:  []int{cfg.InputSize, cfg.InputSize, cfg.Channels},
		Layers: x.layers,
	}, nil
}

// Xception builds the model described by XceptionArchitecture.
func Xception(cfg XceptionConfig) (*Model, error) {
	arch, err := XceptionArchitecture(cfg)
	if err != nil {
		return nil, err
	}
	return Build(arch)
}

type xceptionBuilder struct {
	layers []LayerSpec
}

func (x *xceptionBuilder) add(spec LayerSpec) {
	x.layers = append(x.layers, spec)
}

func (x *xceptionBuilder) last() string {
	return x.layers[len(x.layers)-1].Name
}

func (x *xceptionBuilder) conv(name string, filters, kernel, stride int, padding string) {
	x.add(LayerSpec{Name: name, Type: "conv2d", Filters: filters, Kernel: []int{kernel, kernel}, Strides: stride, Padding: padding})
}

func (x *xceptionBuilder) sep(name string, filters int) {
	x.add(LayerSpec{Name: name, Type: "separable_conv2d", Filters: filters, Kernel: []int{3, 3}, Strides: 1, Padding: "same"})
}

func (x *xceptionBuilder) bn(name string) {
	x.add(LayerSpec{Name: name, Type: "batch_norm", Epsilon: DefaultBatchNormEpsilon})
}

func (x *xceptionBuilder) act(name string) {
	x.add(LayerSpec{Name: name, Type: "activation", Activation: "relu"})
}

// residual adds the strided 1x1 projection of from.
func (x *xceptionBuilder) residual(block int, from string, filters int) string {
	name := fmt.Sprintf("block%d_residual", block)
	x.add(LayerSpec{Name: name, Type: "conv2d", Inputs: []string{from}, Filters: filters, Kernel: []int{1, 1}, Strides: 2, Padding: "same"})
	x.bn(name + "_bn")
	return x.last()
}

func (x *xceptionBuilder) entryBlock(block, filters int, leadingAct bool) {
	p := fmt.Sprintf("block%d", block)
	from := x.last()
	shortcut := x.residual(block, from, filters)

	if leadingAct {
		x.add(LayerSpec{Name: p + "_sepconv1_act", Type: "activation", Activation: "relu", Inputs: []string{from}})
		x.sep(p+"_sepconv1", filters)
	} else {
		x.add(LayerSpec{Name: p + "_sepconv1", Type: "separable_conv2d", Inputs: []string{from}, Filters: filters, Kernel: []int{3, 3}, Strides: 1, Padding: "same"})
	}
	x.bn(p + "_sepconv1_bn")
	x.act(p + "_sepconv2_act")
	x.sep(p+"_sepconv2", filters)
	x.bn(p + "_sepconv2_bn")
	x.add(LayerSpec{Name: p + "_pool", Type: "max_pool2d", Kernel: []int{3, 3}, Strides: 2, Padding: "same"})
	x.add(LayerSpec{Name: p + "_add", Type: "add", Inputs: []string{x.last(), shortcut}})
}

func (x *xceptionBuilder) middleBlock(block, filters int) {
	p := fmt.Sprintf("block%d", block)
	shortcut := x.last()
	for i := 1; i <= 3; i++ {
		x.act(fmt.Sprintf("%s_sepconv%d_act", p, i))
		x.sep(fmt.Sprintf("%s_sepconv%d", p, i), filters)
		x.bn(fmt.Sprintf("%s_sepconv%d_bn", p, i))
	}
	x.add(LayerSpec{Name: p + "_add", Type: "add", Inputs: []string{x.last(), shortcut}})
}

func (x *xceptionBuilder) exitBlock(block, filters1, filters2 int) {
	p := fmt.Sprintf("block%d", block)
	from := x.last()
	shortcut := x.residual(block, from, filters2)

	x.add(LayerSpec{Name: p + "_sepconv1_act", Type: "activation", Activation: "relu", Inputs: []string{from}})
	x.sep(p+"_sepconv1", filters1)
	x.bn(p + "_sepconv1_bn")
	x.act(p + "_sepconv2_act")
	x.sep(p+"_sepconv2", filters2)
	x.bn(p + "_sepconv2_bn")
	x.add(LayerSpec{Name: p + "_pool", Type: "max_pool2d", Kernel: []int{3, 3}, Strides: 2, Padding: "same"})
	x.add(LayerSpec{Name: p + "_add", Type: "add", Inputs: []string{x.last(), shortcut}})
}
