// Package gradcam computes Grad-CAM heatmaps: class activation maps
// weighted by the spatially averaged gradient of a scalar target with
// respect to a convolutional feature map.
package gradcam

import (
	"fmt"

	"github.com/born-ml/saliency/internal/autodiff"
	"github.com/born-ml/saliency/internal/nn"
	"github.com/born-ml/saliency/internal/tensor"
)

// LossMode selects the scalar that is differentiated.
type LossMode string

// Supported loss modes.
const (
	// LossFeatures sums the output of the layer at Config.TargetIndex.
	LossFeatures LossMode = "features"
	// LossClass sums the model output masked by a one-hot class vector.
	LossClass LossMode = "class"
)

// ParseLossMode parses "features" or "class"; "" means features.
func ParseLossMode(s string) (LossMode, error) {
	switch LossMode(s) {
	case "", LossFeatures:
		return LossFeatures, nil
	case LossClass:
		return LossClass, nil
	default:
		return "", fmt.Errorf("unknown loss mode %q (expected features or class)", s)
	}
}

// Config holds the Grad-CAM parameters.
type Config struct {
	LossMode LossMode

	// TargetIndex is the layer whose summed output is the loss in
	// LossFeatures mode. Negative values count from the end.
	TargetIndex int

	// Class is the one-hot class in LossClass mode; negative selects the
	// predicted class.
	Class      int
	NumClasses int

	// Epsilon stabilises gradient normalization.
	Epsilon float32
}

// DefaultConfig returns the settings for the fine-tuned Xception
// classifier: the global average pooling layer seven steps from the end,
// 360 classes.
func DefaultConfig() Config {
	return Config{
		LossMode:    LossFeatures,
		TargetIndex: -7,
		Class:       -1,
		NumClasses:  360,
		Epsilon:     1e-5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := ParseLossMode(string(c.LossMode)); err != nil {
		return err
	}
	if c.LossMode == LossClass {
		if c.NumClasses <= 0 {
			return fmt.Errorf("invalid class count %d", c.NumClasses)
		}
		if c.Class >= c.NumClasses {
			return fmt.Errorf("class %d out of range for %d classes", c.Class, c.NumClasses)
		}
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive, got %v", c.Epsilon)
	}
	return nil
}

// Result is the outcome of one Grad-CAM pass.
type Result struct {
	Heatmap *tensor.RawTensor // [H, W] in [0, 1], input resolution
	RawCAM  *tensor.RawTensor // [H', W'] before resizing and rectification
	Weights *tensor.RawTensor // [C'] per-channel weights
	Class   int               // one-hot class in LossClass mode, else -1
}

// Engine computes Grad-CAM heatmaps on a compute backend. Each call records
// on a fresh gradient tape, so an Engine may be reused.
type Engine struct {
	backend tensor.Backend
	cfg     Config
}

// New creates an Engine that evaluates models on backend.
func New(backend tensor.Backend, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gradcam config: %w", err)
	}
	return &Engine{backend: backend, cfg: cfg}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// ComputeHeatmap runs one recorded forward and backward pass of model on
// input and returns the heatmap for the feature map of layer.
//
// Errors: *InputShapeError, *LayerNotFoundError, *DegenerateHeatmapError,
// ErrBatchSize, ErrNotSpatial.
func (e *Engine) ComputeHeatmap(model *nn.Model, input *tensor.RawTensor, layer string) (*Result, error) {
	if err := model.CheckInput(input); err != nil {
		return nil, err
	}
	if n := input.Shape()[0]; n != 1 {
		return nil, fmt.Errorf("%w: got batch of %d", ErrBatchSize, n)
	}
	shape, err := model.OutputShape(layer)
	if err != nil {
		return nil, err
	}
	if len(shape) != 3 {
		return nil, fmt.Errorf("layer %s with output %v: %w", layer, shape, ErrNotSpatial)
	}

	ad := autodiff.New(e.backend)
	ad.Tape().StartRecording()
	acts, err := model.Run(ad, input)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}

	loss, class, err := e.loss(ad, acts)
	if err != nil {
		return nil, err
	}
	features, err := acts.Get(layer)
	if err != nil {
		return nil, err
	}
	grads, err := autodiff.Gradients(ad, loss, features)
	if err != nil {
		return nil, fmt.Errorf("backward: %w", err)
	}

	weights := ChannelWeights(NormalizeGradients(grads[0], e.cfg.Epsilon))
	cam, err := RawCAM(features, weights)
	if err != nil {
		return nil, err
	}

	_, h, w, _ := input.Shape().NHWC()
	resized, err := Resize(cam, h, w)
	if err != nil {
		return nil, err
	}
	heatmap, err := Normalize(resized)
	if err != nil {
		return nil, err
	}
	return &Result{Heatmap: heatmap, RawCAM: cam, Weights: weights, Class: class}, nil
}

func (e *Engine) loss(b *autodiff.AutodiffBackend[tensor.Backend], acts *nn.Activations) (*tensor.RawTensor, int, error) {
	if e.cfg.LossMode != LossClass {
		target, err := acts.At(e.cfg.TargetIndex)
		if err != nil {
			return nil, -1, fmt.Errorf("loss target: %w", err)
		}
		return b.SumAll(target), -1, nil
	}

	out := acts.Output()
	if dims := out.Shape(); len(dims) != 2 || dims[1] != e.cfg.NumClasses {
		return nil, -1, fmt.Errorf("class loss: model output %v does not have %d classes", dims, e.cfg.NumClasses)
	}
	class := e.cfg.Class
	if class < 0 {
		class = ArgMax(out.Data())
	}
	mask, err := OneHot(class, e.cfg.NumClasses)
	if err != nil {
		return nil, -1, err
	}
	return b.SumAll(b.Mul(out, mask)), class, nil
}

// OneHot returns a [1, n] tensor with a single 1 at index class.
func OneHot(class, n int) (*tensor.RawTensor, error) {
	if class < 0 || class >= n {
		return nil, fmt.Errorf("class %d out of range for %d classes", class, n)
	}
	t, err := tensor.NewRaw(tensor.Shape{1, n}, tensor.CPU)
	if err != nil {
		return nil, err
	}
	t.Data()[class] = 1
	return t, nil
}

// ArgMax returns the index of the largest value; ties go to the lowest index.
func ArgMax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
