// Package config loads the YAML configuration of a saliency run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/saliency/internal/gradcam"
	"github.com/born-ml/saliency/internal/imageio"
)

// Config is the complete run configuration.
//
// Example file:
//
//	model:
//	  weights: xception.safetensors
//	  classes: class_indices.json
//	image:
//	  path: bird.jpg
//	  color_mode: rgb
//	gradcam:
//	  layer: block14_sepconv2_act
//	output:
//	  dir: out
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Image   ImageConfig   `yaml:"image"`
	GradCAM GradCAMConfig `yaml:"gradcam"`
	Guided  GuidedConfig  `yaml:"guided"`
	Output  OutputConfig  `yaml:"output"`
}

// ModelConfig selects the classifier.
type ModelConfig struct {
	// Architecture is a YAML layer graph. Empty builds Xception from the
	// fields below.
	Architecture string `yaml:"architecture,omitempty"`
	// Weights is a SafeTensors file. Empty initializes randomly from Seed.
	Weights string `yaml:"weights,omitempty"`
	// Classes is a class_indices JSON file used for labels.
	Classes string `yaml:"classes,omitempty"`

	NumClasses   int    `yaml:"num_classes"`
	InputSize    int    `yaml:"input_size"`
	MiddleBlocks int    `yaml:"middle_blocks"`
	WidthDivisor int    `yaml:"width_divisor"`
	Seed         uint64 `yaml:"seed"`
	Workers      int    `yaml:"workers"` // 0 uses every CPU, 1 is sequential

	ONNX *ONNXConfig `yaml:"onnx,omitempty"`
}

// ONNXConfig enables class prediction through ONNX Runtime.
type ONNXConfig struct {
	Model   string `yaml:"model"`
	Library string `yaml:"library,omitempty"`
	Input   string `yaml:"input"`
	Output  string `yaml:"output"`
}

// ImageConfig controls image loading.
type ImageConfig struct {
	Path         string `yaml:"path"`
	ColorMode    string `yaml:"color_mode"`
	Resample     string `yaml:"resample"`
	FlipVertical bool   `yaml:"flip_vertical"`
}

// GradCAMConfig controls the heatmap.
type GradCAMConfig struct {
	Layer       string  `yaml:"layer"`
	TargetIndex int     `yaml:"target_index"`
	LossMode    string  `yaml:"loss_mode"`
	Class       int     `yaml:"class"`
	Epsilon     float32 `yaml:"epsilon"`
}

// GuidedConfig controls guided backpropagation.
type GuidedConfig struct {
	// Layer defaults to the Grad-CAM layer.
	Layer string `yaml:"layer,omitempty"`
}

// OutputConfig controls what is written.
type OutputConfig struct {
	Dir      string `yaml:"dir"`
	Format   string `yaml:"format"`
	Annotate bool   `yaml:"annotate"`
	Panel    bool   `yaml:"panel"`
	TopK     int    `yaml:"top_k"`
}

// Default returns the settings of the fine-tuned 360-class Xception tool.
func Default() *Config {
	g := gradcam.DefaultConfig()
	img := imageio.DefaultOptions()
	return &Config{
		Model: ModelConfig{
			NumClasses:   g.NumClasses,
			InputSize:    img.Width,
			MiddleBlocks: 8,
			WidthDivisor: 1,
			Seed:         1,
		},
		Image: ImageConfig{
			ColorMode:    string(img.ColorMode),
			Resample:     string(img.Resample),
			FlipVertical: img.FlipVertical,
		},
		GradCAM: GradCAMConfig{
			Layer:       "block14_sepconv2_act",
			TargetIndex: g.TargetIndex,
			LossMode:    string(g.LossMode),
			Class:       g.Class,
			Epsilon:     g.Epsilon,
		},
		Output: OutputConfig{
			Dir:    "out",
			Format: string(imageio.PNG),
			TopK:   5,
		},
	}
}

// Load reads path over Default. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	//nolint:gosec // G304: config path is chosen by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// GuidedLayer returns the guided backpropagation layer.
func (c *Config) GuidedLayer() string {
	if c.Guided.Layer != "" {
		return c.Guided.Layer
	}
	return c.GradCAM.Layer
}

// Validate reports every inconsistent setting at once. The image path is
// not required here; the CLI may supply it.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Model.Architecture == "" {
		if c.Model.InputSize < 32 {
			add("model.input_size must be at least 32, got %d", c.Model.InputSize)
		}
		if c.Model.MiddleBlocks < 1 || c.Model.MiddleBlocks > 8 {
			add("model.middle_blocks must be in [1, 8], got %d", c.Model.MiddleBlocks)
		}
		if c.Model.WidthDivisor < 1 {
			add("model.width_divisor must be positive, got %d", c.Model.WidthDivisor)
		}
	}
	if c.Model.NumClasses <= 0 {
		add("model.num_classes must be positive, got %d", c.Model.NumClasses)
	}
	if c.Model.Workers < 0 {
		add("model.workers must not be negative, got %d", c.Model.Workers)
	}
	if o := c.Model.ONNX; o != nil && (o.Model == "" || o.Input == "" || o.Output == "") {
		add("model.onnx needs model, input and output")
	}

	if _, err := imageio.ParseColorMode(c.Image.ColorMode); err != nil {
		add("image.color_mode: %w", err)
	}
	if _, err := imageio.ParseResample(c.Image.Resample); err != nil {
		add("image.resample: %w", err)
	}

	if c.GradCAM.Layer == "" {
		add("gradcam.layer is required")
	}
	if _, err := c.GradCAMEngineConfig(); err != nil {
		add("gradcam: %w", err)
	}

	if c.Output.Dir == "" {
		add("output.dir is required")
	}
	if _, err := imageio.ParseFormat(c.Output.Format); err != nil {
		add("output.format: %w", err)
	}
	if c.Output.TopK < 1 {
		add("output.top_k must be at least 1, got %d", c.Output.TopK)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GradCAMEngineConfig converts the gradcam section.
func (c *Config) GradCAMEngineConfig() (gradcam.Config, error) {
	mode, err := gradcam.ParseLossMode(c.GradCAM.LossMode)
	if err != nil {
		return gradcam.Config{}, err
	}
	cfg := gradcam.Config{
		LossMode:    mode,
		TargetIndex: c.GradCAM.TargetIndex,
		Class:       c.GradCAM.Class,
		NumClasses:  c.Model.NumClasses,
		Epsilon:     c.GradCAM.Epsilon,
	}
	return cfg, cfg.Validate()
}

// ImageOptions converts the image section.
func (c *Config) ImageOptions() (imageio.Options, error) {
	mode, err := imageio.ParseColorMode(c.Image.ColorMode)
	if err != nil {
		return imageio.Options{}, err
	}
	resample, err := imageio.ParseResample(c.Image.Resample)
	if err != nil {
		return imageio.Options{}, err
	}
	return imageio.Options{
		Width:        c.Model.InputSize,
		Height:       c.Model.InputSize,
		ColorMode:    mode,
		Resample:     resample,
		FlipVertical: c.Image.FlipVertical,
	}, nil
}
