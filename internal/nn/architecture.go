package nn

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/saliency/internal/tensor"
)

// Architecture is the serializable description of a Model: an input shape
// and a list of layer specs in topological order.
type Architecture struct {
	Name   string      `yaml:"name"`
	Input  []int       `yaml:"input"` // without batch axis, e.g. [224, 224, 3]
	Layers []LayerSpec `yaml:"layers"`
}

// LayerSpec describes one layer. Only the fields relevant to Type are read.
type LayerSpec struct {
	Name   string   `yaml:"name"`
	Type   string   `yaml:"type"`
	Inputs []string `yaml:"inputs,omitempty"` // default: previous layer

	Filters    int     `yaml:"filters,omitempty"`
	Units      int     `yaml:"units,omitempty"`
	Kernel     []int   `yaml:"kernel,omitempty"` // [h, w]; pool size for max_pool2d
	Strides    int     `yaml:"strides,omitempty"`
	Padding    string  `yaml:"padding,omitempty"`
	UseBias    bool    `yaml:"use_bias,omitempty"`
	Activation string  `yaml:"activation,omitempty"`
	Epsilon    float32 `yaml:"epsilon,omitempty"`
	Rate       float64 `yaml:"rate,omitempty"`
}

// LoadArchitecture reads a YAML architecture file.
func LoadArchitecture(path string) (*Architecture, error) {
	//nolint:gosec // G304: path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read architecture: %w", err)
	}
	return ParseArchitecture(data)
}

// ParseArchitecture decodes YAML, rejecting unknown fields.
func ParseArchitecture(data []byte) (*Architecture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var arch Architecture
	if err := dec.Decode(&arch); err != nil {
		return nil, fmt.Errorf("parse architecture: %w", err)
	}
	return &arch, nil
}

// Marshal encodes the architecture as YAML.
func (a *Architecture) Marshal() ([]byte, error) {
	return yaml.Marshal(a)
}

// Build constructs a Model from an architecture. Parameters are allocated
// but not initialized; call InitWeights or LoadStateDict next.
func Build(arch *Architecture) (*Model, error) {
	model, err := NewModel(arch.Name, NewInput("input", tensor.Shape(arch.Input)))
	if err != nil {
		return nil, err
	}
	for _, spec := range arch.Layers {
		layer, err := spec.layer()
		if err != nil {
			return nil, err
		}
		if err := model.Add(layer, spec.Inputs...); err != nil {
			return nil, err
		}
	}
	return model, nil
}

func (s LayerSpec) layer() (Layer, error) {
	activation, err := ParseActivation(s.Activation)
	if err != nil {
		return nil, &BuildError{Layer: s.Name, Reason: err.Error()}
	}
	padding, err := tensor.ParsePadding(s.Padding)
	if err != nil {
		return nil, &BuildError{Layer: s.Name, Reason: err.Error()}
	}

	switch s.Type {
	case "conv2d", "separable_conv2d":
		kernel, err := s.window()
		if err != nil {
			return nil, err
		}
		cfg := Conv2DConfig{
			Filters:    s.Filters,
			Kernel:     kernel,
			Stride:     s.Strides,
			Padding:    padding,
			UseBias:    s.UseBias,
			Activation: activation,
		}
		if s.Type == "conv2d" {
			return NewConv2D(s.Name, cfg), nil
		}
		return NewSeparableConv2D(s.Name, cfg), nil
	case "batch_norm":
		return NewBatchNorm(s.Name, s.Epsilon), nil
	case "activation":
		return NewActivation(s.Name, activation), nil
	case "max_pool2d":
		size, err := s.window()
		if err != nil {
			return nil, err
		}
		stride := s.Strides
		if stride == 0 {
			stride = size[0]
		}
		return NewMaxPool2D(s.Name, size, stride, padding), nil
	case "global_avg_pool2d":
		return NewGlobalAvgPool2D(s.Name), nil
	case "dense":
		return NewDense(s.Name, s.Units, activation), nil
	case "dropout":
		return NewDropout(s.Name, s.Rate), nil
	case "add":
		return NewAdd(s.Name), nil
	default:
		return nil, &BuildError{Layer: s.Name, Reason: fmt.Sprintf("unknown layer type %q", s.Type)}
	}
}

func (s LayerSpec) window() ([2]int, error) {
	switch len(s.Kernel) {
	case 1:
		return [2]int{s.Kernel[0], s.Kernel[0]}, nil
	case 2:
		return [2]int{s.Kernel[0], s.Kernel[1]}, nil
	default:
		return [2]int{}, &BuildError{Layer: s.Name, Reason: fmt.Sprintf("kernel must have 1 or 2 entries, got %v", s.Kernel)}
	}
}
