package predict

import (
	"errors"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/born-ml/saliency/internal/tensor"
)

// ONNXConfig describes an exported classifier run through ONNX Runtime.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string // onnxruntime shared library; empty uses the default search
	InputName   string
	OutputName  string
	InputShape  []int64 // e.g. [1 224 224 3]
	NumClasses  int64
}

// Validate checks the configuration without touching the runtime.
func (c ONNXConfig) Validate() error {
	if c.ModelPath == "" {
		return errors.New("onnx: empty model path")
	}
	if _, err := os.Stat(c.ModelPath); err != nil {
		return fmt.Errorf("onnx: %w", err)
	}
	if c.InputName == "" || c.OutputName == "" {
		return errors.New("onnx: input and output names are required")
	}
	if len(c.InputShape) != 4 {
		return fmt.Errorf("onnx: expected NHWC input shape, got %v", c.InputShape)
	}
	if c.NumClasses <= 0 {
		return fmt.Errorf("onnx: invalid class count %d", c.NumClasses)
	}
	return nil
}

// ONNXPredictor scores inputs with ONNX Runtime. It owns the runtime
// environment; Close releases it.
type ONNXPredictor struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	shape   tensor.Shape
}

// NewONNXPredictor initializes ONNX Runtime and opens a session on cfg.ModelPath.
func NewONNXPredictor(cfg ONNXConfig) (*ONNXPredictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	p := &ONNXPredictor{shape: make(tensor.Shape, len(cfg.InputShape))}
	for i, d := range cfg.InputShape {
		p.shape[i] = int(d)
	}

	var err error
	p.input, err = ort.NewEmptyTensor[float32](ort.NewShape(cfg.InputShape...))
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	p.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, cfg.NumClasses))
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	p.session, err = ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.ArbitraryTensor{p.input}, []ort.ArbitraryTensor{p.output},
		nil)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return p, nil
}

// Scores copies input into the session and runs it.
func (p *ONNXPredictor) Scores(input *tensor.RawTensor) ([]float32, error) {
	if !input.Shape().Equal(p.shape) {
		return nil, fmt.Errorf("onnx: input shape %v, session expects %v", input.Shape(), p.shape)
	}
	copy(p.input.GetData(), input.Data())
	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return append([]float32(nil), p.output.GetData()...), nil
}

// Close destroys the session, its tensors and the runtime environment.
func (p *ONNXPredictor) Close() error {
	var errs []error
	if p.session != nil {
		errs = append(errs, p.session.Destroy())
	}
	if p.input != nil {
		errs = append(errs, p.input.Destroy())
	}
	if p.output != nil {
		errs = append(errs, p.output.Destroy())
	}
	errs = append(errs, ort.DestroyEnvironment())
	return errors.Join(errs...)
}
