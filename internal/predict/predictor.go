package predict

import (
	"errors"
	"fmt"

	"github.com/born-ml/saliency/internal/nn"
	"github.com/born-ml/saliency/internal/tensor"
)

// ErrNoScores is returned when a classifier produced an empty output.
var ErrNoScores = errors.New("classifier returned no scores")

// Predictor scores a preprocessed [1, H, W, C] input.
type Predictor interface {
	Scores(input *tensor.RawTensor) ([]float32, error)
	Close() error
}

// Predict runs p and returns the top k predictions.
func Predict(p Predictor, input *tensor.RawTensor, labels *Labels, k int) ([]Prediction, error) {
	scores, err := p.Scores(input)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, ErrNoScores
	}
	return TopK(scores, labels, max(k, 1)), nil
}

// ModelPredictor scores inputs with an nn.Model on a plain backend.
type ModelPredictor struct {
	model   *nn.Model
	backend tensor.Backend
}

// NewModelPredictor creates a predictor evaluating model on backend.
func NewModelPredictor(model *nn.Model, backend tensor.Backend) *ModelPredictor {
	return &ModelPredictor{model: model, backend: backend}
}

// Scores returns the model output for the first image of input.
func (p *ModelPredictor) Scores(input *tensor.RawTensor) ([]float32, error) {
	out, err := p.model.Forward(p.backend, input)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	s := out.Shape()
	if len(s) != 2 {
		return nil, fmt.Errorf("predict: expected [N classes] output, got %v", s)
	}
	return append([]float32(nil), out.Data()[:s[1]]...), nil
}

// Close implements Predictor.
func (p *ModelPredictor) Close() error { return nil }
