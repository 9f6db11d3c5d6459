package nn

import (
	"errors"
	"fmt"

	"github.com/born-ml/saliency/internal/tensor"
)

// ErrUnsupportedActivation is returned for activation names other than
// linear, relu and softmax, and for gradient overrides of anything but relu.
var ErrUnsupportedActivation = errors.New("unsupported activation")

// LayerNotFoundError reports a layer name or index absent from a model.
type LayerNotFoundError struct {
	Name  string // empty when looked up by index
	Index int
	Count int // number of layers in the model
}

func (e *LayerNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("layer %q not found in model", e.Name)
	}
	return fmt.Sprintf("layer index %d out of range for %d layers", e.Index, e.Count)
}

// InputShapeError reports an input tensor whose dimensions do not match
// what the model expects.
type InputShapeError struct {
	Want tensor.Shape // expected shape, batch axis excluded
	Got  tensor.Shape // full shape received
}

func (e *InputShapeError) Error() string {
	return fmt.Sprintf("input shape %v does not match model input [N %s]", e.Got, trimBrackets(e.Want.String()))
}

// BuildError reports an invalid layer configuration or wiring.
type BuildError struct {
	Layer  string
	Reason string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build layer %q: %s", e.Layer, e.Reason)
}

func trimBrackets(s string) string {
	if len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}

func pluralInputs(want, got int) string {
	if want == 1 {
		return fmt.Sprintf("expects 1 input, got %d", got)
	}
	return fmt.Sprintf("expects %d inputs, got %d", want, got)
}
