package gradcam

import (
	"errors"
	"fmt"

	"github.com/born-ml/saliency/internal/nn"
)

// InputShapeError reports an input tensor whose dimensions do not match the
// model input.
type InputShapeError = nn.InputShapeError

// LayerNotFoundError reports a target layer name or index absent from the
// model graph.
type LayerNotFoundError = nn.LayerNotFoundError

// ErrBatchSize is returned for inputs with more than one image.
var ErrBatchSize = errors.New("heatmaps are computed for a single image")

// ErrNotSpatial is returned when the target layer does not produce an
// [N, H, W, C] activation map.
var ErrNotSpatial = errors.New("target layer output is not a spatial feature map")

// DegenerateHeatmapError reports a class activation map with no positive
// cell, which cannot be normalized.
type DegenerateHeatmapError struct {
	Max float32 // maximum after rectification (0 or NaN)
}

func (e *DegenerateHeatmapError) Error() string {
	return fmt.Sprintf("degenerate heatmap: maximum %v after rectification", e.Max)
}
