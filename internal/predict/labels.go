// Package predict turns model outputs into labelled class predictions.
package predict

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Labels maps class indices to names.
type Labels struct {
	names []string
}

// LoadLabels reads a Keras class_indices JSON file: {"label": index, ...}.
func LoadLabels(path string) (*Labels, error) {
	//nolint:gosec // G304: labels path comes from configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return ParseLabels(data)
}

// ParseLabels decodes class_indices JSON. The indices must be exactly
// 0..n-1.
func ParseLabels(data []byte) (*Labels, error) {
	var indices map[string]int
	if err := json.Unmarshal(data, &indices); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}
	names := make([]string, len(indices))
	for label, idx := range indices {
		if idx < 0 || idx >= len(names) {
			return nil, fmt.Errorf("parse labels: index %d of %q out of range for %d classes", idx, label, len(names))
		}
		if names[idx] != "" {
			return nil, fmt.Errorf("parse labels: index %d used by %q and %q", idx, names[idx], label)
		}
		names[idx] = label
	}
	return &Labels{names: names}, nil
}

// NewLabels creates labels from names in index order.
func NewLabels(names ...string) *Labels {
	return &Labels{names: append([]string(nil), names...)}
}

// Len returns the number of labelled classes.
func (l *Labels) Len() int {
	if l == nil {
		return 0
	}
	return len(l.names)
}

// Name returns the label of class i, or "class_<i>" when there is none.
// A nil *Labels is valid.
func (l *Labels) Name(i int) string {
	if l == nil || i < 0 || i >= len(l.names) {
		return fmt.Sprintf("class_%d", i)
	}
	return l.names[i]
}

// Prediction is one scored class.
type Prediction struct {
	Class      int     `json:"class"`
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// TopK returns the k highest scores in descending order. Equal scores keep
// index order.
func TopK(scores []float32, labels *Labels, k int) []Prediction {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	k = min(max(k, 0), len(idx))
	out := make([]Prediction, k)
	for i, c := range idx[:k] {
		out[i] = Prediction{Class: c, Label: labels.Name(c), Confidence: scores[c]}
	}
	return out
}
