package nn

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/born-ml/saliency/internal/tensor"
)

// node is one layer of a Model together with its wiring.
type node struct {
	layer  Layer
	inputs []int        // indices of producer nodes
	shape  tensor.Shape // output shape, batch axis excluded
}

// Model is a directed acyclic graph of named layers in topological order.
// Node 0 is always the Input layer and the last node is the model output.
//
// Example:
//
//	model, err := nn.Build(nn.XceptionArchitecture(nn.DefaultXceptionConfig()))
//	out, err := model.Forward(backend, x)
type Model struct {
	name  string
	nodes []node
	index map[string]int
}

// NewModel creates an empty model whose first node is input.
func NewModel(name string, input *Input) (*Model, error) {
	m := &Model{name: name, index: make(map[string]int)}
	if err := m.Add(input); err != nil {
		return nil, err
	}
	return m, nil
}

// Add appends a layer fed by the named producers. Producers must already
// be part of the model. With no names, the layer is fed by the previous
// node (the input node takes none).
func (m *Model) Add(layer Layer, inputs ...string) error {
	name := layer.Name()
	if name == "" {
		return &BuildError{Layer: name, Reason: "empty layer name"}
	}
	if _, dup := m.index[name]; dup {
		return &BuildError{Layer: name, Reason: "duplicate layer name"}
	}

	var producers []int
	switch {
	case len(m.nodes) == 0:
		if _, ok := layer.(*Input); !ok {
			return &BuildError{Layer: name, Reason: "first layer must be an input"}
		}
	case len(inputs) == 0:
		producers = []int{len(m.nodes) - 1}
	default:
		for _, in := range inputs {
			idx, ok := m.index[in]
			if !ok {
				return &BuildError{Layer: name, Reason: fmt.Sprintf("unknown input %q", in)}
			}
			producers = append(producers, idx)
		}
	}

	shapes := make([]tensor.Shape, len(producers))
	for i, p := range producers {
		shapes[i] = m.nodes[p].shape
	}
	out, err := layer.Build(shapes)
	if err != nil {
		return err
	}

	m.index[name] = len(m.nodes)
	m.nodes = append(m.nodes, node{layer: layer, inputs: producers, shape: out})
	return nil
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// NumLayers returns the number of layers, the input layer included.
func (m *Model) NumLayers() int { return len(m.nodes) }

// InputShape returns the expected input shape without the batch axis.
func (m *Model) InputShape() tensor.Shape {
	return m.nodes[0].shape
}

// OutputShape returns the output shape of the named layer, batch excluded.
func (m *Model) OutputShape(name string) (tensor.Shape, error) {
	idx, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return m.nodes[idx].shape, nil
}

// Layer returns the layer with the given name.
func (m *Model) Layer(name string) (Layer, error) {
	idx, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return m.nodes[idx].layer, nil
}

// LayerAt returns the layer at index i. Negative indices count from the
// end, so -1 is the output layer.
func (m *Model) LayerAt(i int) (Layer, error) {
	idx := i
	if idx < 0 {
		idx += len(m.nodes)
	}
	if idx < 0 || idx >= len(m.nodes) {
		return nil, &LayerNotFoundError{Index: i, Count: len(m.nodes)}
	}
	return m.nodes[idx].layer, nil
}

// Layers returns every layer in topological order.
func (m *Model) Layers() []Layer {
	layers := make([]Layer, len(m.nodes))
	for i, n := range m.nodes {
		layers[i] = n.layer
	}
	return layers
}

func (m *Model) lookup(name string) (int, error) {
	idx, ok := m.index[name]
	if !ok {
		return 0, &LayerNotFoundError{Name: name, Index: -1, Count: len(m.nodes)}
	}
	return idx, nil
}

// CheckInput verifies that x is [N, ...InputShape()].
func (m *Model) CheckInput(x *tensor.RawTensor) error {
	want := m.InputShape()
	got := x.Shape()
	if len(got) != len(want)+1 || !got[1:].Equal(want) {
		return &InputShapeError{Want: want.Clone(), Got: got.Clone()}
	}
	return nil
}

// Activations holds the output of every layer of one forward pass.
type Activations struct {
	model   *Model
	outputs []*tensor.RawTensor
}

// Output returns the model output.
func (a *Activations) Output() *tensor.RawTensor {
	return a.outputs[len(a.outputs)-1]
}

// Get returns the output of the named layer.
func (a *Activations) Get(name string) (*tensor.RawTensor, error) {
	idx, err := a.model.lookup(name)
	if err != nil {
		return nil, err
	}
	return a.outputs[idx], nil
}

// At returns the output of the layer at index i (negative counts from the end).
func (a *Activations) At(i int) (*tensor.RawTensor, error) {
	idx := i
	if idx < 0 {
		idx += len(a.outputs)
	}
	if idx < 0 || idx >= len(a.outputs) {
		return nil, &LayerNotFoundError{Index: i, Count: len(a.outputs)}
	}
	return a.outputs[idx], nil
}

// Run evaluates the whole graph on b and keeps every intermediate output.
// On an autodiff backend with recording enabled, every layer is recorded, so
// gradients can be taken with respect to any returned tensor.
func (m *Model) Run(b tensor.Backend, x *tensor.RawTensor) (*Activations, error) {
	if err := m.CheckInput(x); err != nil {
		return nil, err
	}

	outputs := make([]*tensor.RawTensor, len(m.nodes))
	outputs[0] = x
	for i := 1; i < len(m.nodes); i++ {
		n := m.nodes[i]
		ins := make([]*tensor.RawTensor, len(n.inputs))
		for j, p := range n.inputs {
			ins[j] = outputs[p]
		}
		out, err := n.layer.Forward(b, ins)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", n.layer.Name(), err)
		}
		outputs[i] = out
	}
	return &Activations{model: m, outputs: outputs}, nil
}

// Forward evaluates the graph and returns the model output.
func (m *Model) Forward(b tensor.Backend, x *tensor.RawTensor) (*tensor.RawTensor, error) {
	acts, err := m.Run(b, x)
	if err != nil {
		return nil, err
	}
	return acts.Output(), nil
}

// WithGradientOverride returns a structurally identical copy of the model in
// which every rectifier named by activation records its backward pass with
// the gradient rule registered under rule.
//
// Only "relu" can be overridden. Standalone activation layers and layers
// with a fused ReLU are replaced by copies; all parameters are shared with
// the receiver, which is not modified.
func (m *Model) WithGradientOverride(activation, rule string) (*Model, error) {
	if ActivationFunc(activation) != ReLU {
		return nil, fmt.Errorf("gradient override for %q: %w", activation, ErrUnsupportedActivation)
	}
	if rule == "" {
		return nil, fmt.Errorf("gradient override for %q: empty rule name", activation)
	}

	c := &Model{
		name:  m.name,
		nodes: make([]node, len(m.nodes)),
		index: m.index, // never mutated after construction
	}
	copy(c.nodes, m.nodes)
	for i, n := range c.nodes {
		if o, ok := n.layer.(reluOverrider); ok {
			if layer, changed := o.withReLUGradient(rule); changed {
				c.nodes[i].layer = layer
			}
		}
	}
	return c, nil
}

// Parameters returns all parameters keyed "<layer>.<param>".
func (m *Model) Parameters() map[string]*Parameter {
	params := make(map[string]*Parameter)
	for _, n := range m.nodes {
		for _, p := range n.layer.Parameters() {
			params[n.layer.Name()+"."+p.Name()] = p
		}
	}
	return params
}

// NumParams returns the total number of parameter elements.
func (m *Model) NumParams() int {
	total := 0
	for _, n := range m.nodes {
		for _, p := range n.layer.Parameters() {
			total += p.Tensor().NumElements()
		}
	}
	return total
}

// InitWeights initializes every parameter from a PCG stream seeded with
// seed. Layers are visited in topological order, so the result depends only
// on the architecture and the seed.
func (m *Model) InitWeights(seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, n := range m.nodes {
		for _, p := range n.layer.Parameters() {
			p.Initialize(rng)
		}
	}
}

// StateDict returns the parameter tensors keyed "<layer>.<param>".
// The tensors are the live parameters, not copies.
func (m *Model) StateDict() map[string]*tensor.RawTensor {
	params := m.Parameters()
	state := make(map[string]*tensor.RawTensor, len(params))
	for name, p := range params {
		state[name] = p.Tensor()
	}
	return state
}

// LoadStateDict copies weights into the model. Every parameter must be
// present with a matching shape; unknown keys are rejected.
func (m *Model) LoadStateDict(state map[string]*tensor.RawTensor) error {
	params := m.Parameters()
	var missing []string
	for name := range params {
		if _, ok := state[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("load weights: %d missing parameters (first: %s)", len(missing), firstSorted(missing))
	}
	for name, t := range state {
		p, ok := params[name]
		if !ok {
			return fmt.Errorf("load weights: unexpected parameter %s", name)
		}
		if err := p.Load(t); err != nil {
			return fmt.Errorf("load weights: %s: %w", name, err)
		}
	}
	return nil
}

// Summary renders one line per layer: name, type, output shape and
// parameter count.
func (m *Model) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Model %q: %d layers, %d parameters\n", m.name, len(m.nodes), m.NumParams())
	for _, n := range m.nodes {
		count := 0
		for _, p := range n.layer.Parameters() {
			count += p.Tensor().NumElements()
		}
		fmt.Fprintf(&sb, "  %-28s %-18s %-16s %d\n", n.layer.Name(), n.layer.Type(), n.shape, count)
	}
	return sb.String()
}

func firstSorted(names []string) string {
	first := names[0]
	for _, n := range names[1:] {
		if n < first {
			first = n
		}
	}
	return first
}
