package autodiff_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/saliency/internal/autodiff"
	"github.com/born-ml/saliency/internal/autodiff/ops"
	"github.com/born-ml/saliency/internal/tensor"
)

// scaledRule multiplies the upstream gradient by k.
type scaledRule struct{ k float32 }

func (r scaledRule) ReLUBackward(outputGrad, _ *tensor.RawTensor) *tensor.RawTensor {
	out := outputGrad.Clone()
	for i := range out.Data() {
		out.Data()[i] *= r.k
	}
	return out
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	reg := autodiff.NewRegistry()
	require.NoError(t, reg.Register("Guided", negateRule{}))
	require.NoError(t, reg.Register("Guided", negateRule{}))

	rule, err := reg.Lookup("Guided")
	require.NoError(t, err)
	assert.IsType(t, negateRule{}, rule)
	assert.Equal(t, []string{"Guided"}, reg.Names())
}

func TestRegistry_ConflictingRule(t *testing.T) {
	reg := autodiff.NewRegistry()
	require.NoError(t, reg.Register("Guided", negateRule{}))

	err := reg.Register("Guided", ops.StandardReLU{})
	var regErr *autodiff.GradientRegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "Guided", regErr.Name)

	rule, err := reg.Lookup("Guided")
	require.NoError(t, err)
	assert.IsType(t, negateRule{}, rule, "original registration must survive")
}

func TestRegistry_SameTypeDifferentSettings(t *testing.T) {
	reg := autodiff.NewRegistry()
	require.NoError(t, reg.Register("Scaled", scaledRule{k: 1}))
	require.NoError(t, reg.Register("Scaled", scaledRule{k: 1}), "equal rule is idempotent")

	err := reg.Register("Scaled", scaledRule{k: 2})
	var regErr *autodiff.GradientRegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "Scaled", regErr.Name)

	rule, err := reg.Lookup("Scaled")
	require.NoError(t, err)
	assert.Equal(t, scaledRule{k: 1}, rule)
}

func TestRegistry_InvalidRegistrations(t *testing.T) {
	reg := autodiff.NewRegistry()
	require.Error(t, reg.Register("", negateRule{}))
	require.Error(t, reg.Register("x", nil))

	_, err := reg.Lookup("x")
	require.Error(t, err)
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	reg := autodiff.NewRegistry()
	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = reg.Register("Guided", negateRule{})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, reg.Names(), 1)
}
