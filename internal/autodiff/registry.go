package autodiff

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/born-ml/saliency/internal/autodiff/ops"
)

// Rule replaces the backward pass of a rectifier. See ops.ReLUGradient.
type Rule = ops.ReLUGradient

// GradientRegistrationError reports a conflicting registration or an
// override that names a rule nobody registered.
type GradientRegistrationError struct {
	Name   string
	Reason string
}

func (e *GradientRegistrationError) Error() string {
	return fmt.Sprintf("gradient rule %q: %s", e.Name, e.Reason)
}

// Registry maps rule names to gradient rules.
//
// A registry is passed explicitly to the backend that uses it. It is safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// Register binds name to rule.
//
// Registering an equal rule (same type and settings) under the same name
// again is a no-op. Registering a different rule under a used name returns
// a *GradientRegistrationError.
func (r *Registry) Register(name string, rule Rule) error {
	if name == "" {
		return &GradientRegistrationError{Name: name, Reason: "empty rule name"}
	}
	if rule == nil {
		return &GradientRegistrationError{Name: name, Reason: "nil rule"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.rules[name]; ok {
		if reflect.DeepEqual(existing, rule) {
			return nil
		}
		return &GradientRegistrationError{
			Name:   name,
			Reason: fmt.Sprintf("already registered as %T%+v, cannot register %T%+v", existing, existing, rule, rule),
		}
	}
	r.rules[name] = rule
	return nil
}

// Lookup returns the rule registered under name.
func (r *Registry) Lookup(name string) (Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[name]
	if !ok {
		return nil, &GradientRegistrationError{Name: name, Reason: "not registered"}
	}
	return rule, nil
}

// Names returns the registered rule names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.rules))
	for name := range r.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
