// Package strategies provides the standard registry of named pure
// functions available to strategy nodes. The registry is injected into the
// graph at construction time; nothing here is process-global.
package strategies

import (
	"errors"
	"fmt"
	"math"

	"github.com/quantfold/fingraph/internal/graph"
)

// Registry maps strategy names to pure functions over ordered inputs.
type Registry struct {
	fns map[string]graph.StrategyFunc
}

var _ graph.StrategyRegistry = (*Registry)(nil)

// NewRegistry returns a registry preloaded with the built-in strategies:
// sum, difference, product, mean, weighted_mean, min, max.
func NewRegistry() *Registry {
	r := &Registry{fns: make(map[string]graph.StrategyFunc)}
	r.MustRegister("sum", Sum)
	r.MustRegister("difference", Difference)
	r.MustRegister("product", Product)
	r.MustRegister("mean", Mean)
	r.MustRegister("weighted_mean", WeightedMean)
	r.MustRegister("min", Min)
	r.MustRegister("max", Max)
	return r
}

// Register adds a strategy under the given name.
func (r *Registry) Register(name string, fn graph.StrategyFunc) error {
	if name == "" {
		return errors.New("strategy name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("strategy %q: nil function", name)
	}
	if _, exists := r.fns[name]; exists {
		return fmt.Errorf("strategy %q already registered", name)
	}
	r.fns[name] = fn
	return nil
}

// MustRegister is Register for static initialization; it panics on error.
func (r *Registry) MustRegister(name string, fn graph.StrategyFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Strategy implements graph.StrategyRegistry.
func (r *Registry) Strategy(name string) (graph.StrategyFunc, bool) {
	fn, ok := r.fns[name]
	return fn, ok
}

// Names returns the registered strategy names (unordered).
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.fns))
	for name := range r.fns {
		out = append(out, name)
	}
	return out
}

// Sum adds all inputs.
func Sum(inputs []float64) (float64, error) {
	total := 0.0
	for _, v := range inputs {
		total += v
	}
	return total, nil
}

// Difference subtracts every subsequent input from the first.
func Difference(inputs []float64) (float64, error) {
	if len(inputs) == 0 {
		return 0, errors.New("difference needs at least one input")
	}
	total := inputs[0]
	for _, v := range inputs[1:] {
		total -= v
	}
	return total, nil
}

// Product multiplies all inputs.
func Product(inputs []float64) (float64, error) {
	total := 1.0
	for _, v := range inputs {
		total *= v
	}
	return total, nil
}

// Mean averages the inputs.
func Mean(inputs []float64) (float64, error) {
	if len(inputs) == 0 {
		return 0, errors.New("mean of zero inputs is undefined")
	}
	sum, _ := Sum(inputs)
	return sum / float64(len(inputs)), nil
}

// WeightedMean interprets the inputs as value/weight pairs:
// [v1, w1, v2, w2, ...].
func WeightedMean(inputs []float64) (float64, error) {
	if len(inputs) == 0 || len(inputs)%2 != 0 {
		return 0, errors.New("weighted_mean needs value/weight pairs")
	}
	var weighted, weights float64
	for i := 0; i < len(inputs); i += 2 {
		weighted += inputs[i] * inputs[i+1]
		weights += inputs[i+1]
	}
	if weights == 0 {
		return 0, errors.New("weighted_mean weights sum to zero")
	}
	return weighted / weights, nil
}

// Min returns the smallest input.
func Min(inputs []float64) (float64, error) {
	if len(inputs) == 0 {
		return 0, errors.New("min of zero inputs is undefined")
	}
	lowest := math.Inf(1)
	for _, v := range inputs {
		lowest = math.Min(lowest, v)
	}
	return lowest, nil
}

// Max returns the largest input.
func Max(inputs []float64) (float64, error) {
	if len(inputs) == 0 {
		return 0, errors.New("max of zero inputs is undefined")
	}
	highest := math.Inf(-1)
	for _, v := range inputs {
		highest = math.Max(highest, v)
	}
	return highest, nil
}
