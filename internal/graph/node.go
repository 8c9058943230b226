package graph

// Period is an opaque, totally ordered time-bucket label (e.g. "2023" or
// "2024-Q1"). Ordering is defined by the graph's period list, not by the
// label's lexical value.
type Period string

// Node is a named unit of value: either raw per-period data or a compute
// rule over other nodes. The variant set is closed; the unexported compute
// method keeps cycle and cache logic variant-agnostic.
type Node interface {
	// Name returns the node's unique identity within a graph.
	Name() string

	// Dependencies returns the names of the nodes this node reads from.
	// The returned slice must not be mutated.
	Dependencies() []string

	// compute evaluates the node for one period. The graph's lock is held
	// by the caller; implementations recurse through g.calculate only.
	compute(g *Graph, p Period) (float64, error)

	// renamed returns a copy of the node under a new name with its
	// dependency references translated through the rename map. Used by
	// MergeFrom; the original node is never mutated.
	renamed(name string, rename map[string]string) Node
}

// StrategyFunc is a registered pure function over ordered input values.
type StrategyFunc func(inputs []float64) (float64, error)

// StrategyRegistry is an injected, read-only lookup service for named
// strategy functions. See internal/strategies for the standard set.
type StrategyRegistry interface {
	Strategy(name string) (StrategyFunc, bool)
}

// MetricSpec describes one catalog metric: an expression over named inputs.
type MetricSpec struct {
	Name        string
	Description string
	Formula     string
	Inputs      []string
}

// MetricCatalog is an injected, read-only lookup service for metric
// definitions sourced from an external catalog (see internal/metrics).
type MetricCatalog interface {
	Metric(name string) (MetricSpec, bool)
}

// CustomFunc is an arbitrary injected compute rule over named input values.
type CustomFunc func(inputs map[string]float64) (float64, error)

func renameOf(name string, rename map[string]string) string {
	if renamed, ok := rename[name]; ok {
		return renamed
	}
	return name
}

// DataNode owns a mapping period -> numeric value and has no dependencies.
// Values are mutated through Graph.SetValue only.
type DataNode struct {
	name   string
	values map[Period]float64
}

// NewDataNode creates a leaf node seeded with the given values. The map is
// copied; a nil map is allowed.
func NewDataNode(name string, values map[Period]float64) *DataNode {
	vs := make(map[Period]float64, len(values))
	for p, v := range values {
		vs[p] = v
	}
	return &DataNode{name: name, values: vs}
}

func (n *DataNode) Name() string           { return n.name }
func (n *DataNode) Dependencies() []string { return nil }

// Value reports the stored value for a period, if any.
func (n *DataNode) Value(p Period) (float64, bool) {
	v, ok := n.values[p]
	return v, ok
}

func (n *DataNode) compute(_ *Graph, p Period) (float64, error) {
	v, ok := n.values[p]
	if !ok {
		return 0, &MissingDataError{Node: n.name, Period: p}
	}
	return v, nil
}

func (n *DataNode) renamed(name string, _ map[string]string) Node {
	return NewDataNode(name, n.values)
}

// StrategyNode applies a named, registered pure function to its ordered
// inputs for the same period.
type StrategyNode struct {
	name     string
	strategy string
	inputs   []string
}

// NewStrategyNode creates a node that applies the registered strategy
// function to the ordered input nodes. The strategy is resolved at
// evaluation time against the graph's injected registry.
func NewStrategyNode(name, strategy string, inputs []string) *StrategyNode {
	return &StrategyNode{name: name, strategy: strategy, inputs: append([]string(nil), inputs...)}
}

func (n *StrategyNode) Name() string           { return n.name }
func (n *StrategyNode) Dependencies() []string { return n.inputs }

func (n *StrategyNode) compute(g *Graph, p Period) (float64, error) {
	fn, ok := g.strategies.Strategy(n.strategy)
	if !ok {
		return 0, &CalculationError{Node: n.name, Period: p, Reason: "strategy " + n.strategy + " is not registered"}
	}
	values := make([]float64, len(n.inputs))
	for i, dep := range n.inputs {
		v, err := g.calculate(dep, p)
		if err != nil {
			return 0, err
		}
		values[i] = v
	}
	v, err := fn(values)
	if err != nil {
		return 0, &CalculationError{Node: n.name, Period: p, Reason: "strategy " + n.strategy, Err: err}
	}
	if err := checkFinite(n.name, p, v); err != nil {
		return 0, err
	}
	return v, nil
}

func (n *StrategyNode) renamed(name string, rename map[string]string) Node {
	inputs := make([]string, len(n.inputs))
	for i, dep := range n.inputs {
		inputs[i] = renameOf(dep, rename)
	}
	return NewStrategyNode(name, n.strategy, inputs)
}

// CustomNode applies an arbitrary injected function over named inputs.
type CustomNode struct {
	name   string
	fn     CustomFunc
	inputs []string
}

// NewCustomNode creates a node computed by fn over the named input nodes.
func NewCustomNode(name string, inputs []string, fn CustomFunc) *CustomNode {
	return &CustomNode{name: name, fn: fn, inputs: append([]string(nil), inputs...)}
}

func (n *CustomNode) Name() string           { return n.name }
func (n *CustomNode) Dependencies() []string { return n.inputs }

func (n *CustomNode) compute(g *Graph, p Period) (float64, error) {
	values := make(map[string]float64, len(n.inputs))
	for _, dep := range n.inputs {
		v, err := g.calculate(dep, p)
		if err != nil {
			return 0, err
		}
		values[dep] = v
	}
	v, err := n.fn(values)
	if err != nil {
		return 0, &CalculationError{Node: n.name, Period: p, Reason: "custom function", Err: err}
	}
	if err := checkFinite(n.name, p, v); err != nil {
		return 0, err
	}
	return v, nil
}

func (n *CustomNode) renamed(name string, rename map[string]string) Node {
	inputs := make([]string, len(n.inputs))
	renamedInputs := make(map[string]string, len(n.inputs))
	for i, dep := range n.inputs {
		inputs[i] = renameOf(dep, rename)
		renamedInputs[inputs[i]] = dep
	}
	fn := n.fn
	if len(rename) > 0 {
		// The custom function sees the original input names it was written
		// against, regardless of what the nodes are called after a merge.
		inner := n.fn
		fn = func(inputs map[string]float64) (float64, error) {
			translated := make(map[string]float64, len(inputs))
			for current, v := range inputs {
				if original, ok := renamedInputs[current]; ok {
					translated[original] = v
				} else {
					translated[current] = v
				}
			}
			return inner(translated)
		}
	}
	return NewCustomNode(name, inputs, fn)
}
