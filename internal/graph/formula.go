package graph

import (
	"fmt"
	"math"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// checkFinite rejects NaN and infinite results so that division by zero and
// degenerate arithmetic surface as CalculationError instead of leaking
// non-numbers to callers.
func checkFinite(node string, p Period, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &CalculationError{Node: node, Period: p, Reason: fmt.Sprintf("non-finite result %v", v)}
	}
	return nil
}

// parseFormula parses an HCL expression and returns it with the sorted set
// of variable names it references.
func parseFormula(name, formula string) (hclsyntax.Expression, []string, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(formula), name+".formula", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("parsing formula for node %q: %w", name, diags)
	}
	seen := make(map[string]struct{})
	for _, traversal := range expr.Variables() {
		seen[traversal.RootName()] = struct{}{}
	}
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return expr, vars, nil
}

// evalFormula evaluates a parsed expression against numeric variables.
// HCL evaluation diagnostics (including division by zero) and non-finite
// results are reported as CalculationError.
func evalFormula(node string, p Period, expr hclsyntax.Expression, vars map[string]cty.Value) (result float64, err error) {
	// go-cty arithmetic on big.Float can panic on degenerate operands
	// (e.g. 0/0); treat that the same as an evaluation diagnostic.
	defer func() {
		if r := recover(); r != nil {
			result = 0
			err = &CalculationError{Node: node, Period: p, Reason: fmt.Sprintf("expression evaluation panicked: %v", r)}
		}
	}()

	val, diags := expr.Value(&hcl.EvalContext{Variables: vars})
	if diags.HasErrors() {
		return 0, &CalculationError{Node: node, Period: p, Reason: "expression evaluation", Err: diags}
	}
	if val.Type() != cty.Number {
		return 0, &CalculationError{Node: node, Period: p, Reason: fmt.Sprintf("expression produced %s, want number", val.Type().FriendlyName())}
	}
	var out float64
	if convErr := gocty.FromCtyValue(val, &out); convErr != nil {
		return 0, &CalculationError{Node: node, Period: p, Reason: "non-numeric result", Err: convErr}
	}
	if finErr := checkFinite(node, p, out); finErr != nil {
		return 0, finErr
	}
	return out, nil
}

// FormulaNode owns an arithmetic expression over named input nodes. Each
// expression variable is bound to a node name (identity by default); the
// binding map is how merges rename dependencies without rewriting the
// expression source.
type FormulaNode struct {
	name     string
	formula  string
	expr     hclsyntax.Expression
	vars     []string
	bindings map[string]string // expression variable -> node name
	deps     []string
}

// NewFormulaNode parses the formula and binds every expression variable to
// the node of the same name.
func NewFormulaNode(name, formula string) (*FormulaNode, error) {
	return NewBoundFormulaNode(name, formula, nil)
}

// NewBoundFormulaNode parses the formula and binds expression variables to
// node names through the given map; variables absent from the map bind to
// nodes of the same name.
func NewBoundFormulaNode(name, formula string, bindings map[string]string) (*FormulaNode, error) {
	expr, vars, err := parseFormula(name, formula)
	if err != nil {
		return nil, err
	}
	bound := make(map[string]string, len(vars))
	deps := make([]string, 0, len(vars))
	seen := make(map[string]struct{}, len(vars))
	for _, v := range vars {
		target := v
		if t, ok := bindings[v]; ok {
			target = t
		}
		bound[v] = target
		if _, dup := seen[target]; !dup {
			seen[target] = struct{}{}
			deps = append(deps, target)
		}
	}
	sort.Strings(deps)
	return &FormulaNode{
		name:     name,
		formula:  formula,
		expr:     expr,
		vars:     vars,
		bindings: bound,
		deps:     deps,
	}, nil
}

func (n *FormulaNode) Name() string           { return n.name }
func (n *FormulaNode) Dependencies() []string { return n.deps }

// Formula returns the expression source, for diagnostics and export.
func (n *FormulaNode) Formula() string { return n.formula }

// Bindings returns a copy of the variable -> node binding map.
func (n *FormulaNode) Bindings() map[string]string {
	out := make(map[string]string, len(n.bindings))
	for k, v := range n.bindings {
		out[k] = v
	}
	return out
}

func (n *FormulaNode) compute(g *Graph, p Period) (float64, error) {
	vars := make(map[string]cty.Value, len(n.vars))
	for _, v := range n.vars {
		dep, err := g.calculate(n.bindings[v], p)
		if err != nil {
			return 0, err
		}
		vars[v] = cty.NumberFloatVal(dep)
	}
	return evalFormula(n.name, p, n.expr, vars)
}

func (n *FormulaNode) renamed(name string, rename map[string]string) Node {
	bindings := make(map[string]string, len(n.bindings))
	for v, target := range n.bindings {
		bindings[v] = renameOf(target, rename)
	}
	// The formula text was already validated; re-parsing cannot fail.
	clone, err := NewBoundFormulaNode(name, n.formula, bindings)
	if err != nil {
		panic(fmt.Sprintf("graph: renaming previously valid formula node %q: %v", n.name, err))
	}
	return clone
}

// MetricNode owns a formula sourced from an external metric catalog plus an
// input-name -> node mapping. The catalog is resolved once at construction
// so later catalog edits cannot rewire an existing node.
type MetricNode struct {
	name   string
	metric string
	spec   MetricSpec
	expr   hclsyntax.Expression
	inputs map[string]string // metric input name -> node name
	deps   []string
}

// NewMetricNode resolves the metric in the catalog, parses its formula, and
// binds every declared input through the inputs map. Every metric input
// must be mapped.
func NewMetricNode(name, metric string, inputs map[string]string, catalog MetricCatalog) (*MetricNode, error) {
	if catalog == nil {
		return nil, fmt.Errorf("metric node %q: no metric catalog configured", name)
	}
	spec, ok := catalog.Metric(metric)
	if !ok {
		return nil, fmt.Errorf("metric node %q: metric %q not in catalog", name, metric)
	}
	expr, vars, err := parseFormula(name, spec.Formula)
	if err != nil {
		return nil, err
	}
	bound := make(map[string]string, len(vars))
	deps := make([]string, 0, len(vars))
	seen := make(map[string]struct{}, len(vars))
	for _, v := range vars {
		target, ok := inputs[v]
		if !ok {
			return nil, fmt.Errorf("metric node %q: metric %q input %q is not mapped to a node", name, metric, v)
		}
		bound[v] = target
		if _, dup := seen[target]; !dup {
			seen[target] = struct{}{}
			deps = append(deps, target)
		}
	}
	sort.Strings(deps)
	return &MetricNode{
		name:   name,
		metric: metric,
		spec:   spec,
		expr:   expr,
		inputs: bound,
		deps:   deps,
	}, nil
}

func (n *MetricNode) Name() string           { return n.name }
func (n *MetricNode) Dependencies() []string { return n.deps }

// Metric returns the catalog metric name this node was built from.
func (n *MetricNode) Metric() string { return n.metric }

// Inputs returns a copy of the metric input -> node mapping.
func (n *MetricNode) Inputs() map[string]string {
	out := make(map[string]string, len(n.inputs))
	for k, v := range n.inputs {
		out[k] = v
	}
	return out
}

func (n *MetricNode) compute(g *Graph, p Period) (float64, error) {
	vars := make(map[string]cty.Value, len(n.inputs))
	for v, target := range n.inputs {
		dep, err := g.calculate(target, p)
		if err != nil {
			return 0, err
		}
		vars[v] = cty.NumberFloatVal(dep)
	}
	return evalFormula(n.name, p, n.expr, vars)
}

func (n *MetricNode) renamed(name string, rename map[string]string) Node {
	inputs := make(map[string]string, len(n.inputs))
	for v, target := range n.inputs {
		inputs[v] = renameOf(target, rename)
	}
	deps := make([]string, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, target := range inputs {
		if _, dup := seen[target]; !dup {
			seen[target] = struct{}{}
			deps = append(deps, target)
		}
	}
	sort.Strings(deps)
	return &MetricNode{
		name:   name,
		metric: n.metric,
		spec:   n.spec,
		expr:   n.expr,
		inputs: inputs,
		deps:   deps,
	}
}
