// Package graph implements the core evaluation engine: a declarative
// computation graph whose leaf nodes hold raw time-series data and whose
// compute nodes derive values from their dependencies, with per-node,
// per-period memoization and a discretionary adjustment overlay.
package graph

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// DefaultMinForecastHistory is the minimum historical window a forecast
// node accepts unless overridden per graph or per node.
const DefaultMinForecastHistory = 1

// emptyRegistry is the fallback when no strategy registry is injected.
type emptyRegistry struct{}

func (emptyRegistry) Strategy(string) (StrategyFunc, bool) { return nil, false }

// Graph owns the node registry, the ordered period list, the calculation
// cache and the adjustment store. A single RWMutex guards all mutating
// operations; Calculate and AdjustedValue take the read lock and rely on
// the cache's own locking for concurrent fills.
type Graph struct {
	mu sync.RWMutex

	nodes map[string]Node
	order []string // insertion order, for diagnostics only

	periods     []Period
	periodIndex map[Period]int

	// dependents is the reverse-dependency index: node -> nodes that read
	// it directly. Maintained on every structural mutation; consulted for
	// precise cache invalidation.
	dependents map[string]map[string]struct{}

	cache       *calcCache
	adjustments *adjustmentStore

	strategies StrategyRegistry
	catalog    MetricCatalog

	precise            bool
	minForecastHistory int

	log *zap.Logger
}

// Option configures a graph at construction time.
type Option func(*Graph)

// WithLogger attaches a logger; the graph logs structural mutations at
// debug level. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(g *Graph) {
		if log != nil {
			g.log = log.Named("graph")
		}
	}
}

// WithStrategies injects the registry StrategyNodes resolve against.
func WithStrategies(r StrategyRegistry) Option {
	return func(g *Graph) {
		if r != nil {
			g.strategies = r
		}
	}
}

// WithCatalog injects the metric catalog MetricNodes are built from.
func WithCatalog(c MetricCatalog) Option {
	return func(g *Graph) { g.catalog = c }
}

// WithPreciseInvalidation switches SetValue from the default clear-all
// cache policy to transitive invalidation through the reverse-dependency
// index. Results are identical; this is purely a throughput optimization
// for graphs with high dependency cardinality.
func WithPreciseInvalidation() Option {
	return func(g *Graph) { g.precise = true }
}

// WithMinForecastHistory sets the default minimum historical window for
// forecast nodes.
func WithMinForecastHistory(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.minForecastHistory = n
		}
	}
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes:              make(map[string]Node),
		periodIndex:        make(map[Period]int),
		dependents:         make(map[string]map[string]struct{}),
		cache:              newCalcCache(),
		adjustments:        newAdjustmentStore(),
		strategies:         emptyRegistry{},
		minForecastHistory: DefaultMinForecastHistory,
		log:                zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddPeriods appends period labels in the given order, skipping labels the
// graph already knows. Existing cache entries are never invalidated by a
// period addition, but forecast seeds are recomputed because the period
// order defines each node's forecast window.
func (g *Graph) AddPeriods(periods ...Period) error {
	for _, p := range periods {
		if p == "" {
			return &PeriodError{Period: p, Reason: "empty period label"}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	added := false
	for _, p := range periods {
		if _, ok := g.periodIndex[p]; ok {
			continue
		}
		g.periodIndex[p] = len(g.periods)
		g.periods = append(g.periods, p)
		added = true
	}
	if added {
		g.resetForecastSeeds(nil)
	}
	return nil
}

// Periods returns the ordered period list.
func (g *Graph) Periods() []Period {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Period(nil), g.periods...)
}

// Nodes returns a name -> node view of the registry. Nodes themselves are
// immutable; the map is a copy.
func (g *Graph) Nodes() map[string]Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]Node, len(g.nodes))
	for name, n := range g.nodes {
		out[name] = n
	}
	return out
}

// Node resolves a single node by name.
func (g *Graph) Node(name string) (Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[name]
	if !ok {
		return nil, &NodeNotFoundError{Name: name}
	}
	return n, nil
}

// NodeOrder returns node names in insertion order, for diagnostics.
func (g *Graph) NodeOrder() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// AddNode registers a node. It fails with DuplicateNodeError if the name is
// taken, UnknownInputError if a declared dependency is absent, and
// CircularDependencyError if the candidate edge set admits no topological
// order. On any failure the graph is left exactly as it was, including the
// cache and adjustment store.
func (g *Graph) AddNode(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addNodeLocked(n)
}

func (g *Graph) addNodeLocked(n Node) error {
	name := n.Name()
	if name == "" {
		return fmt.Errorf("node name must not be empty")
	}
	if _, exists := g.nodes[name]; exists {
		return &DuplicateNodeError{Name: name}
	}
	for _, dep := range n.Dependencies() {
		if _, ok := g.nodes[dep]; !ok {
			return &UnknownInputError{Node: name, Input: dep}
		}
	}

	// Topological sort of the candidate graph: commit only if an order
	// exists. Dependencies of existing nodes cannot change, so only the
	// new node's edges can close a cycle.
	candidate := g.depsView()
	candidate[name] = n.Dependencies()
	if _, err := topoSort(candidate); err != nil {
		return err
	}

	g.nodes[name] = n
	g.order = append(g.order, name)
	for _, dep := range n.Dependencies() {
		if g.dependents[dep] == nil {
			g.dependents[dep] = make(map[string]struct{})
		}
		g.dependents[dep][name] = struct{}{}
	}
	g.log.Debug("node added", zap.String("name", name), zap.Int("dependencies", len(n.Dependencies())))
	return nil
}

// ReplaceNode swaps the node registered under n.Name() for n, revalidating
// the whole dependency relation. This is the supported way to "rewire" a
// node: dependencies are immutable in place. All cache entries that could
// observe the old rule are invalidated.
func (g *Graph) ReplaceNode(n Node) error {
	name := n.Name()

	g.mu.Lock()
	defer g.mu.Unlock()
	old, exists := g.nodes[name]
	if !exists {
		return &NodeNotFoundError{Name: name}
	}
	for _, dep := range n.Dependencies() {
		if dep == name {
			return &CircularDependencyError{Cycle: []string{name, name}}
		}
		if _, ok := g.nodes[dep]; !ok {
			return &UnknownInputError{Node: name, Input: dep}
		}
	}

	candidate := g.depsView()
	candidate[name] = n.Dependencies()
	if _, err := topoSort(candidate); err != nil {
		return err
	}

	for _, dep := range old.Dependencies() {
		delete(g.dependents[dep], name)
	}
	g.nodes[name] = n
	for _, dep := range n.Dependencies() {
		if g.dependents[dep] == nil {
			g.dependents[dep] = make(map[string]struct{})
		}
		g.dependents[dep][name] = struct{}{}
	}
	g.invalidate(name)
	g.log.Debug("node replaced", zap.String("name", name))
	return nil
}

// RemoveNode unregisters a node. Without force it fails with NodeInUseError
// while other nodes still depend on the target; with force, dependents are
// cascade-removed as well. Cache entries for every removed name are purged;
// adjustments are kept for audit.
func (g *Graph) RemoveNode(name string, force bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[name]; !ok {
		return &NodeNotFoundError{Name: name}
	}

	direct := g.directDependents(name)
	if len(direct) > 0 && !force {
		return &NodeInUseError{Node: name, Dependents: direct}
	}

	removed := append([]string{name}, g.transitiveDependents(name)...)
	for _, victim := range removed {
		n := g.nodes[victim]
		if n == nil {
			continue
		}
		for _, dep := range n.Dependencies() {
			delete(g.dependents[dep], victim)
		}
		delete(g.dependents, victim)
		delete(g.nodes, victim)
		g.cache.clearNode(victim)
	}
	g.compactOrder()
	g.resetForecastSeeds(nil)
	g.log.Debug("node removed", zap.String("name", name), zap.Int("cascade", len(removed)-1), zap.Bool("force", force))
	return nil
}

// SetValue stores a raw value on a data node and invalidates every cache
// entry that could have observed the previous value: the default policy
// clears the whole cache; with precise invalidation only the node and its
// transitive dependents are cleared.
func (g *Graph) SetValue(name string, p Period, value float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[name]
	if !ok {
		return &NodeNotFoundError{Name: name}
	}
	dn, ok := n.(*DataNode)
	if !ok {
		return fmt.Errorf("node %q is not a data node; replace the node to change its rule", name)
	}
	if _, ok := g.periodIndex[p]; !ok {
		return &PeriodError{Period: p, Reason: "not in the graph's period list"}
	}

	dn.values[p] = value
	g.invalidate(name)
	g.log.Debug("value set", zap.String("node", name), zap.String("period", string(p)), zap.Float64("value", value))
	return nil
}

// Calculate evaluates a node for one period, memoizing every intermediate
// result. Repeated calls with no intervening mutation return identical
// values (statistical forecast nodes are deterministic within one cache
// lifetime).
func (g *Graph) Calculate(name string, p Period) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.calculate(name, p)
}

// calculate is the internal recursive evaluator; the caller holds at least
// the read lock.
func (g *Graph) calculate(name string, p Period) (float64, error) {
	if v, ok := g.cache.get(name, p); ok {
		return v, nil
	}
	n, ok := g.nodes[name]
	if !ok {
		return 0, &NodeNotFoundError{Name: name}
	}
	if _, ok := g.periodIndex[p]; !ok {
		return 0, &PeriodError{Period: p, Reason: "not in the graph's period list"}
	}

	v, err := n.compute(g, p)
	if err != nil {
		// No partial caching of failed evaluations.
		return 0, err
	}
	g.cache.put(name, p, v)
	return v, nil
}

// TopologicalSort returns node names ordered so that every dependency
// precedes its dependents. Read-only diagnostic; the same machinery rejects
// cycles before any node is committed.
func (g *Graph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return topoSort(g.depsView())
}

// DetectCycles reports every dependency cycle in the graph. A graph built
// exclusively through AddNode/ReplaceNode never has any.
func (g *Graph) DetectCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return findCycles(g.depsView())
}

// Validate checks structural invariants and returns every violation found:
// unknown dependencies, cycles, unresolvable strategies, and forecast
// horizons missing from the period list.
func (g *Graph) Validate() []error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for _, name := range g.order {
		n, ok := g.nodes[name]
		if !ok {
			continue
		}
		for _, dep := range n.Dependencies() {
			if _, ok := g.nodes[dep]; !ok {
				errs = append(errs, &UnknownInputError{Node: name, Input: dep})
			}
		}
		switch node := n.(type) {
		case *StrategyNode:
			if _, ok := g.strategies.Strategy(node.strategy); !ok {
				errs = append(errs, fmt.Errorf("node %q: strategy %q is not registered", name, node.strategy))
			}
		case *ForecastNode:
			if _, err := node.horizonIndex(g); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, cycle := range findCycles(g.depsView()) {
		errs = append(errs, &CircularDependencyError{Cycle: cycle})
	}
	return errs
}

// RenamePolicy decides the new name for an imported node whose name
// collides with an existing one.
type RenamePolicy func(name string) string

// SuffixRename renames collisions by appending the given suffix.
func SuffixRename(suffix string) RenamePolicy {
	return func(name string) string { return name + suffix }
}

// MergeFrom imports another graph's periods and nodes. Colliding node names
// are renamed per the policy; dependency references among imported nodes
// follow the renames. The source graph is read-locked and never mutated.
func (g *Graph) MergeFrom(other *Graph, policy RenamePolicy) error {
	if other == nil || other == g {
		return fmt.Errorf("merge source must be a different graph")
	}

	// Lock both graphs in address order so two goroutines merging in
	// opposite directions cannot deadlock.
	if reflect.ValueOf(g).Pointer() < reflect.ValueOf(other).Pointer() {
		g.mu.Lock()
		other.mu.RLock()
	} else {
		other.mu.RLock()
		g.mu.Lock()
	}
	defer g.mu.Unlock()
	defer other.mu.RUnlock()

	// Resolve renames up front so the import can be validated before any
	// mutation happens.
	rename := make(map[string]string)
	for name := range other.nodes {
		if _, collides := g.nodes[name]; !collides {
			continue
		}
		if policy == nil {
			return &DuplicateNodeError{Name: name}
		}
		renamed := policy(name)
		_, inTarget := g.nodes[renamed]
		_, inSource := other.nodes[renamed]
		if renamed == "" || inTarget || inSource {
			return fmt.Errorf("rename policy produced unusable name %q for node %q", renamed, name)
		}
		rename[name] = renamed
	}

	imported, err := topoSort(other.depsView())
	if err != nil {
		return err
	}

	for _, p := range other.periods {
		if _, ok := g.periodIndex[p]; ok {
			continue
		}
		g.periodIndex[p] = len(g.periods)
		g.periods = append(g.periods, p)
	}

	for _, name := range imported {
		node := other.nodes[name].renamed(renameOf(name, rename), rename)
		if err := g.addNodeLocked(node); err != nil {
			return fmt.Errorf("importing node %q: %w", name, err)
		}
	}
	g.resetForecastSeeds(nil)
	g.log.Debug("graph merged", zap.Int("nodes", len(imported)), zap.Int("renamed", len(rename)))
	return nil
}

// ClearCache empties the calculation cache. Values are recomputed on the
// next Calculate call; results are unchanged.
func (g *Graph) ClearCache() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache.clearAll()
	g.resetForecastSeeds(nil)
}

// CachedEntries reports the number of memoized (node, period) pairs.
func (g *Graph) CachedEntries() int {
	return g.cache.len()
}

// --- internal helpers (lock held) ---

// depsView materializes the node -> dependency-names relation.
func (g *Graph) depsView() map[string][]string {
	view := make(map[string][]string, len(g.nodes))
	for name, n := range g.nodes {
		view[name] = n.Dependencies()
	}
	return view
}

func (g *Graph) directDependents(name string) []string {
	out := make([]string, 0, len(g.dependents[name]))
	for dep := range g.dependents[name] {
		out = append(out, dep)
	}
	return out
}

// transitiveDependents walks the reverse-dependency index breadth-first.
func (g *Graph) transitiveDependents(name string) []string {
	seen := map[string]struct{}{name: {}}
	queue := []string{name}
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for dep := range g.dependents[current] {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}
	return out
}

// invalidate applies the configured cache invalidation policy after a
// mutation to the named node.
func (g *Graph) invalidate(name string) {
	if !g.precise {
		g.cache.clearAll()
		g.resetForecastSeeds(nil)
		return
	}
	affected := append([]string{name}, g.transitiveDependents(name)...)
	for _, victim := range affected {
		g.cache.clearNode(victim)
	}
	g.resetForecastSeeds(affected)
}

// resetForecastSeeds drops forecast nodes back to the unseeded state. A nil
// filter resets every forecast node; otherwise only the listed names.
func (g *Graph) resetForecastSeeds(names []string) {
	if names == nil {
		for _, n := range g.nodes {
			if fn, ok := n.(*ForecastNode); ok {
				fn.resetSeed()
			}
		}
		return
	}
	for _, name := range names {
		if fn, ok := g.nodes[name].(*ForecastNode); ok {
			fn.resetSeed()
		}
	}
}

// compactOrder drops removed names from the insertion-order slice.
func (g *Graph) compactOrder() {
	kept := g.order[:0]
	for _, name := range g.order {
		if _, ok := g.nodes[name]; ok {
			kept = append(kept, name)
		}
	}
	g.order = kept
}

// --- type-specific constructors on the graph ---

// AddDataNode registers a leaf node seeded with the given values.
func (g *Graph) AddDataNode(name string, values map[Period]float64) error {
	return g.AddNode(NewDataNode(name, values))
}

// AddCalculation registers a formula node over named input nodes.
func (g *Graph) AddCalculation(name, formula string) error {
	n, err := NewFormulaNode(name, formula)
	if err != nil {
		return err
	}
	return g.AddNode(n)
}

// AddStrategyCalculation registers a node applying a registered strategy
// function to ordered inputs.
func (g *Graph) AddStrategyCalculation(name, strategy string, inputs []string) error {
	return g.AddNode(NewStrategyNode(name, strategy, inputs))
}

// AddMetric registers a node built from the injected metric catalog.
func (g *Graph) AddMetric(name, metric string, inputs map[string]string) error {
	n, err := NewMetricNode(name, metric, inputs, g.catalog)
	if err != nil {
		return err
	}
	return g.AddNode(n)
}

// AddCustomCalculation registers a node computed by an injected function.
func (g *Graph) AddCustomCalculation(name string, inputs []string, fn CustomFunc) error {
	return g.AddNode(NewCustomNode(name, inputs, fn))
}

// AddForecast registers a forecast over another node's series.
func (g *Graph) AddForecast(name, base string, horizon Period, model GrowthModel, opts ...ForecastOption) error {
	n, err := NewForecastNode(name, base, horizon, model, opts...)
	if err != nil {
		return err
	}
	return g.AddNode(n)
}

// AddSelfForecast registers a forecast seeded by its own historical data.
func (g *Graph) AddSelfForecast(name string, seed map[Period]float64, model GrowthModel, opts ...ForecastOption) error {
	n, err := NewSelfForecastNode(name, seed, model, opts...)
	if err != nil {
		return err
	}
	return g.AddNode(n)
}
