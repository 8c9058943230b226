package graph

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// ValueAccessor is the read-only view handed to custom growth functions so
// they can link a forecast rate to other nodes (e.g. a macro driver) while
// the engine holds its own lock.
type ValueAccessor interface {
	Calculate(name string, p Period) (float64, error)
}

// RateFunc computes a per-period growth rate from other graph values.
type RateFunc func(values ValueAccessor, node string, p Period) (float64, error)

// GrowthModel is a pluggable per-period growth rate source for forecast
// nodes. Seed is called once per seeding cycle with the historical values
// in period order; Rate is called per forecast period with the offset from
// the first forecast period. A model instance belongs to exactly one node:
// when a node is copied into another graph its model is cloned, never
// shared, so seeded state cannot leak across graphs.
type GrowthModel interface {
	ModelName() string
	Seed(hist []float64) error
	Rate(values ValueAccessor, node string, p Period, offset int) (float64, error)

	// clone returns an unseeded copy for a node imported into another
	// graph. The copy must carry no mutable state of the original.
	clone() GrowthModel
}

// fixedGrowth applies a constant rate: value(P) = value(P_prev) * (1+r).
type fixedGrowth struct {
	rate float64
}

// NewFixedGrowth returns a growth model with a constant rate r.
func NewFixedGrowth(r float64) GrowthModel { return &fixedGrowth{rate: r} }

func (m *fixedGrowth) ModelName() string    { return "fixed" }
func (m *fixedGrowth) Seed([]float64) error { return nil }
func (m *fixedGrowth) clone() GrowthModel   { return &fixedGrowth{rate: m.rate} }
func (m *fixedGrowth) Rate(_ ValueAccessor, _ string, _ Period, _ int) (float64, error) {
	return m.rate, nil
}

// growthCurve applies an explicit ordered list of rates, one per
// forecast-period offset from the first forecast period.
type growthCurve struct {
	rates []float64
}

// NewGrowthCurve returns a growth model that reads one rate per forecast
// offset. Offsets beyond the curve are a configuration error.
func NewGrowthCurve(rates []float64) GrowthModel {
	return &growthCurve{rates: append([]float64(nil), rates...)}
}

func (m *growthCurve) ModelName() string    { return "curve" }
func (m *growthCurve) Seed([]float64) error { return nil }

func (m *growthCurve) clone() GrowthModel {
	return &growthCurve{rates: append([]float64(nil), m.rates...)}
}

func (m *growthCurve) Rate(_ ValueAccessor, node string, p Period, offset int) (float64, error) {
	if offset < 0 || offset >= len(m.rates) {
		return 0, &ForecastConfigurationError{
			Node:   node,
			Reason: fmt.Sprintf("period %q is offset %d but the growth curve has %d rates", p, offset, len(m.rates)),
		}
	}
	return m.rates[offset], nil
}

// historicalAverageGrowth computes, at seed time, the mean period-over-period
// growth across the historical window and applies it as a constant rate.
type historicalAverageGrowth struct {
	rate   float64
	seeded bool
}

// NewHistoricalAverageGrowth returns a growth model whose rate is the mean
// historical period-over-period growth, computed once per seeding cycle.
func NewHistoricalAverageGrowth() GrowthModel { return &historicalAverageGrowth{} }

func (m *historicalAverageGrowth) ModelName() string { return "historical_average" }

func (m *historicalAverageGrowth) Seed(hist []float64) error {
	if len(hist) < 2 {
		// Period-over-period growth needs at least one ratio.
		return &InsufficientHistoryError{Have: len(hist), Want: 2}
	}
	sum := 0.0
	count := 0
	for i := 1; i < len(hist); i++ {
		if hist[i-1] == 0 {
			return fmt.Errorf("historical value at offset %d is zero; growth is undefined", i-1)
		}
		sum += hist[i]/hist[i-1] - 1
		count++
	}
	m.rate = sum / float64(count)
	m.seeded = true
	return nil
}

func (m *historicalAverageGrowth) Rate(_ ValueAccessor, node string, p Period, _ int) (float64, error) {
	if !m.seeded {
		return 0, &ForecastConfigurationError{Node: node, Reason: "historical average growth used before seeding"}
	}
	return m.rate, nil
}

func (m *historicalAverageGrowth) clone() GrowthModel { return &historicalAverageGrowth{} }

// statisticalGrowth draws a rate per forecast period from normal(mean, std).
// The random source is injected so test suites can pin sequences; values are
// reproducible within one cache lifetime but not across invalidations.
type statisticalGrowth struct {
	mean   float64
	stddev float64

	mu  sync.Mutex // rand.Rand is not safe for concurrent readers
	rng *rand.Rand
}

// NewStatisticalGrowth returns a growth model drawing from normal(mean,
// stddev) using the supplied random source. The source is required: the
// engine never falls back to ambient global RNG state.
func NewStatisticalGrowth(mean, stddev float64, rng *rand.Rand) (GrowthModel, error) {
	if rng == nil {
		return nil, errors.New("statistical growth requires an explicit random source")
	}
	return &statisticalGrowth{mean: mean, stddev: stddev, rng: rng}, nil
}

func (m *statisticalGrowth) ModelName() string    { return "statistical" }
func (m *statisticalGrowth) Seed([]float64) error { return nil }

func (m *statisticalGrowth) Rate(_ ValueAccessor, _ string, _ Period, _ int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mean + m.stddev*m.rng.NormFloat64(), nil
}

// clone forks the random source by drawing a child seed from it, so the two
// models never contend on (or advance) each other's stream afterwards.
func (m *statisticalGrowth) clone() GrowthModel {
	m.mu.Lock()
	child := rand.New(rand.NewSource(m.rng.Int63()))
	m.mu.Unlock()
	return &statisticalGrowth{mean: m.mean, stddev: m.stddev, rng: child}
}

// customGrowth delegates the rate to an injected function with read access
// to the graph.
type customGrowth struct {
	fn RateFunc
}

// NewCustomGrowth returns a growth model whose rate is computed by fn.
func NewCustomGrowth(fn RateFunc) GrowthModel { return &customGrowth{fn: fn} }

func (m *customGrowth) ModelName() string    { return "custom" }
func (m *customGrowth) Seed([]float64) error { return nil }

func (m *customGrowth) Rate(values ValueAccessor, node string, p Period, _ int) (float64, error) {
	return m.fn(values, node, p)
}

// The rate function is stateless by contract, so sharing it is safe.
func (m *customGrowth) clone() GrowthModel { return &customGrowth{fn: m.fn} }

// ForecastNode projects future periods from a historical base series using
// a growth model. The base is either the node's own seed data or another
// node evaluated over the historical window. Periods at or before the
// horizon read the base directly; later periods apply the recurrence
// value(P) = value(P_prev) * (1 + rate).
type ForecastNode struct {
	name       string
	base       string // "" when self-seeded
	seed       map[Period]float64
	horizon    Period // last historical period
	model      GrowthModel
	minHistory int // 0 means use the graph default

	mu     sync.Mutex
	seeded bool
}

// ForecastOption configures a forecast node at construction.
type ForecastOption func(*ForecastNode)

// WithMinHistory overrides the graph's minimum historical window for this
// node.
func WithMinHistory(n int) ForecastOption {
	return func(f *ForecastNode) { f.minHistory = n }
}

// NewForecastNode creates a forecast over another node's series. Periods up
// to and including horizon are read from base; later periods are projected.
func NewForecastNode(name, base string, horizon Period, model GrowthModel, opts ...ForecastOption) (*ForecastNode, error) {
	if model == nil {
		return nil, &ForecastConfigurationError{Node: name, Reason: "no growth model supplied"}
	}
	if base == "" || base == name {
		return nil, &ForecastConfigurationError{Node: name, Reason: "base series must name another node; use NewSelfForecastNode for self-seeded forecasts"}
	}
	n := &ForecastNode{name: name, base: base, horizon: horizon, model: model}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// NewSelfForecastNode creates a forecast seeded by its own historical data.
// The latest seed period (in graph order) becomes the horizon.
func NewSelfForecastNode(name string, seed map[Period]float64, model GrowthModel, opts ...ForecastOption) (*ForecastNode, error) {
	if model == nil {
		return nil, &ForecastConfigurationError{Node: name, Reason: "no growth model supplied"}
	}
	if len(seed) == 0 {
		return nil, &ForecastConfigurationError{Node: name, Reason: "self-seeded forecast needs at least one historical value"}
	}
	vs := make(map[Period]float64, len(seed))
	for p, v := range seed {
		vs[p] = v
	}
	n := &ForecastNode{name: name, seed: vs, model: model}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

func (n *ForecastNode) Name() string { return n.name }

func (n *ForecastNode) Dependencies() []string {
	if n.base == "" {
		return nil
	}
	return []string{n.base}
}

// Base returns the base series node name, or "" for self-seeded forecasts.
func (n *ForecastNode) Base() string { return n.base }

// Model returns the node's growth model.
func (n *ForecastNode) Model() GrowthModel { return n.model }

// resetSeed drops the node back to the unseeded state. Called by the graph
// whenever historical data or the period list changes.
func (n *ForecastNode) resetSeed() {
	n.mu.Lock()
	n.seeded = false
	n.mu.Unlock()
}

// horizonIndex resolves the index of the last historical period within the
// graph's period order.
func (n *ForecastNode) horizonIndex(g *Graph) (int, error) {
	if n.base != "" {
		idx, ok := g.periodIndex[n.horizon]
		if !ok {
			return 0, &PeriodError{Period: n.horizon, Reason: "forecast horizon is not in the graph's period list"}
		}
		return idx, nil
	}
	last := -1
	for p := range n.seed {
		if idx, ok := g.periodIndex[p]; ok && idx > last {
			last = idx
		}
	}
	if last < 0 {
		return 0, &ForecastConfigurationError{Node: n.name, Reason: "none of the seed periods are in the graph's period list"}
	}
	return last, nil
}

// historicalValue reads the base series for a period at or before the
// horizon.
func (n *ForecastNode) historicalValue(g *Graph, p Period) (float64, error) {
	if n.base != "" {
		return g.calculate(n.base, p)
	}
	v, ok := n.seed[p]
	if !ok {
		return 0, &MissingDataError{Node: n.name, Period: p}
	}
	return v, nil
}

// ensureSeeded gathers the historical window, enforces the minimum history
// requirement, and seeds the growth model. It transitions the node from
// UNSEEDED to SEEDED exactly once per seeding cycle.
func (n *ForecastNode) ensureSeeded(g *Graph, horizonIdx int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.seeded {
		return nil
	}

	hist := make([]float64, 0, horizonIdx+1)
	for i := 0; i <= horizonIdx; i++ {
		p := g.periods[i]
		v, err := n.historicalValue(g, p)
		if err != nil {
			// Gaps at the start of the window are tolerated; the window is
			// whatever the base series actually covers.
			var missing *MissingDataError
			if errors.As(err, &missing) {
				continue
			}
			return err
		}
		hist = append(hist, v)
	}

	min := n.minHistory
	if min <= 0 {
		min = g.minForecastHistory
	}
	if len(hist) < min {
		return &InsufficientHistoryError{Node: n.name, Have: len(hist), Want: min}
	}
	if err := n.model.Seed(hist); err != nil {
		// Models report their own window minimums; attribute them to the
		// node so callers can branch on one error type.
		var insufficient *InsufficientHistoryError
		if errors.As(err, &insufficient) {
			insufficient.Node = n.name
			return insufficient
		}
		return &ForecastConfigurationError{Node: n.name, Reason: err.Error()}
	}
	n.seeded = true
	return nil
}

func (n *ForecastNode) compute(g *Graph, p Period) (float64, error) {
	idx, ok := g.periodIndex[p]
	if !ok {
		return 0, &PeriodError{Period: p, Reason: "not in the graph's period list"}
	}
	horizonIdx, err := n.horizonIndex(g)
	if err != nil {
		return 0, err
	}

	if idx <= horizonIdx {
		return n.historicalValue(g, p)
	}

	if err := n.ensureSeeded(g, horizonIdx); err != nil {
		return 0, err
	}

	prev := g.periods[idx-1]
	prevVal, err := g.calculate(n.name, prev)
	if err != nil {
		return 0, err
	}
	rate, err := n.model.Rate(lockedAccessor{g: g}, n.name, p, idx-horizonIdx-1)
	if err != nil {
		return 0, err
	}
	v := prevVal * (1 + rate)
	if err := checkFinite(n.name, p, v); err != nil {
		return 0, err
	}
	return v, nil
}

func (n *ForecastNode) renamed(name string, rename map[string]string) Node {
	// The model is cloned, not shared: stateful models (historical average,
	// statistical) would otherwise be reseeded by the importing graph while
	// this graph still reads them.
	clone := &ForecastNode{
		name:       name,
		base:       renameOf(n.base, rename),
		horizon:    n.horizon,
		model:      n.model.clone(),
		minHistory: n.minHistory,
	}
	if n.seed != nil {
		clone.seed = make(map[Period]float64, len(n.seed))
		for p, v := range n.seed {
			clone.seed[p] = v
		}
	}
	return clone
}

// lockedAccessor exposes read-only evaluation to growth models while the
// graph lock is already held, avoiding re-entrant locking.
type lockedAccessor struct {
	g *Graph
}

func (a lockedAccessor) Calculate(name string, p Period) (float64, error) {
	return a.g.calculate(name, p)
}
