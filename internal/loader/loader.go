// Package loader builds evaluation graphs from serialized definitions. It
// owns all file-format knowledge; the core engine only ever sees parsed,
// validated primitives.
package loader

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/quantfold/fingraph/api/schemas"
	"github.com/quantfold/fingraph/internal/graph"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Loader turns graph definitions into live graphs, wiring in the injected
// metric catalog and strategy registry.
type Loader struct {
	catalog    graph.MetricCatalog
	strategies graph.StrategyRegistry
	opts       []graph.Option
	log        *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithCatalog supplies the metric catalog metric nodes resolve against.
func WithCatalog(c graph.MetricCatalog) Option {
	return func(l *Loader) { l.catalog = c }
}

// WithStrategies supplies the strategy registry.
func WithStrategies(r graph.StrategyRegistry) Option {
	return func(l *Loader) { l.strategies = r }
}

// WithGraphOptions passes extra options through to every built graph.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(l *Loader) { l.opts = append(l.opts, opts...) }
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log.Named("loader")
		}
	}
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{log: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ParseDefinition decodes a JSON or YAML graph definition. The format is
// chosen by file extension; ".json" is JSON, everything else is YAML.
func ParseDefinition(data []byte, path string) (schemas.GraphDefinition, error) {
	var def schemas.GraphDefinition
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &def); err != nil {
			return def, fmt.Errorf("parsing %s: %w", path, err)
		}
		return def, nil
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return def, fmt.Errorf("parsing %s: %w", path, err)
	}
	return def, nil
}

// LoadFile reads, parses and builds a graph from a definition file.
func (l *Loader) LoadFile(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definition %s: %w", path, err)
	}
	def, err := ParseDefinition(data, path)
	if err != nil {
		return nil, err
	}
	return l.Build(def)
}

// Build constructs a graph from a parsed definition. Node definitions may
// appear in any order; they are added in dependency order. Adjustments are
// replayed after all nodes exist.
func (l *Loader) Build(def schemas.GraphDefinition) (*graph.Graph, error) {
	opts := append([]graph.Option{
		graph.WithCatalog(l.catalog),
		graph.WithLogger(l.log),
	}, l.opts...)
	if l.strategies != nil {
		opts = append(opts, graph.WithStrategies(l.strategies))
	}
	g := graph.New(opts...)

	periods := make([]graph.Period, len(def.Periods))
	for i, p := range def.Periods {
		periods[i] = graph.Period(p)
	}
	if err := g.AddPeriods(periods...); err != nil {
		return nil, err
	}

	nodes := make([]graph.Node, 0, len(def.Nodes))
	for _, nd := range def.Nodes {
		n, err := l.buildNode(nd)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	// Definitions carry no ordering guarantee: add nodes in passes until
	// no progress is made, then surface the blocking error (unknown input
	// or cycle) from the first remaining node.
	pending := nodes
	for len(pending) > 0 {
		var next []graph.Node
		var firstErr error
		for _, n := range pending {
			if err := g.AddNode(n); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("adding node %q: %w", n.Name(), err)
				}
				next = append(next, n)
			}
		}
		if len(next) == len(pending) {
			return nil, firstErr
		}
		pending = next
	}

	for _, ad := range def.Adjustments {
		var opts []graph.AdjustmentOption
		if ad.Scenario != "" {
			opts = append(opts, graph.WithScenario(ad.Scenario))
		}
		if len(ad.Tags) > 0 {
			opts = append(opts, graph.WithTags(ad.Tags...))
		}
		if ad.Priority != 0 {
			opts = append(opts, graph.WithPriority(ad.Priority))
		}
		if _, err := g.AddAdjustment(ad.Node, graph.Period(ad.Period), ad.Value, graph.AdjustmentKind(ad.Kind), ad.Reason, opts...); err != nil {
			return nil, fmt.Errorf("replaying adjustment for node %q: %w", ad.Node, err)
		}
	}

	l.log.Debug("graph built",
		zap.String("name", def.Name),
		zap.Int("periods", len(def.Periods)),
		zap.Int("nodes", len(def.Nodes)),
		zap.Int("adjustments", len(def.Adjustments)),
	)
	return g, nil
}

func (l *Loader) buildNode(nd schemas.NodeDefinition) (graph.Node, error) {
	switch nd.Kind {
	case schemas.KindData:
		values := make(map[graph.Period]float64, len(nd.Values))
		for p, v := range nd.Values {
			values[graph.Period(p)] = v
		}
		return graph.NewDataNode(nd.Name, values), nil

	case schemas.KindFormula:
		return graph.NewBoundFormulaNode(nd.Name, nd.Formula, nd.Bindings)

	case schemas.KindStrategy:
		return graph.NewStrategyNode(nd.Name, nd.Strategy, nd.Inputs), nil

	case schemas.KindMetric:
		return graph.NewMetricNode(nd.Name, nd.Metric, nd.MetricInputs, l.catalog)

	case schemas.KindForecast:
		return l.buildForecast(nd)

	default:
		return nil, fmt.Errorf("node %q has unknown kind %q", nd.Name, nd.Kind)
	}
}

func (l *Loader) buildForecast(nd schemas.NodeDefinition) (graph.Node, error) {
	fd := nd.Forecast
	if fd == nil {
		return nil, fmt.Errorf("forecast node %q has no forecast block", nd.Name)
	}

	model, err := buildModel(nd.Name, fd)
	if err != nil {
		return nil, err
	}

	var opts []graph.ForecastOption
	if fd.MinHistory > 0 {
		opts = append(opts, graph.WithMinHistory(fd.MinHistory))
	}

	if fd.Base != "" {
		return graph.NewForecastNode(nd.Name, fd.Base, graph.Period(fd.Horizon), model, opts...)
	}
	seed := make(map[graph.Period]float64, len(fd.Seed))
	for p, v := range fd.Seed {
		seed[graph.Period(p)] = v
	}
	return graph.NewSelfForecastNode(nd.Name, seed, model, opts...)
}

func buildModel(node string, fd *schemas.ForecastDefinition) (graph.GrowthModel, error) {
	switch fd.Model {
	case schemas.ModelFixed:
		return graph.NewFixedGrowth(fd.Rate), nil
	case schemas.ModelCurve:
		return graph.NewGrowthCurve(fd.Rates), nil
	case schemas.ModelHistoricalAverage:
		return graph.NewHistoricalAverageGrowth(), nil
	case schemas.ModelStatistical:
		if fd.RandSeed == nil {
			return nil, fmt.Errorf("forecast node %q: statistical model requires rand_seed for reproducible loads", node)
		}
		return graph.NewStatisticalGrowth(fd.Mean, fd.StdDev, rand.New(rand.NewSource(*fd.RandSeed)))
	default:
		return nil, fmt.Errorf("forecast node %q has unknown growth model %q", node, fd.Model)
	}
}

// ExportAdjustments serializes the graph's full adjustment audit trail.
func ExportAdjustments(g *graph.Graph) []schemas.AdjustmentDefinition {
	all := g.AllAdjustments()
	out := make([]schemas.AdjustmentDefinition, len(all))
	for i, a := range all {
		out[i] = schemas.AdjustmentDefinition{
			ID:        a.ID.String(),
			Node:      a.Node,
			Period:    string(a.Period),
			Value:     a.Value,
			Kind:      string(a.Kind),
			Reason:    a.Reason,
			Scenario:  a.Scenario,
			Tags:      append([]string(nil), a.Tags...),
			Priority:  a.Priority,
			CreatedAt: a.CreatedAt,
		}
	}
	return out
}
