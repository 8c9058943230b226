// Package schemas holds the serialized definition types shared by the
// loader, the store and the CLI. The core engine never parses these; it
// accepts only already-validated primitives through its public surface.
package schemas

import "time"

// Node kinds accepted in a GraphDefinition.
const (
	KindData     = "data"
	KindFormula  = "formula"
	KindStrategy = "strategy"
	KindMetric   = "metric"
	KindForecast = "forecast"
)

// Growth model names accepted in a ForecastDefinition.
const (
	ModelFixed             = "fixed"
	ModelCurve             = "curve"
	ModelHistoricalAverage = "historical_average"
	ModelStatistical       = "statistical"
)

// GraphDefinition is the serialized form of a computation graph: periods,
// node definitions and optional pre-recorded adjustments. Custom nodes
// carry injected Go functions and therefore have no serialized form.
type GraphDefinition struct {
	Name        string                 `json:"name" yaml:"name"`
	Periods     []string               `json:"periods" yaml:"periods"`
	Nodes       []NodeDefinition       `json:"nodes" yaml:"nodes"`
	Adjustments []AdjustmentDefinition `json:"adjustments,omitempty" yaml:"adjustments,omitempty"`
}

// NodeDefinition is a kind-discriminated node payload.
type NodeDefinition struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`

	// KindData: period -> value.
	Values map[string]float64 `json:"values,omitempty" yaml:"values,omitempty"`

	// KindFormula: expression plus optional variable -> node bindings.
	Formula  string            `json:"formula,omitempty" yaml:"formula,omitempty"`
	Bindings map[string]string `json:"bindings,omitempty" yaml:"bindings,omitempty"`

	// KindStrategy: registered function name plus ordered inputs.
	Strategy string   `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Inputs   []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// KindMetric: catalog metric name plus input -> node mapping.
	Metric       string            `json:"metric,omitempty" yaml:"metric,omitempty"`
	MetricInputs map[string]string `json:"metric_inputs,omitempty" yaml:"metric_inputs,omitempty"`

	// KindForecast.
	Forecast *ForecastDefinition `json:"forecast,omitempty" yaml:"forecast,omitempty"`
}

// ForecastDefinition configures a forecast node. Exactly one of Base or
// Seed must be set: Base names another node evaluated up to Horizon, Seed
// carries the node's own historical values.
type ForecastDefinition struct {
	Base    string             `json:"base,omitempty" yaml:"base,omitempty"`
	Horizon string             `json:"horizon,omitempty" yaml:"horizon,omitempty"`
	Seed    map[string]float64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	Model string `json:"model" yaml:"model"`

	// ModelFixed.
	Rate float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	// ModelCurve: one rate per forecast-period offset.
	Rates []float64 `json:"rates,omitempty" yaml:"rates,omitempty"`
	// ModelStatistical. RandSeed is required so loads are reproducible.
	Mean     float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	StdDev   float64 `json:"std_dev,omitempty" yaml:"std_dev,omitempty"`
	RandSeed *int64  `json:"rand_seed,omitempty" yaml:"rand_seed,omitempty"`

	MinHistory int `json:"min_history,omitempty" yaml:"min_history,omitempty"`
}

// AdjustmentDefinition is the serialized form of a discretionary
// adjustment, used both to preload adjustments from a definition and to
// export the audit trail.
type AdjustmentDefinition struct {
	ID        string    `json:"id,omitempty" yaml:"id,omitempty"`
	Node      string    `json:"node" yaml:"node"`
	Period    string    `json:"period" yaml:"period"`
	Value     float64   `json:"value" yaml:"value"`
	Kind      string    `json:"kind" yaml:"kind"`
	Reason    string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Scenario  string    `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	Tags      []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	Priority  int       `json:"priority,omitempty" yaml:"priority,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Catalog is the serialized metric catalog consumed by internal/metrics.
type Catalog struct {
	Metrics []CatalogMetric `json:"metrics" yaml:"metrics"`
}

// CatalogMetric describes one metric: a formula over declared inputs.
type CatalogMetric struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Formula     string   `json:"formula" yaml:"formula"`
	Inputs      []string `json:"inputs" yaml:"inputs"`
}
