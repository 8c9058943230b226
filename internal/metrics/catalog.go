// Package metrics loads YAML metric catalogs and exposes them to the graph
// as a read-only lookup service.
package metrics

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantfold/fingraph/api/schemas"
	"github.com/quantfold/fingraph/internal/graph"
)

// Catalog is an immutable, name-indexed set of metric definitions.
type Catalog struct {
	byName map[string]graph.MetricSpec
}

var _ graph.MetricCatalog = (*Catalog)(nil)

// FromSchema builds a catalog from an already-parsed definition, rejecting
// duplicate and incomplete metrics.
func FromSchema(def schemas.Catalog) (*Catalog, error) {
	byName := make(map[string]graph.MetricSpec, len(def.Metrics))
	for _, m := range def.Metrics {
		if m.Name == "" {
			return nil, fmt.Errorf("catalog metric with empty name")
		}
		if m.Formula == "" {
			return nil, fmt.Errorf("metric %q has no formula", m.Name)
		}
		if _, dup := byName[m.Name]; dup {
			return nil, fmt.Errorf("metric %q defined twice", m.Name)
		}
		byName[m.Name] = graph.MetricSpec{
			Name:        m.Name,
			Description: m.Description,
			Formula:     m.Formula,
			Inputs:      append([]string(nil), m.Inputs...),
		}
	}
	return &Catalog{byName: byName}, nil
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var def schemas.Catalog
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing metric catalog: %w", err)
	}
	return FromSchema(def)
}

// Load reads and parses a YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metric catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Metric implements graph.MetricCatalog.
func (c *Catalog) Metric(name string) (graph.MetricSpec, bool) {
	spec, ok := c.byName[name]
	return spec, ok
}

// Len reports the number of metrics in the catalog.
func (c *Catalog) Len() int { return len(c.byName) }
